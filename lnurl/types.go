package lnurl

import "encoding/json"

// Wallet-facing response shapes, per LUD-03 and LUD-06.

type WithdrawRequestResponse struct {
	// Tag identifies the response as a withdrawRequest.
	Tag string `json:"tag"`

	// Callback is the URL the wallet calls with k1 and its invoice.
	Callback string `json:"callback"`

	// K1 is the per-call claim challenge bound to the voucher.
	K1 string `json:"k1"`

	DefaultDescription string `json:"defaultDescription"`

	// Withdrawable bounds in millisatoshi.
	MinWithdrawable int64 `json:"minWithdrawable"`
	MaxWithdrawable int64 `json:"maxWithdrawable"`
}

type PaySpecsResponse struct {
	// Tag identifies the response as a payRequest.
	Tag string `json:"tag"`

	// Callback is the URL which accepts the pay request parameters.
	Callback string `json:"callback"`

	// Sendable bounds in millisatoshi.
	MinSendable int64 `json:"minSendable"`
	MaxSendable int64 `json:"maxSendable"`

	// Metadata must be presented as the raw string the invoice description
	// hash commits to.
	Metadata json.RawMessage `json:"metadata"`
}

type PayRequestResponse struct {
	// Pr is a bech32-serialized lightning invoice.
	Pr string `json:"pr"`

	// Routes is always an empty array.
	Routes []string `json:"routes"`
}

type SuccessResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func Ok() SuccessResponse {
	return SuccessResponse{Status: "OK"}
}

// NewErrorResponse renders err in the protocol's own error shape.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Status: "ERROR", Reason: err.Error()}
}
