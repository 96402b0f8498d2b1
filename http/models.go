package http

import "encoding/json"

// Admin request/response envelope: one POST endpoint, method dispatch, in
// the JSON-RPC shape the operator-side tooling already speaks.

type RequestMessage struct {
	Id     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type ResponseMessage struct {
	Id     interface{}    `json:"id"`
	Result interface{}    `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603

	ErrorCodeNotFound = -32004
	ErrorCodeConflict = -32009
	ErrorCodeGateway  = -32010
)

type ErrorResponse struct {
	Message string `json:"message"`
}

type authRequest struct {
	Password string `json:"password"`
}

type authTokenResponse struct {
	Token string `json:"token"`
}

// Typed parameter structs bound at the boundary; the engines never see raw
// parameter bags.

type idParams struct {
	LnurlWithdrawId   uint `json:"lnurlWithdrawId,omitempty"`
	LnurlPayId        uint `json:"lnurlPayId,omitempty"`
	LnurlPayRequestId uint `json:"lnurlPayRequestId,omitempty"`
}

type bech32Params struct {
	S string `json:"s"`
}

type processCallbacksResult struct {
	Withdraw interface{} `json:"withdraw"`
	Pay      interface{} `json:"pay"`
}
