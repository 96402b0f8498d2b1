package lnclient

import "context"

// LNClient is the narrow surface the engines need from the lightning
// backend. Implementations live in subpackages; tests use a mock.
type LNClient interface {
	// PayInvoice settles a bolt11 invoice over lightning.
	PayInvoice(ctx context.Context, bolt11 string) (*PayInvoiceResponse, error)

	// MakeInvoice generates a bolt11 invoice. The backend notifies
	// callbackUrl when the invoice settles, correlated by label.
	MakeInvoice(ctx context.Context, req *MakeInvoiceRequest) (*MakeInvoiceResponse, error)

	// PayOnchain issues an on-chain payment, used for voucher fallbacks.
	PayOnchain(ctx context.Context, address string, amountSat int64) (*PayOnchainResponse, error)
}

type PayInvoiceResponse struct {
	PaymentHash string
	Preimage    string
	FeeMsat     int64
}

type MakeInvoiceRequest struct {
	Label           string
	AmountMsat      int64
	Description     string
	DescriptionHash string
	CallbackUrl     string
}

type MakeInvoiceResponse struct {
	Bolt11      string
	Label       string
	PaymentHash string
}

type PayOnchainResponse struct {
	TxId string
}
