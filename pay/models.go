package pay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/lnurl"
)

type PayService interface {
	CreateLnurlPay(ctx context.Context, req *CreateLnurlPayRequest) (*LnurlPayResult, error)
	UpdateLnurlPay(ctx context.Context, req *CreateLnurlPayRequest) (*LnurlPayResult, error)
	DeleteLnurlPay(ctx context.Context, lnurlPayId uint) (*LnurlPayResult, error)
	GetLnurlPay(ctx context.Context, lnurlPayId uint) (*LnurlPayResult, error)

	GetLnurlPayRequest(ctx context.Context, lnurlPayRequestId uint) (*db.LnurlPayRequest, error)
	DeleteLnurlPayRequest(ctx context.Context, lnurlPayRequestId uint) (*db.LnurlPayRequest, error)

	// LnServicePaySpecs is LN-service step 3: the wallet resolved the
	// endpoint (by LNURL or lightning address) and asks for its parameters.
	LnServicePaySpecs(ctx context.Context, externalId string) (*lnurl.PaySpecsResponse, error)

	// LnServicePayRequest is LN-service step 5: the wallet requests an
	// invoice for a concrete amount.
	LnServicePayRequest(ctx context.Context, externalId string, amountMsat int64) (*lnurl.PayRequestResponse, error)

	// LnurlPayRequestCallback is invoked by the lightning backend when the
	// invoice correlated by bolt11Label settles.
	LnurlPayRequestCallback(ctx context.Context, bolt11Label string) (*db.LnurlPayRequest, error)

	ProcessPayCallbacks(ctx context.Context) *ReconciliationResult

	PayLnAddress(ctx context.Context, req *PayLnAddressRequest) (*lnurl.PayRequestResponse, error)
}

type CreateLnurlPayRequest struct {
	ExternalId  string          `json:"externalId"`
	MinSendable int64           `json:"minSendable"`
	MaxSendable int64           `json:"maxSendable"`
	Metadata    json.RawMessage `json:"metadata"`
	WebhookUrl  string          `json:"webhookUrl"`
}

type LnurlPayResult struct {
	db.LnurlPay
	Lnurl string `json:"lnurl"`
}

type PayLnAddressRequest struct {
	// Address is a lightning address ("name@domain") or a bare externalId.
	Address    string `json:"address"`
	AmountMsat int64  `json:"amountMsat"`
}

type ReconciliationResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// payWebhookPayload is what operators receive when an issued invoice settles.
type payWebhookPayload struct {
	Event             string    `json:"event"`
	LnurlPayId        uint      `json:"lnurlPayId"`
	LnurlPayRequestId uint      `json:"lnurlPayRequestId"`
	ExternalId        string    `json:"externalId"`
	Bolt11Label       string    `json:"bolt11Label"`
	Bolt11            string    `json:"bolt11"`
	AmountMsat        int64     `json:"amountMsat"`
	Timestamp         time.Time `json:"timestamp"`
}
