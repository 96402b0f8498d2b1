package withdraw

import (
	"context"
	"time"

	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/lnurl"
)

type WithdrawService interface {
	CreateLnurlWithdraw(ctx context.Context, req *CreateLnurlWithdrawRequest) (*LnurlWithdrawResult, error)
	DeleteLnurlWithdraw(ctx context.Context, lnurlWithdrawId uint) (*LnurlWithdrawResult, error)
	GetLnurlWithdraw(ctx context.Context, lnurlWithdrawId uint) (*LnurlWithdrawResult, error)

	// LnServiceWithdrawRequest is LN-service step 1: the wallet scanned the
	// voucher's LNURL and asks for the withdraw parameters.
	LnServiceWithdrawRequest(ctx context.Context, secretToken string) (*lnurl.WithdrawRequestResponse, error)

	// LnServiceWithdraw is LN-service step 2: the wallet submits an invoice
	// against the claim challenge.
	LnServiceWithdraw(ctx context.Context, k1 string, pr string, balanceNotify string) error

	ForceFallback(ctx context.Context, lnurlWithdrawId uint) (*LnurlWithdrawResult, error)
	ProcessFallbacks(ctx context.Context) *ReconciliationResult
	ProcessCallbacks(ctx context.Context) *ReconciliationResult
	ProcessBatchWebhook(ctx context.Context, payload *BatchWebhookPayload) (*BatchWebhookResult, error)
}

type CreateLnurlWithdrawRequest struct {
	MinWithdrawable    int64     `json:"minWithdrawable"`
	MaxWithdrawable    int64     `json:"maxWithdrawable"`
	Description        string    `json:"description"`
	ExpiresAt          time.Time `json:"expiresAt"`
	WebhookUrl         string    `json:"webhookUrl"`
	BtcFallbackAddress string    `json:"btcFallbackAddress"`
}

type LnurlWithdrawResult struct {
	db.LnurlWithdraw
	Lnurl string `json:"lnurl"`
}

// ReconciliationResult aggregates a reconciliation pass. Per-record failures
// are logged and counted, never escalated, so one unreachable receiver cannot
// halt the rest of the batch.
type ReconciliationResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchWebhookPayload is posted by the external batching payment engine when
// it bundles claimed vouchers into one settlement transaction.
type BatchWebhookPayload struct {
	BatchRequestId   uint   `json:"batchRequestId"`
	LnurlWithdrawIds []uint `json:"lnurlWithdrawIds"`
}

type BatchWebhookResult struct {
	Batched []uint `json:"batched"`
	Skipped []uint `json:"skipped"`
}

// withdrawWebhookPayload is what operators receive on their webhook URL.
type withdrawWebhookPayload struct {
	Event           string    `json:"event"`
	LnurlWithdrawId uint      `json:"lnurlWithdrawId"`
	Bolt11          string    `json:"bolt11,omitempty"`
	BatchRequestId  *uint     `json:"batchRequestId,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt"`
	Timestamp       time.Time `json:"timestamp"`
}
