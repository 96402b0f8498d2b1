package db

import (
	"time"

	"gorm.io/datatypes"
)

type UserConfig struct {
	ID        uint
	Key       string `gorm:"unique;not null"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LnurlWithdraw is a pre-authorized withdrawal right (voucher). It is never
// physically removed; Deleted excludes it from every lookup and
// reconciliation query. Paid, BatchRequestId and the *Calledback flags are
// monotonic once set.
type LnurlWithdraw struct {
	ID          uint
	SecretToken string `validate:"required" gorm:"unique;not null"`

	// K1 is the claim challenge handed out by the last withdrawRequest call,
	// rewritten on every lookup.
	K1 string `gorm:"index"`

	MinWithdrawable    int64
	MaxWithdrawable    int64
	DefaultDescription string
	WebhookUrl         string
	BtcFallbackAddress string
	BalanceNotifyUrl   string

	// Bolt11 is the invoice submitted by the claiming wallet.
	Bolt11 string

	ExpiresAt         time.Time
	Paid              bool
	PaidCalledback    bool
	BatchRequestId    *uint `gorm:"index"`
	BatchedCalledback bool
	ExpiredCalledback bool
	FallbackDone      bool
	FallbackTxId      string
	Deleted           bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LnurlPay is a receiving identity that issues invoices on demand.
// ExternalId doubles as the lightning-address local part.
type LnurlPay struct {
	ID         uint
	ExternalId string `validate:"required" gorm:"unique;not null"`

	MinSendable int64
	MaxSendable int64

	// Metadata is the raw LUD-06 metadata array; generated invoices commit
	// to its sha256 via the description hash.
	Metadata datatypes.JSON

	WebhookUrl string
	Deleted    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LnurlPayRequest records one invoice issuance attempt against a pay
// endpoint. Bolt11Label correlates the invoice with the settlement callback
// from the lightning backend.
type LnurlPayRequest struct {
	ID             uint
	LnurlPayId     uint     `validate:"required"`
	LnurlPay       LnurlPay `gorm:"constraint:OnDelete:CASCADE;"`
	Bolt11Label    string   `validate:"required" gorm:"unique;not null"`
	AmountMsat     int64
	Bolt11         string
	Paid           bool
	PaidCalledback bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
