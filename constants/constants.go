package constants

// shared constants used by multiple packages

// Route contexts. An outer reverse proxy prefix (if any) is stripped before
// requests reach the echo router, so these are registered at the root.
const (
	API_CTX               = "/api"
	AUTH_CTX              = "/auth"
	WITHDRAW_REQUEST_CTX  = "/withdrawRequest"
	WITHDRAW_CTX          = "/withdraw"
	PAY_SPECS_CTX         = "/paySpecs"
	PAY_REQUEST_CTX       = "/payRequest"
	PAY_WEBHOOKS_CTX      = "/payWebhooks"
	WITHDRAW_WEBHOOKS_CTX = "/withdrawWebhooks"
	LN_ADDRESS_CTX        = "/.well-known/lnurlp"
)

// LNURL protocol tags.
const (
	TAG_WITHDRAW_REQUEST = "withdrawRequest"
	TAG_PAY_REQUEST      = "payRequest"
)

// Event types delivered to operator-supplied webhook URLs.
const (
	WEBHOOK_EVENT_WITHDRAW_PAID    = "lnurlWithdraw.paid"
	WEBHOOK_EVENT_WITHDRAW_BATCHED = "lnurlWithdraw.batched"
	WEBHOOK_EVENT_WITHDRAW_EXPIRED = "lnurlWithdraw.expired"
	WEBHOOK_EVENT_PAY_SETTLED      = "lnurlPay.settled"
)

// Internal event bus topics.
const (
	EVENT_WITHDRAW_CLAIMED  = "lnurl_withdraw_claimed"
	EVENT_WITHDRAW_FALLBACK = "lnurl_withdraw_fallback"
	EVENT_PAY_SETTLED       = "lnurl_pay_settled"
)

// Bytes of entropy behind generated secret tokens, claim challenges and
// bolt11 label suffixes, before hex encoding.
const (
	SECRET_TOKEN_LENGTH = 32
	K1_LENGTH           = 32
	BOLT11_LABEL_LENGTH = 16
)

const JWT_SECRET_CONFIG_KEY = "JWTSecret"
