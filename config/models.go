package config

type AppConfig struct {
	Port         string `envconfig:"PORT" default:"8000" json:"port"`
	BaseUrl      string `envconfig:"BASE_URL" json:"baseUrl"`
	Workdir      string `envconfig:"WORK_DIR" json:"workdir"`
	DatabaseUri  string `envconfig:"DATABASE_URI" default:"lnurl.db" json:"databaseUri"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"1" json:"logLevel"`
	LogToFile    bool   `envconfig:"LOG_TO_FILE" default:"true" json:"logToFile"`
	LogDBQueries bool   `envconfig:"LOG_DB_QUERIES" default:"false" json:"logDbQueries"`

	AdminPassword string `envconfig:"ADMIN_PASSWORD" json:"-"`

	CyphernodeUrl    string `envconfig:"CYPHERNODE_URL" json:"cyphernodeUrl"`
	CyphernodeApiKey string `envconfig:"CYPHERNODE_API_KEY" json:"-"`

	// LnAddressDomain is the domain served under /.well-known/lnurlp.
	LnAddressDomain string `envconfig:"LN_ADDRESS_DOMAIN" json:"lnAddressDomain"`

	WebhookTimeoutSeconds     int `envconfig:"WEBHOOK_TIMEOUT_SECONDS" default:"30" json:"webhookTimeoutSeconds"`
	ReconciliationConcurrency int `envconfig:"RECONCILIATION_CONCURRENCY" default:"8" json:"reconciliationConcurrency"`
}

// Config is injected into the engines rather than captured at construction so
// that a runtime reload is visible to subsequent calls.
type Config interface {
	GetEnv() *AppConfig
	Reload() error
	GetJWTSecret() (string, error)
	CheckAdminPassword(password string) bool

	// Callback URL helpers, derived from BASE_URL and the route contexts.
	WithdrawRequestUrl(secretToken string) string
	WithdrawCallbackUrl() string
	PaySpecsUrl(externalId string) string
	PayRequestCallbackUrl(externalId string) string
	PayWebhookUrl(label string) string
}
