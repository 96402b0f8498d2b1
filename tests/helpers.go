package tests

import (
	"testing"

	"gorm.io/gorm"

	"github.com/Talej/lnurl-cypherapp/config"
	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/db/migrations"
	"github.com/Talej/lnurl-cypherapp/events"
	"github.com/Talej/lnurl-cypherapp/logger"
	"github.com/Talej/lnurl-cypherapp/tests/mocks"
)

const TestAdminPassword = "test-admin-password"

// MockInvoice is a signed bolt11 invoice for 2500u (250 000 000 msat).
const MockInvoice = "lnbc2500u1pvjluezpp5qqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqypqdq5xysxxatsyp3k7enxv4jsxqzpuaztrnwngzn3kdzw5hydlzf03qdgm2hdq27cqv3agm2awhz5se903vruatfhq77w3ls4evs3ch9zw97j25emudupq63nyw24cg27h2rspfj9srp"

const MockInvoiceMsat = 250000000

// TestService provides an in-memory database, config and mock gateway /
// notifier. Tests wire the engine under test against it themselves, the
// same shape service.NewService uses in production.
type TestService struct {
	Cfg            config.Config
	DB             *gorm.DB
	LNClient       *mocks.MockLNClient
	Notifier       *mocks.MockNotifier
	EventPublisher events.EventPublisher
}

func CreateTestService(t *testing.T) (*TestService, error) {
	logger.Init("4")

	gormDB, err := db.NewDB("file::memory:", false)
	if err != nil {
		return nil, err
	}
	err = migrations.Migrate(gormDB)
	if err != nil {
		return nil, err
	}

	appConfig := &config.AppConfig{
		Port:                      "8000",
		BaseUrl:                   "https://lnurl.test",
		LogLevel:                  "4",
		AdminPassword:             TestAdminPassword,
		LnAddressDomain:           "lnurl.test",
		WebhookTimeoutSeconds:     5,
		ReconciliationConcurrency: 4,
	}

	cfg, err := config.NewConfig(appConfig, gormDB)
	if err != nil {
		return nil, err
	}

	return &TestService{
		Cfg:            cfg,
		DB:             gormDB,
		LNClient:       &mocks.MockLNClient{},
		Notifier:       &mocks.MockNotifier{},
		EventPublisher: events.NewEventPublisher(),
	}, nil
}

func (svc *TestService) Remove() {
	db.Stop(svc.DB)
}
