package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gorm.io/gorm"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Talej/lnurl-cypherapp/config"
	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/db/migrations"
	"github.com/Talej/lnurl-cypherapp/events"
	"github.com/Talej/lnurl-cypherapp/lnclient"
	"github.com/Talej/lnurl-cypherapp/lnclient/cyphernode"
	"github.com/Talej/lnurl-cypherapp/logger"
	"github.com/Talej/lnurl-cypherapp/pay"
	"github.com/Talej/lnurl-cypherapp/webhooks"
	"github.com/Talej/lnurl-cypherapp/withdraw"
)

type service struct {
	cfg config.Config

	db              *gorm.DB
	lnClient        lnclient.LNClient
	withdrawService withdraw.WithdrawService
	payService      pay.PayService
	eventPublisher  events.EventPublisher
	ctx             context.Context
}

func NewService(ctx context.Context) (*service, error) {
	// Load config from environment variables / .env file
	godotenv.Load(".env")
	appConfig := &config.AppConfig{}
	err := envconfig.Process("", appConfig)
	if err != nil {
		return nil, err
	}

	logger.Init(appConfig.LogLevel)

	if appConfig.Workdir == "" {
		appConfig.Workdir = filepath.Join(xdg.DataHome, "/lnurl-cypherapp")
		logger.Logger.Info().Interface("workdir", appConfig.Workdir).Msg("No workdir specified, using default")
	}
	// make sure workdir exists
	os.MkdirAll(appConfig.Workdir, os.ModePerm)

	if appConfig.LogToFile {
		err = logger.AddFileLogger(appConfig.Workdir)
		if err != nil {
			return nil, err
		}
	}

	// If DATABASE_URI is a URI or a path, leave it unchanged.
	// If it only contains a filename, prepend the workdir.
	if !strings.HasPrefix(appConfig.DatabaseUri, "file:") {
		databasePath, _ := filepath.Split(appConfig.DatabaseUri)
		if databasePath == "" {
			appConfig.DatabaseUri = filepath.Join(appConfig.Workdir, appConfig.DatabaseUri)
		}
	}

	gormDB, err := db.NewDB(appConfig.DatabaseUri, appConfig.LogDBQueries)
	if err != nil {
		return nil, err
	}
	err = migrations.Migrate(gormDB)
	if err != nil {
		return nil, err
	}

	cfg, err := config.NewConfig(appConfig, gormDB)
	if err != nil {
		return nil, err
	}

	eventPublisher := events.NewEventPublisher()

	lnClient := cyphernode.NewCyphernodeService(appConfig.CyphernodeUrl, appConfig.CyphernodeApiKey)
	notifier := webhooks.NewNotifier(time.Duration(appConfig.WebhookTimeoutSeconds) * time.Second)

	withdrawService := withdraw.NewWithdrawService(gormDB, cfg, lnClient, notifier, eventPublisher)
	payService := pay.NewPayService(gormDB, cfg, lnClient, notifier, eventPublisher)

	svc := &service{
		cfg:             cfg,
		db:              gormDB,
		lnClient:        lnClient,
		withdrawService: withdrawService,
		payService:      payService,
		eventPublisher:  eventPublisher,
		ctx:             ctx,
	}

	logger.Logger.Info().Msg("service created")

	return svc, nil
}

func (svc *service) Shutdown() {
	err := db.Stop(svc.db)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to stop database")
	}
}

func (svc *service) GetDB() *gorm.DB {
	return svc.db
}

func (svc *service) GetConfig() config.Config {
	return svc.cfg
}

func (svc *service) GetWithdrawService() withdraw.WithdrawService {
	return svc.withdrawService
}

func (svc *service) GetPayService() pay.PayService {
	return svc.payService
}

func (svc *service) GetEventPublisher() events.EventPublisher {
	return svc.eventPublisher
}
