package config

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Talej/lnurl-cypherapp/constants"
	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/logger"
	"github.com/Talej/lnurl-cypherapp/utils"
)

type config struct {
	env   *AppConfig
	db    *gorm.DB
	mutex sync.RWMutex
}

func NewConfig(env *AppConfig, gormDB *gorm.DB) (*config, error) {
	cfg := &config{
		env: env,
		db:  gormDB,
	}

	if err := cfg.ensureJWTSecret(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *config) GetEnv() *AppConfig {
	cfg.mutex.RLock()
	defer cfg.mutex.RUnlock()
	return cfg.env
}

// Reload re-reads the environment (and .env file) and swaps the config
// snapshot. Engines read through the interface, so the new values take
// effect on their next call without a restart.
func (cfg *config) Reload() error {
	godotenv.Overload(".env")

	env := &AppConfig{}
	if err := envconfig.Process("", env); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to reload config from environment")
		return err
	}

	cfg.mutex.Lock()
	cfg.env = env
	cfg.mutex.Unlock()

	logger.Logger.Info().Msg("Configuration reloaded")
	return nil
}

func (cfg *config) GetJWTSecret() (string, error) {
	var userConfig db.UserConfig
	err := cfg.db.Where(&db.UserConfig{Key: constants.JWT_SECRET_CONFIG_KEY}).
		Limit(1).Find(&userConfig).Error
	if err != nil {
		return "", fmt.Errorf("failed to get JWT secret: %w", err)
	}
	if userConfig.Value == "" {
		return "", errors.New("no JWT secret configured")
	}
	return userConfig.Value, nil
}

func (cfg *config) ensureJWTSecret() error {
	secret, _ := cfg.GetJWTSecret()
	if secret != "" {
		return nil
	}

	hexSecret, err := utils.RandomHex(32)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to generate JWT secret")
		return err
	}

	userConfig := db.UserConfig{
		Key:   constants.JWT_SECRET_CONFIG_KEY,
		Value: hexSecret,
	}
	result := cfg.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&userConfig)
	if result.Error != nil {
		return fmt.Errorf("failed to save JWT secret: %w", result.Error)
	}

	logger.Logger.Info().Msg("Generated new JWT secret")
	return nil
}

func (cfg *config) CheckAdminPassword(password string) bool {
	adminPassword := cfg.GetEnv().AdminPassword
	if adminPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(adminPassword)) == 1
}

func (cfg *config) baseUrl() string {
	return strings.TrimSuffix(cfg.GetEnv().BaseUrl, "/")
}

func (cfg *config) WithdrawRequestUrl(secretToken string) string {
	return cfg.baseUrl() + constants.WITHDRAW_REQUEST_CTX + "?s=" + secretToken
}

func (cfg *config) WithdrawCallbackUrl() string {
	return cfg.baseUrl() + constants.WITHDRAW_CTX
}

func (cfg *config) PaySpecsUrl(externalId string) string {
	return cfg.baseUrl() + constants.PAY_SPECS_CTX + "/" + externalId
}

func (cfg *config) PayRequestCallbackUrl(externalId string) string {
	return cfg.baseUrl() + constants.PAY_REQUEST_CTX + "/" + externalId
}

func (cfg *config) PayWebhookUrl(label string) string {
	return cfg.baseUrl() + constants.PAY_WEBHOOKS_CTX + "/" + label
}
