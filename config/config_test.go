package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/db/migrations"
	"github.com/Talej/lnurl-cypherapp/logger"
)

func createTestConfig(t *testing.T, env *AppConfig) *config {
	logger.Init("4")

	gormDB, err := db.NewDB("file::memory:", false)
	require.NoError(t, err)
	require.NoError(t, migrations.Migrate(gormDB))
	t.Cleanup(func() { db.Stop(gormDB) })

	cfg, err := NewConfig(env, gormDB)
	require.NoError(t, err)
	return cfg
}

func TestJWTSecretPersisted(t *testing.T) {
	cfg := createTestConfig(t, &AppConfig{})

	secret, err := cfg.GetJWTSecret()
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	// A second construction against the same database keeps the secret.
	again, err := NewConfig(&AppConfig{}, cfg.db)
	require.NoError(t, err)
	secondSecret, err := again.GetJWTSecret()
	require.NoError(t, err)
	assert.Equal(t, secret, secondSecret)
}

func TestCheckAdminPassword(t *testing.T) {
	cfg := createTestConfig(t, &AppConfig{AdminPassword: "hunter2"})

	assert.True(t, cfg.CheckAdminPassword("hunter2"))
	assert.False(t, cfg.CheckAdminPassword("wrong"))
	assert.False(t, cfg.CheckAdminPassword(""))

	// No password configured means nobody gets in, not everybody.
	unconfigured := createTestConfig(t, &AppConfig{})
	assert.False(t, unconfigured.CheckAdminPassword(""))
}

func TestCallbackUrls(t *testing.T) {
	cfg := createTestConfig(t, &AppConfig{BaseUrl: "https://lnurl.test/"})

	assert.Equal(t, "https://lnurl.test/withdrawRequest?s=tok", cfg.WithdrawRequestUrl("tok"))
	assert.Equal(t, "https://lnurl.test/withdraw", cfg.WithdrawCallbackUrl())
	assert.Equal(t, "https://lnurl.test/paySpecs/alice", cfg.PaySpecsUrl("alice"))
	assert.Equal(t, "https://lnurl.test/payRequest/alice", cfg.PayRequestCallbackUrl("alice"))
	assert.Equal(t, "https://lnurl.test/payWebhooks/label-1", cfg.PayWebhookUrl("label-1"))
}
