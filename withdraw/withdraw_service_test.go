package withdraw

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Talej/lnurl-cypherapp/constants"
	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/lnclient"
	"github.com/Talej/lnurl-cypherapp/lnurl"
	"github.com/Talej/lnurl-cypherapp/tests"
)

func TestCreateLnurlWithdraw(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	result, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 1000,
		MaxWithdrawable: 5000,
		Description:     "gift voucher",
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NotZero(t, result.ID)
	assert.NotEmpty(t, result.SecretToken)
	assert.True(t, strings.HasPrefix(result.Lnurl, "LNURL1"))
	assert.False(t, result.Paid)

	decoded, err := lnurl.DecodeURL(result.Lnurl)
	require.NoError(t, err)
	assert.Contains(t, decoded, result.SecretToken)
}

func TestCreateLnurlWithdraw_InvalidBounds(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	_, err = withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 5000,
		MaxWithdrawable: 1000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	assert.True(t, lnurl.IsValidationError(err))

	_, err = withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: -1,
		MaxWithdrawable: 1000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	assert.True(t, lnurl.IsValidationError(err))
}

func TestDeleteLnurlWithdraw_Idempotent(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	created, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 1000,
		MaxWithdrawable: 5000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	deleted, err := withdrawService.DeleteLnurlWithdraw(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	// Deleting again succeeds silently.
	deleted, err = withdrawService.DeleteLnurlWithdraw(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	// Row stays in the database.
	var count int64
	svc.DB.Model(&db.LnurlWithdraw{}).Where("id = ?", created.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	_, err = withdrawService.DeleteLnurlWithdraw(ctx, 999)
	assert.True(t, lnurl.IsNotFoundError(err))
}

func TestLnServiceWithdrawRequest(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	created, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 1000,
		MaxWithdrawable: 5000,
		Description:     "gift voucher",
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	response, err := withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	require.NoError(t, err)
	assert.Equal(t, constants.TAG_WITHDRAW_REQUEST, response.Tag)
	assert.Equal(t, int64(1000), response.MinWithdrawable)
	assert.Equal(t, int64(5000), response.MaxWithdrawable)
	assert.Equal(t, "gift voucher", response.DefaultDescription)
	assert.NotEmpty(t, response.K1)

	// Each lookup hands out a fresh challenge.
	second, err := withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	require.NoError(t, err)
	assert.NotEqual(t, response.K1, second.K1)

	_, err = withdrawService.LnServiceWithdrawRequest(ctx, "no-such-token")
	assert.True(t, lnurl.IsProtocolError(err))
}

func TestLnServiceWithdrawRequest_Expired(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	created, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 1000,
		MaxWithdrawable: 5000,
		ExpiresAt:       time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	assert.True(t, lnurl.IsProtocolError(err))
}

func TestLnServiceWithdraw_Claim(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	created, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 100000000,
		MaxWithdrawable: 300000000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	response, err := withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	require.NoError(t, err)

	err = withdrawService.LnServiceWithdraw(ctx, response.K1, tests.MockInvoice, "https://wallet.test/notify")
	require.NoError(t, err)

	assert.Equal(t, []string{tests.MockInvoice}, svc.LNClient.PaidInvoices)
	assert.Len(t, svc.Notifier.DeliveriesTo("https://wallet.test/notify"), 1)

	var lnurlWithdraw db.LnurlWithdraw
	require.NoError(t, svc.DB.First(&lnurlWithdraw, created.ID).Error)
	assert.True(t, lnurlWithdraw.Paid)
	assert.Equal(t, tests.MockInvoice, lnurlWithdraw.Bolt11)
	assert.Equal(t, "https://wallet.test/notify", lnurlWithdraw.BalanceNotifyUrl)

	// A second claim against the same voucher is refused.
	err = withdrawService.LnServiceWithdraw(ctx, response.K1, tests.MockInvoice, "")
	assert.True(t, lnurl.IsProtocolError(err))
	assert.Len(t, svc.LNClient.PaidInvoices, 1)
}

func TestLnServiceWithdraw_LostRaceYieldsConflict(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	created, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 100000000,
		MaxWithdrawable: 300000000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	response, err := withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	require.NoError(t, err)

	// Settle the voucher between the claim's lookup and its conditional
	// reservation, as a concurrent winning claim would.
	claimed := false
	err = svc.DB.Callback().Update().Before("gorm:update").Register("test:concurrent_claim", func(tx *gorm.DB) {
		if claimed || tx.Statement.Table != "lnurl_withdraws" {
			return
		}
		claimed = true
		require.NoError(t, svc.DB.Exec(
			"UPDATE lnurl_withdraws SET paid = ? WHERE id = ?", true, created.ID,
		).Error)
	})
	require.NoError(t, err)
	defer svc.DB.Callback().Update().Remove("test:concurrent_claim")

	err = withdrawService.LnServiceWithdraw(ctx, response.K1, tests.MockInvoice, "")
	assert.True(t, lnurl.IsConflictError(err))

	// The loser never reaches the gateway and never overwrites the winner.
	assert.Empty(t, svc.LNClient.PaidInvoices)
	var lnurlWithdraw db.LnurlWithdraw
	require.NoError(t, svc.DB.First(&lnurlWithdraw, created.ID).Error)
	assert.True(t, lnurlWithdraw.Paid)
	assert.Empty(t, lnurlWithdraw.Bolt11)
}

func TestLnServiceWithdraw_AmountOutsideBounds(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	created, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 1000,
		MaxWithdrawable: 5000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	response, err := withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	require.NoError(t, err)

	err = withdrawService.LnServiceWithdraw(ctx, response.K1, tests.MockInvoice, "")
	assert.True(t, lnurl.IsProtocolError(err))
	assert.Empty(t, svc.LNClient.PaidInvoices)

	var lnurlWithdraw db.LnurlWithdraw
	require.NoError(t, svc.DB.First(&lnurlWithdraw, created.ID).Error)
	assert.False(t, lnurlWithdraw.Paid)
}

func TestLnServiceWithdraw_GatewayFailureReleasesVoucher(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	created, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 100000000,
		MaxWithdrawable: 300000000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	response, err := withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	require.NoError(t, err)

	svc.LNClient.PayInvoiceFunc = func(ctx context.Context, bolt11 string) (*lnclient.PayInvoiceResponse, error) {
		return nil, errors.New("gateway unavailable")
	}

	err = withdrawService.LnServiceWithdraw(ctx, response.K1, tests.MockInvoice, "")
	assert.True(t, lnurl.IsGatewayError(err))

	// The voucher is handed back so the wallet can retry.
	var lnurlWithdraw db.LnurlWithdraw
	require.NoError(t, svc.DB.First(&lnurlWithdraw, created.ID).Error)
	assert.False(t, lnurlWithdraw.Paid)
	assert.Empty(t, lnurlWithdraw.Bolt11)

	svc.LNClient.PayInvoiceFunc = nil
	err = withdrawService.LnServiceWithdraw(ctx, response.K1, tests.MockInvoice, "")
	require.NoError(t, err)
}

func TestLnServiceWithdraw_DeletedVoucher(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	withdrawService := NewWithdrawService(svc.DB, svc.Cfg, svc.LNClient, svc.Notifier, svc.EventPublisher)

	created, err := withdrawService.CreateLnurlWithdraw(ctx, &CreateLnurlWithdrawRequest{
		MinWithdrawable: 100000000,
		MaxWithdrawable: 300000000,
		ExpiresAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	response, err := withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	require.NoError(t, err)

	_, err = withdrawService.DeleteLnurlWithdraw(ctx, created.ID)
	require.NoError(t, err)

	err = withdrawService.LnServiceWithdraw(ctx, response.K1, tests.MockInvoice, "")
	assert.True(t, lnurl.IsProtocolError(err))

	_, err = withdrawService.LnServiceWithdrawRequest(ctx, created.SecretToken)
	assert.True(t, lnurl.IsProtocolError(err))
}
