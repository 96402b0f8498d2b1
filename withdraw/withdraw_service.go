package withdraw

import (
	"context"
	"errors"
	"time"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"gorm.io/gorm"

	"github.com/Talej/lnurl-cypherapp/config"
	"github.com/Talej/lnurl-cypherapp/constants"
	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/events"
	"github.com/Talej/lnurl-cypherapp/lnclient"
	"github.com/Talej/lnurl-cypherapp/lnurl"
	"github.com/Talej/lnurl-cypherapp/logger"
	"github.com/Talej/lnurl-cypherapp/utils"
	"github.com/Talej/lnurl-cypherapp/webhooks"
)

type withdrawService struct {
	db             *gorm.DB
	cfg            config.Config
	lnClient       lnclient.LNClient
	notifier       webhooks.Notifier
	eventPublisher events.EventPublisher
}

func NewWithdrawService(
	gormDB *gorm.DB,
	cfg config.Config,
	lnClient lnclient.LNClient,
	notifier webhooks.Notifier,
	eventPublisher events.EventPublisher,
) *withdrawService {
	return &withdrawService{
		db:             gormDB,
		cfg:            cfg,
		lnClient:       lnClient,
		notifier:       notifier,
		eventPublisher: eventPublisher,
	}
}

func (svc *withdrawService) CreateLnurlWithdraw(ctx context.Context, req *CreateLnurlWithdrawRequest) (*LnurlWithdrawResult, error) {
	if req.MinWithdrawable < 0 || req.MaxWithdrawable < 0 {
		return nil, lnurl.NewValidationError("withdrawable bounds must not be negative")
	}
	if req.MinWithdrawable > req.MaxWithdrawable {
		return nil, lnurl.NewValidationError(
			"minWithdrawable (%d) must not exceed maxWithdrawable (%d)",
			req.MinWithdrawable, req.MaxWithdrawable,
		)
	}

	secretToken, err := utils.RandomHex(constants.SECRET_TOKEN_LENGTH)
	if err != nil {
		return nil, err
	}

	lnurlWithdraw := db.LnurlWithdraw{
		SecretToken:        secretToken,
		MinWithdrawable:    req.MinWithdrawable,
		MaxWithdrawable:    req.MaxWithdrawable,
		DefaultDescription: req.Description,
		WebhookUrl:         req.WebhookUrl,
		BtcFallbackAddress: req.BtcFallbackAddress,
		ExpiresAt:          req.ExpiresAt,
	}
	if err := svc.db.Create(&lnurlWithdraw).Error; err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to create lnurl withdraw")
		return nil, err
	}

	logger.Logger.Info().
		Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
		Time("expires_at", lnurlWithdraw.ExpiresAt).
		Msg("Created lnurl withdraw")

	return svc.toResult(&lnurlWithdraw)
}

func (svc *withdrawService) DeleteLnurlWithdraw(ctx context.Context, lnurlWithdrawId uint) (*LnurlWithdrawResult, error) {
	lnurlWithdraw, err := svc.getById(lnurlWithdrawId)
	if err != nil {
		return nil, err
	}

	// Soft delete only, and deleting twice succeeds silently.
	if !lnurlWithdraw.Deleted {
		err = svc.db.Model(lnurlWithdraw).Update("deleted", true).Error
		if err != nil {
			return nil, err
		}
		lnurlWithdraw.Deleted = true
	}

	logger.Logger.Info().Uint("lnurl_withdraw_id", lnurlWithdrawId).Msg("Deleted lnurl withdraw")
	return svc.toResult(lnurlWithdraw)
}

func (svc *withdrawService) GetLnurlWithdraw(ctx context.Context, lnurlWithdrawId uint) (*LnurlWithdrawResult, error) {
	lnurlWithdraw, err := svc.getById(lnurlWithdrawId)
	if err != nil {
		return nil, err
	}
	return svc.toResult(lnurlWithdraw)
}

func (svc *withdrawService) LnServiceWithdrawRequest(ctx context.Context, secretToken string) (*lnurl.WithdrawRequestResponse, error) {
	var lnurlWithdraw db.LnurlWithdraw
	result := svc.db.
		Where("secret_token = ?", secretToken).
		Where("deleted = ?", false).
		Limit(1).
		Find(&lnurlWithdraw)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, lnurl.NewProtocolError("unknown withdraw request")
	}

	// A dead voucher must never be offered to a wallet.
	if lnurlWithdraw.Paid {
		return nil, lnurl.NewProtocolError("voucher already claimed")
	}
	if time.Now().After(lnurlWithdraw.ExpiresAt) {
		return nil, lnurl.NewProtocolError("voucher expired")
	}

	k1, err := utils.RandomHex(constants.K1_LENGTH)
	if err != nil {
		return nil, err
	}
	err = svc.db.Model(&lnurlWithdraw).Update("k1", k1).Error
	if err != nil {
		return nil, err
	}

	return &lnurl.WithdrawRequestResponse{
		Tag:                constants.TAG_WITHDRAW_REQUEST,
		Callback:           svc.cfg.WithdrawCallbackUrl(),
		K1:                 k1,
		DefaultDescription: lnurlWithdraw.DefaultDescription,
		MinWithdrawable:    lnurlWithdraw.MinWithdrawable,
		MaxWithdrawable:    lnurlWithdraw.MaxWithdrawable,
	}, nil
}

func (svc *withdrawService) LnServiceWithdraw(ctx context.Context, k1 string, pr string, balanceNotify string) error {
	if k1 == "" || pr == "" {
		return lnurl.NewProtocolError("missing k1 or pr parameter")
	}

	var lnurlWithdraw db.LnurlWithdraw
	result := svc.db.
		Where("k1 = ?", k1).
		Where("deleted = ?", false).
		Limit(1).
		Find(&lnurlWithdraw)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return lnurl.NewProtocolError("unknown k1")
	}

	if lnurlWithdraw.Paid {
		return lnurl.NewProtocolError("voucher already claimed")
	}
	if time.Now().After(lnurlWithdraw.ExpiresAt) {
		return lnurl.NewProtocolError("voucher expired")
	}

	bolt11, err := decodepay.Decodepay(pr)
	if err != nil {
		return lnurl.NewProtocolError("could not decode invoice: %v", err)
	}
	if bolt11.MSatoshi < lnurlWithdraw.MinWithdrawable ||
		bolt11.MSatoshi > lnurlWithdraw.MaxWithdrawable {
		return lnurl.NewProtocolError(
			"invoice amount %d outside withdrawable bounds [%d, %d]",
			bolt11.MSatoshi, lnurlWithdraw.MinWithdrawable,
			lnurlWithdraw.MaxWithdrawable,
		)
	}

	// Reserve the voucher before paying. The conditional write only succeeds
	// if paid was still false, so concurrent claims against the same token
	// produce exactly one payment; losers get a conflict.
	reservation := svc.db.Model(&db.LnurlWithdraw{}).
		Where("id = ?", lnurlWithdraw.ID).
		Where("paid = ?", false).
		Where("deleted = ?", false).
		Updates(map[string]interface{}{
			"paid":               true,
			"bolt11":             pr,
			"balance_notify_url": balanceNotify,
		})
	if reservation.Error != nil {
		return reservation.Error
	}
	if reservation.RowsAffected == 0 {
		return lnurl.NewConflictError("voucher claimed concurrently")
	}

	payResponse, err := svc.lnClient.PayInvoice(ctx, pr)
	if err != nil {
		logger.Logger.Error().
			Err(err).
			Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
			Msg("Failed to pay claim invoice, releasing voucher")

		// The claim failed, hand the voucher back so the wallet can retry
		// with a fresh attempt.
		releaseErr := svc.db.Model(&db.LnurlWithdraw{}).
			Where("id = ?", lnurlWithdraw.ID).
			Updates(map[string]interface{}{
				"paid":   false,
				"bolt11": "",
			}).Error
		if releaseErr != nil {
			logger.Logger.Error().
				Err(releaseErr).
				Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
				Msg("Failed to release voucher after payment failure")
		}
		return lnurl.NewGatewayError(err, "failed to pay invoice")
	}

	logger.Logger.Info().
		Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
		Str("payment_hash", payResponse.PaymentHash).
		Msg("Voucher claimed")

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_WITHDRAW_CLAIMED,
		Properties: map[string]interface{}{
			"lnurl_withdraw_id": lnurlWithdraw.ID,
			"payment_hash":      payResponse.PaymentHash,
		},
	})

	// LUD-14 balance notify is best effort, the reconciliation webhook is
	// the reliable channel.
	if balanceNotify != "" {
		if err := svc.notifier.Post(ctx, balanceNotify, struct{}{}); err != nil {
			logger.Logger.Warn().
				Err(err).
				Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
				Msg("balanceNotify delivery failed")
		}
	}

	return nil
}

func (svc *withdrawService) getById(lnurlWithdrawId uint) (*db.LnurlWithdraw, error) {
	var lnurlWithdraw db.LnurlWithdraw
	err := svc.db.First(&lnurlWithdraw, lnurlWithdrawId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lnurl.NewNotFoundError("no lnurl withdraw with id %d", lnurlWithdrawId)
		}
		return nil, err
	}
	return &lnurlWithdraw, nil
}

func (svc *withdrawService) toResult(lnurlWithdraw *db.LnurlWithdraw) (*LnurlWithdrawResult, error) {
	encoded, err := lnurl.EncodeURL(svc.cfg.WithdrawRequestUrl(lnurlWithdraw.SecretToken))
	if err != nil {
		return nil, err
	}
	return &LnurlWithdrawResult{
		LnurlWithdraw: *lnurlWithdraw,
		Lnurl:         encoded,
	}, nil
}
