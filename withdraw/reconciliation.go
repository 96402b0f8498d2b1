package withdraw

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Talej/lnurl-cypherapp/constants"
	"github.com/Talej/lnurl-cypherapp/db"
	"github.com/Talej/lnurl-cypherapp/db/queries"
	"github.com/Talej/lnurl-cypherapp/events"
	"github.com/Talej/lnurl-cypherapp/lnurl"
	"github.com/Talej/lnurl-cypherapp/logger"
)

// ForceFallback triggers the on-chain fallback for a voucher before its
// expiry, at the operator's request.
func (svc *withdrawService) ForceFallback(ctx context.Context, lnurlWithdrawId uint) (*LnurlWithdrawResult, error) {
	lnurlWithdraw, err := svc.getById(lnurlWithdrawId)
	if err != nil {
		return nil, err
	}
	if lnurlWithdraw.Deleted {
		return nil, lnurl.NewNotFoundError("no lnurl withdraw with id %d", lnurlWithdrawId)
	}
	if lnurlWithdraw.Paid {
		return nil, lnurl.NewValidationError("voucher already claimed")
	}
	if lnurlWithdraw.FallbackDone {
		return nil, lnurl.NewValidationError("fallback already done")
	}
	if lnurlWithdraw.BtcFallbackAddress == "" {
		return nil, lnurl.NewValidationError("no fallback address configured")
	}

	if err := svc.executeFallback(ctx, lnurlWithdraw); err != nil {
		return nil, err
	}

	return svc.GetLnurlWithdraw(ctx, lnurlWithdrawId)
}

// ProcessFallbacks pays out expired unclaimed vouchers on-chain. Each
// voucher's outcome is independent; a gateway failure for one record leaves
// its flag unset for the next pass and never aborts the batch.
func (svc *withdrawService) ProcessFallbacks(ctx context.Context) *ReconciliationResult {
	lnurlWithdraws, err := queries.GetFallbackLnurlWithdraws(svc.db, time.Now())
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to query fallback-eligible withdraws")
		return &ReconciliationResult{}
	}

	result := &ReconciliationResult{Processed: len(lnurlWithdraws)}
	var failed atomic.Int64

	var group errgroup.Group
	group.SetLimit(svc.cfg.GetEnv().ReconciliationConcurrency)

	// Coarse cancellation between records only; an in-flight payment must
	// complete, or a payment issued server-side reads as a failure and the
	// released reservation pays the voucher again next pass.
	callCtx := context.WithoutCancel(ctx)

	for _, lnurlWithdraw := range lnurlWithdraws {
		if ctx.Err() != nil {
			break
		}
		lnurlWithdraw := lnurlWithdraw
		group.Go(func() error {
			if err := svc.executeFallback(callCtx, &lnurlWithdraw); err != nil {
				logger.Logger.Error().
					Err(err).
					Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
					Msg("Fallback payment failed")
				failed.Add(1)
			}
			return nil
		})
	}
	group.Wait()

	result.Failed = int(failed.Load())
	result.Succeeded = result.Processed - result.Failed

	logger.Logger.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("Processed fallbacks")
	return result
}

func (svc *withdrawService) executeFallback(ctx context.Context, lnurlWithdraw *db.LnurlWithdraw) error {
	// Reserve before paying so concurrent passes cannot double-spend the
	// fallback. Released on gateway failure.
	reservation := svc.db.Model(&db.LnurlWithdraw{}).
		Where("id = ?", lnurlWithdraw.ID).
		Where("fallback_done = ?", false).
		Where("paid = ?", false).
		Where("deleted = ?", false).
		Update("fallback_done", true)
	if reservation.Error != nil {
		return reservation.Error
	}
	if reservation.RowsAffected == 0 {
		return lnurl.NewConflictError("fallback handled concurrently")
	}

	amountSat := lnurlWithdraw.MaxWithdrawable / 1000
	payResponse, err := svc.lnClient.PayOnchain(ctx, lnurlWithdraw.BtcFallbackAddress, amountSat)
	if err != nil {
		releaseErr := svc.db.Model(&db.LnurlWithdraw{}).
			Where("id = ?", lnurlWithdraw.ID).
			Update("fallback_done", false).Error
		if releaseErr != nil {
			logger.Logger.Error().
				Err(releaseErr).
				Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
				Msg("Failed to release fallback reservation")
		}
		return lnurl.NewGatewayError(err, "on-chain fallback payment failed")
	}

	err = svc.db.Model(&db.LnurlWithdraw{}).
		Where("id = ?", lnurlWithdraw.ID).
		Update("fallback_tx_id", payResponse.TxId).Error
	if err != nil {
		logger.Logger.Error().
			Err(err).
			Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
			Str("tx_id", payResponse.TxId).
			Msg("Failed to record fallback txid")
	}

	logger.Logger.Info().
		Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
		Str("address", lnurlWithdraw.BtcFallbackAddress).
		Str("tx_id", payResponse.TxId).
		Msg("Fallback payment issued")

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_WITHDRAW_FALLBACK,
		Properties: map[string]interface{}{
			"lnurl_withdraw_id": lnurlWithdraw.ID,
			"tx_id":             payResponse.TxId,
		},
	})
	return nil
}

// ProcessCallbacks delivers owed operator webhooks. A voucher can owe several
// events at once (paid and expired, say); each is delivered and tracked
// separately, and a flag is only set after a successful delivery so the next
// pass retries failures.
func (svc *withdrawService) ProcessCallbacks(ctx context.Context) *ReconciliationResult {
	lnurlWithdraws, err := queries.GetNonCalledbackLnurlWithdraws(svc.db, time.Now())
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to query non-calledback withdraws")
		return &ReconciliationResult{}
	}

	result := &ReconciliationResult{Processed: len(lnurlWithdraws)}
	var failed atomic.Int64

	var group errgroup.Group
	group.SetLimit(svc.cfg.GetEnv().ReconciliationConcurrency)

	// As in ProcessFallbacks, cancellation applies between records only.
	callCtx := context.WithoutCancel(ctx)

	for _, lnurlWithdraw := range lnurlWithdraws {
		if ctx.Err() != nil {
			break
		}
		lnurlWithdraw := lnurlWithdraw
		group.Go(func() error {
			if !svc.deliverCallbacks(callCtx, &lnurlWithdraw) {
				failed.Add(1)
			}
			return nil
		})
	}
	group.Wait()

	result.Failed = int(failed.Load())
	result.Succeeded = result.Processed - result.Failed

	logger.Logger.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("Processed withdraw callbacks")
	return result
}

func (svc *withdrawService) deliverCallbacks(ctx context.Context, lnurlWithdraw *db.LnurlWithdraw) bool {
	ok := true

	if lnurlWithdraw.Paid && !lnurlWithdraw.PaidCalledback {
		ok = svc.deliverCallback(
			ctx, lnurlWithdraw, constants.WEBHOOK_EVENT_WITHDRAW_PAID,
			"paid_calledback",
		) && ok
	}
	if lnurlWithdraw.BatchRequestId != nil && !lnurlWithdraw.BatchedCalledback {
		ok = svc.deliverCallback(
			ctx, lnurlWithdraw, constants.WEBHOOK_EVENT_WITHDRAW_BATCHED,
			"batched_calledback",
		) && ok
	}
	if time.Now().After(lnurlWithdraw.ExpiresAt) && !lnurlWithdraw.ExpiredCalledback {
		ok = svc.deliverCallback(
			ctx, lnurlWithdraw, constants.WEBHOOK_EVENT_WITHDRAW_EXPIRED,
			"expired_calledback",
		) && ok
	}

	return ok
}

func (svc *withdrawService) deliverCallback(ctx context.Context, lnurlWithdraw *db.LnurlWithdraw, event string, flagColumn string) bool {
	payload := &withdrawWebhookPayload{
		Event:           event,
		LnurlWithdrawId: lnurlWithdraw.ID,
		Bolt11:          lnurlWithdraw.Bolt11,
		BatchRequestId:  lnurlWithdraw.BatchRequestId,
		ExpiresAt:       lnurlWithdraw.ExpiresAt,
		Timestamp:       time.Now().UTC(),
	}

	if err := svc.notifier.Post(ctx, lnurlWithdraw.WebhookUrl, payload); err != nil {
		logger.Logger.Warn().
			Err(err).
			Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
			Str("event", event).
			Msg("Webhook delivery failed, will retry on next pass")
		return false
	}

	err := svc.db.Model(&db.LnurlWithdraw{}).
		Where("id = ?", lnurlWithdraw.ID).
		Update(flagColumn, true).Error
	if err != nil {
		// Delivered but not recorded; the receiver is idempotent per
		// voucher+event, so the redelivery on the next pass is harmless.
		logger.Logger.Error().
			Err(err).
			Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
			Str("event", event).
			Msg("Failed to record callback flag")
		return false
	}

	logger.Logger.Info().
		Uint("lnurl_withdraw_id", lnurlWithdraw.ID).
		Str("event", event).
		Msg("Webhook delivered")
	return true
}

// ProcessBatchWebhook ingests a settlement report from the external batching
// engine. Unknown or deleted vouchers are skipped and reported, never fatal.
func (svc *withdrawService) ProcessBatchWebhook(ctx context.Context, payload *BatchWebhookPayload) (*BatchWebhookResult, error) {
	if payload.BatchRequestId == 0 {
		return nil, lnurl.NewValidationError("missing batchRequestId")
	}
	if len(payload.LnurlWithdrawIds) == 0 {
		return nil, lnurl.NewValidationError("empty lnurlWithdrawIds")
	}

	result := &BatchWebhookResult{
		Batched: []uint{},
		Skipped: []uint{},
	}

	for _, lnurlWithdrawId := range payload.LnurlWithdrawIds {
		// Only the first report assigns the batch; BatchRequestId is
		// monotonic once set.
		update := svc.db.Model(&db.LnurlWithdraw{}).
			Where("id = ?", lnurlWithdrawId).
			Where("deleted = ?", false).
			Where("batch_request_id IS NULL").
			Update("batch_request_id", payload.BatchRequestId)
		if update.Error != nil {
			return nil, update.Error
		}
		if update.RowsAffected == 0 {
			logger.Logger.Warn().
				Uint("lnurl_withdraw_id", lnurlWithdrawId).
				Uint("batch_request_id", payload.BatchRequestId).
				Msg("Skipping unknown, deleted or already-batched voucher in batch webhook")
			result.Skipped = append(result.Skipped, lnurlWithdrawId)
			continue
		}
		result.Batched = append(result.Batched, lnurlWithdrawId)
	}

	logger.Logger.Info().
		Uint("batch_request_id", payload.BatchRequestId).
		Int("batched", len(result.Batched)).
		Int("skipped", len(result.Skipped)).
		Msg("Processed batch webhook")
	return result, nil
}
