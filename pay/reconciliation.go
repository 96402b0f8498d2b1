package pay

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

// LnurlPayRequestCallback marks the request settled and notifies the
// operator. Marking paid is the source of truth; the inline webhook is best
// effort and ProcessPayCallbacks redelivers anything that failed here.
func (svc *payService) LnurlPayRequestCallback(ctx context.Context, bolt11Label string) (*db.LnurlPayRequest, error) {
	var payRequest db.LnurlPayRequest
	result := svc.db.Where("bolt11_label = ?", bolt11Label).Limit(1).Find(&payRequest)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, lnurl.NewNotFoundError("no lnurl pay request with label %q", bolt11Label)
	}

	update := svc.db.Model(&db.LnurlPayRequest{}).
		Where("id = ?", payRequest.ID).
		Where("paid = ?", false).
		Update("paid", true)
	if update.Error != nil {
		return nil, update.Error
	}
	if update.RowsAffected == 0 {
		// Duplicate callback for an already-settled invoice.
		logger.Logger.Info().
			Str("bolt11_label", bolt11Label).
			Msg("Ignoring duplicate settlement callback")
		return &payRequest, nil
	}
	payRequest.Paid = true

	logger.Logger.Info().
		Str("bolt11_label", bolt11Label).
		Int64("amount_msat", payRequest.AmountMsat).
		Msg("Lnurl pay invoice settled")

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_PAY_SETTLED,
		Properties: map[string]interface{}{
			"lnurl_pay_request_id": payRequest.ID,
			"bolt11_label":         bolt11Label,
		},
	})

	var lnurlPay db.LnurlPay
	if err := svc.db.First(&lnurlPay, payRequest.LnurlPayId).Error; err != nil {
		logger.Logger.Error().
			Err(err).
			Uint("lnurl_pay_id", payRequest.LnurlPayId).
			Msg("Failed to load parent endpoint for settlement webhook")
		return &payRequest, nil
	}
	if lnurlPay.WebhookUrl != "" {
		svc.deliverSettlementWebhook(ctx, &payRequest, &lnurlPay)
	}

	return &payRequest, nil
}

// ProcessPayCallbacks redelivers settlement webhooks that failed inline, the
// same at-least-once contract the withdraw engine uses.
func (svc *payService) ProcessPayCallbacks(ctx context.Context) *ReconciliationResult {
	payRequests, err := queries.GetNonCalledbackLnurlPayRequests(svc.db)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to query non-calledback pay requests")
		return &ReconciliationResult{}
	}

	result := &ReconciliationResult{Processed: len(payRequests)}
	var failed atomic.Int64

	var group errgroup.Group
	group.SetLimit(svc.cfg.GetEnv().ReconciliationConcurrency)

	// Cancellation applies between records only; an in-flight delivery
	// runs to completion so its flag is recorded.
	callCtx := context.WithoutCancel(ctx)

	for _, payRequest := range payRequests {
		if ctx.Err() != nil {
			break
		}
		payRequest := payRequest
		group.Go(func() error {
			if !svc.deliverSettlementWebhook(callCtx, &payRequest, &payRequest.LnurlPay) {
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
		Msg("Processed pay callbacks")
	return result
}

func (svc *payService) deliverSettlementWebhook(ctx context.Context, payRequest *db.LnurlPayRequest, lnurlPay *db.LnurlPay) bool {
	payload := &payWebhookPayload{
		Event:             constants.WEBHOOK_EVENT_PAY_SETTLED,
		LnurlPayId:        lnurlPay.ID,
		LnurlPayRequestId: payRequest.ID,
		ExternalId:        lnurlPay.ExternalId,
		Bolt11Label:       payRequest.Bolt11Label,
		Bolt11:            payRequest.Bolt11,
		AmountMsat:        payRequest.AmountMsat,
		Timestamp:         time.Now().UTC(),
	}

	if err := svc.notifier.Post(ctx, lnurlPay.WebhookUrl, payload); err != nil {
		logger.Logger.Warn().
			Err(err).
			Str("bolt11_label", payRequest.Bolt11Label).
			Msg("Settlement webhook delivery failed, will retry on next pass")
		return false
	}

	err := svc.db.Model(&db.LnurlPayRequest{}).
		Where("id = ?", payRequest.ID).
		Update("paid_calledback", true).Error
	if err != nil {
		logger.Logger.Error().
			Err(err).
			Str("bolt11_label", payRequest.Bolt11Label).
			Msg("Failed to record settlement callback flag")
		return false
	}

	logger.Logger.Info().
		Str("bolt11_label", payRequest.Bolt11Label).
		Msg("Settlement webhook delivered")
	return true
}
