package pay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

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

type payService struct {
	db             *gorm.DB
	cfg            config.Config
	lnClient       lnclient.LNClient
	notifier       webhooks.Notifier
	eventPublisher events.EventPublisher
}

func NewPayService(
	gormDB *gorm.DB,
	cfg config.Config,
	lnClient lnclient.LNClient,
	notifier webhooks.Notifier,
	eventPublisher events.EventPublisher,
) *payService {
	return &payService{
		db:             gormDB,
		cfg:            cfg,
		lnClient:       lnClient,
		notifier:       notifier,
		eventPublisher: eventPublisher,
	}
}

func (svc *payService) CreateLnurlPay(ctx context.Context, req *CreateLnurlPayRequest) (*LnurlPayResult, error) {
	if err := validateLnurlPay(req); err != nil {
		return nil, err
	}

	lnurlPay := db.LnurlPay{
		ExternalId:  req.ExternalId,
		MinSendable: req.MinSendable,
		MaxSendable: req.MaxSendable,
		Metadata:    []byte(req.Metadata),
		WebhookUrl:  req.WebhookUrl,
	}
	// Upsert by externalId: re-creating an existing endpoint updates it.
	err := svc.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"min_sendable", "max_sendable", "metadata", "webhook_url", "deleted",
		}),
	}).Create(&lnurlPay).Error
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to create lnurl pay")
		return nil, err
	}

	logger.Logger.Info().
		Str("external_id", req.ExternalId).
		Msg("Created lnurl pay endpoint")
	return svc.resultByExternalId(req.ExternalId)
}

func (svc *payService) UpdateLnurlPay(ctx context.Context, req *CreateLnurlPayRequest) (*LnurlPayResult, error) {
	if err := validateLnurlPay(req); err != nil {
		return nil, err
	}

	// A soft-deleted endpoint is not updatable; re-creating it is the only
	// way to resurrect it.
	var lnurlPay db.LnurlPay
	result := svc.db.
		Where("external_id = ?", req.ExternalId).
		Where("deleted = ?", false).
		Limit(1).
		Find(&lnurlPay)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, lnurl.NewNotFoundError("no lnurl pay with externalId %q", req.ExternalId)
	}

	err := svc.db.Model(&lnurlPay).Updates(map[string]interface{}{
		"min_sendable": req.MinSendable,
		"max_sendable": req.MaxSendable,
		"metadata":     []byte(req.Metadata),
		"webhook_url":  req.WebhookUrl,
	}).Error
	if err != nil {
		return nil, err
	}

	return svc.resultByExternalId(req.ExternalId)
}

func (svc *payService) DeleteLnurlPay(ctx context.Context, lnurlPayId uint) (*LnurlPayResult, error) {
	lnurlPay, err := svc.getById(lnurlPayId)
	if err != nil {
		return nil, err
	}

	// Soft delete, consistent with the voucher policy, and idempotent.
	if !lnurlPay.Deleted {
		if err := svc.db.Model(lnurlPay).Update("deleted", true).Error; err != nil {
			return nil, err
		}
		lnurlPay.Deleted = true
	}

	logger.Logger.Info().Uint("lnurl_pay_id", lnurlPayId).Msg("Deleted lnurl pay endpoint")
	return svc.toResult(lnurlPay)
}

func (svc *payService) GetLnurlPay(ctx context.Context, lnurlPayId uint) (*LnurlPayResult, error) {
	lnurlPay, err := svc.getById(lnurlPayId)
	if err != nil {
		return nil, err
	}
	return svc.toResult(lnurlPay)
}

func (svc *payService) GetLnurlPayRequest(ctx context.Context, lnurlPayRequestId uint) (*db.LnurlPayRequest, error) {
	var payRequest db.LnurlPayRequest
	err := svc.db.First(&payRequest, lnurlPayRequestId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lnurl.NewNotFoundError("no lnurl pay request with id %d", lnurlPayRequestId)
		}
		return nil, err
	}
	return &payRequest, nil
}

func (svc *payService) DeleteLnurlPayRequest(ctx context.Context, lnurlPayRequestId uint) (*db.LnurlPayRequest, error) {
	payRequest, err := svc.GetLnurlPayRequest(ctx, lnurlPayRequestId)
	if err != nil {
		return nil, err
	}
	if err := svc.db.Delete(&db.LnurlPayRequest{}, lnurlPayRequestId).Error; err != nil {
		return nil, err
	}
	return payRequest, nil
}

func (svc *payService) LnServicePaySpecs(ctx context.Context, externalId string) (*lnurl.PaySpecsResponse, error) {
	lnurlPay, err := svc.getActiveByExternalId(externalId)
	if err != nil {
		return nil, err
	}

	return &lnurl.PaySpecsResponse{
		Tag:         constants.TAG_PAY_REQUEST,
		Callback:    svc.cfg.PayRequestCallbackUrl(lnurlPay.ExternalId),
		MinSendable: lnurlPay.MinSendable,
		MaxSendable: lnurlPay.MaxSendable,
		Metadata:    json.RawMessage(lnurlPay.Metadata),
	}, nil
}

func (svc *payService) LnServicePayRequest(ctx context.Context, externalId string, amountMsat int64) (*lnurl.PayRequestResponse, error) {
	lnurlPay, err := svc.getActiveByExternalId(externalId)
	if err != nil {
		return nil, err
	}

	if amountMsat < lnurlPay.MinSendable || amountMsat > lnurlPay.MaxSendable {
		return nil, lnurl.NewValidationError(
			"amount %d outside sendable bounds [%d, %d]",
			amountMsat, lnurlPay.MinSendable, lnurlPay.MaxSendable,
		)
	}

	// The invoice commits to the metadata the wallet saw in step 3; without
	// this binding the metadata could be substituted after the fact.
	metadataHash := sha256.Sum256(lnurlPay.Metadata)

	suffix, err := utils.RandomHex(constants.BOLT11_LABEL_LENGTH)
	if err != nil {
		return nil, err
	}
	bolt11Label := lnurlPay.ExternalId + "-" + suffix

	invoice, err := svc.lnClient.MakeInvoice(ctx, &lnclient.MakeInvoiceRequest{
		Label:           bolt11Label,
		AmountMsat:      amountMsat,
		DescriptionHash: hex.EncodeToString(metadataHash[:]),
		CallbackUrl:     svc.cfg.PayWebhookUrl(bolt11Label),
	})
	if err != nil {
		logger.Logger.Error().
			Err(err).
			Str("external_id", externalId).
			Msg("Failed to generate invoice")
		return nil, lnurl.NewGatewayError(err, "failed to generate invoice")
	}

	_, err = svc.SaveLnurlPayRequest(&db.LnurlPayRequest{
		LnurlPayId:  lnurlPay.ID,
		Bolt11Label: bolt11Label,
		AmountMsat:  amountMsat,
		Bolt11:      invoice.Bolt11,
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("external_id", externalId).
		Str("bolt11_label", bolt11Label).
		Int64("amount_msat", amountMsat).
		Msg("Issued lnurl pay invoice")

	return &lnurl.PayRequestResponse{
		Pr:     invoice.Bolt11,
		Routes: []string{},
	}, nil
}

// SaveLnurlPayRequest upserts an issuance record: by surrogate id when
// present, else by bolt11 label. Repeated saves for the same label update the
// existing row rather than duplicating it.
func (svc *payService) SaveLnurlPayRequest(payRequest *db.LnurlPayRequest) (*db.LnurlPayRequest, error) {
	var existing db.LnurlPayRequest
	var result *gorm.DB
	if payRequest.ID != 0 {
		result = svc.db.Where("id = ?", payRequest.ID).Limit(1).Find(&existing)
	} else {
		result = svc.db.Where("bolt11_label = ?", payRequest.Bolt11Label).Limit(1).Find(&existing)
	}
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected > 0 {
		payRequest.ID = existing.ID
		payRequest.CreatedAt = existing.CreatedAt
	}
	if err := svc.db.Save(payRequest).Error; err != nil {
		return nil, err
	}
	return payRequest, nil
}

func (svc *payService) PayLnAddress(ctx context.Context, req *PayLnAddressRequest) (*lnurl.PayRequestResponse, error) {
	externalId := req.Address
	if at := strings.Index(externalId, "@"); at >= 0 {
		domain := externalId[at+1:]
		if configured := svc.cfg.GetEnv().LnAddressDomain; configured != "" && domain != configured {
			return nil, lnurl.NewValidationError("address domain %q is not served here", domain)
		}
		externalId = externalId[:at]
	}
	if externalId == "" {
		return nil, lnurl.NewValidationError("missing address")
	}

	// Specs first so an unknown identity fails before an invoice is issued.
	if _, err := svc.LnServicePaySpecs(ctx, externalId); err != nil {
		return nil, err
	}

	return svc.LnServicePayRequest(ctx, externalId, req.AmountMsat)
}

func (svc *payService) getById(lnurlPayId uint) (*db.LnurlPay, error) {
	var lnurlPay db.LnurlPay
	err := svc.db.First(&lnurlPay, lnurlPayId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lnurl.NewNotFoundError("no lnurl pay with id %d", lnurlPayId)
		}
		return nil, err
	}
	return &lnurlPay, nil
}

func (svc *payService) getActiveByExternalId(externalId string) (*db.LnurlPay, error) {
	var lnurlPay db.LnurlPay
	result := svc.db.
		Where("external_id = ?", externalId).
		Where("deleted = ?", false).
		Limit(1).
		Find(&lnurlPay)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, lnurl.NewProtocolError("unknown pay endpoint %q", externalId)
	}
	return &lnurlPay, nil
}

func (svc *payService) resultByExternalId(externalId string) (*LnurlPayResult, error) {
	var lnurlPay db.LnurlPay
	if err := svc.db.Where("external_id = ?", externalId).First(&lnurlPay).Error; err != nil {
		return nil, err
	}
	return svc.toResult(&lnurlPay)
}

func (svc *payService) toResult(lnurlPay *db.LnurlPay) (*LnurlPayResult, error) {
	encoded, err := lnurl.EncodeURL(svc.cfg.PaySpecsUrl(lnurlPay.ExternalId))
	if err != nil {
		return nil, err
	}
	return &LnurlPayResult{
		LnurlPay: *lnurlPay,
		Lnurl:    encoded,
	}, nil
}

func validateLnurlPay(req *CreateLnurlPayRequest) error {
	if req.ExternalId == "" {
		return lnurl.NewValidationError("missing externalId")
	}
	if req.MinSendable < 0 || req.MaxSendable < 0 {
		return lnurl.NewValidationError("sendable bounds must not be negative")
	}
	if req.MinSendable > req.MaxSendable {
		return lnurl.NewValidationError(
			"minSendable (%d) must not exceed maxSendable (%d)",
			req.MinSendable, req.MaxSendable,
		)
	}
	if len(req.Metadata) == 0 || !json.Valid(req.Metadata) {
		return lnurl.NewValidationError("metadata must be valid JSON")
	}
	return nil
}
