package queries

import (
	"time"

	"gorm.io/gorm"

	"github.com/Talej/lnurl-cypherapp/db"
)

// GetNonCalledbackLnurlWithdraws returns vouchers that owe the operator at
// least one webhook: not deleted, webhook URL configured, and either paid but
// not yet called back, batched but not yet called back, or expired but not
// yet called back.
func GetNonCalledbackLnurlWithdraws(tx *gorm.DB, now time.Time) ([]db.LnurlWithdraw, error) {
	var withdraws []db.LnurlWithdraw
	err := tx.
		Where("deleted = ?", false).
		Where("webhook_url != ''").
		Where(
			tx.Where("paid = ? AND paid_calledback = ?", true, false).
				Or("batch_request_id IS NOT NULL AND batched_calledback = ?", false).
				Or("expires_at < ? AND expired_calledback = ?", now, false),
		).
		Find(&withdraws).Error
	if err != nil {
		return nil, err
	}
	return withdraws, nil
}

// GetFallbackLnurlWithdraws returns vouchers eligible for the on-chain
// fallback: not deleted, unclaimed, expired, fallback not yet issued and a
// fallback address configured.
func GetFallbackLnurlWithdraws(tx *gorm.DB, now time.Time) ([]db.LnurlWithdraw, error) {
	var withdraws []db.LnurlWithdraw
	err := tx.
		Where("deleted = ?", false).
		Where("paid = ?", false).
		Where("expires_at < ?", now).
		Where("fallback_done = ?", false).
		Where("btc_fallback_address != ''").
		Find(&withdraws).Error
	if err != nil {
		return nil, err
	}
	return withdraws, nil
}

// GetNonCalledbackLnurlPayRequests returns settled pay requests whose parent
// endpoint has a webhook URL but whose settlement notification has not been
// delivered yet.
func GetNonCalledbackLnurlPayRequests(tx *gorm.DB) ([]db.LnurlPayRequest, error) {
	var payRequests []db.LnurlPayRequest
	err := tx.
		Joins("LnurlPay").
		Where("lnurl_pay_requests.paid = ?", true).
		Where("lnurl_pay_requests.paid_calledback = ?", false).
		Where(`"LnurlPay".webhook_url != ''`).
		Where(`"LnurlPay".deleted = ?`, false).
		Find(&payRequests).Error
	if err != nil {
		return nil, err
	}
	return payRequests, nil
}
