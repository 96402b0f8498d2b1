package service

import (
	"gorm.io/gorm"

	"github.com/Talej/lnurl-cypherapp/config"
	"github.com/Talej/lnurl-cypherapp/events"
	"github.com/Talej/lnurl-cypherapp/pay"
	"github.com/Talej/lnurl-cypherapp/withdraw"
)

type Service interface {
	GetConfig() config.Config
	GetDB() *gorm.DB
	GetWithdrawService() withdraw.WithdrawService
	GetPayService() pay.PayService
	GetEventPublisher() events.EventPublisher
	Shutdown()
}
