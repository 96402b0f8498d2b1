package migrations

import (
	"github.com/Talej/lnurl-cypherapp/db"
	"gorm.io/gorm"
)

func Migrate(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&db.UserConfig{},
		&db.LnurlWithdraw{},
		&db.LnurlPay{},
		&db.LnurlPayRequest{},
	)
}
