package db

import (
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Talej/lnurl-cypherapp/logger"
)

// NewDB opens the database identified by uri. A postgres:// URI selects the
// postgres driver; everything else is treated as an sqlite file path.
func NewDB(uri string, logDBQueries bool) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
	}
	if logDBQueries {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	isPostgres := strings.HasPrefix(uri, "postgres://") ||
		strings.HasPrefix(uri, "postgresql://")

	var gormDB *gorm.DB
	var err error
	if isPostgres {
		gormDB, err = gorm.Open(postgres.Open(uri), gormConfig)
	} else {
		gormDB, err = gorm.Open(sqlite.Open(uri), gormConfig)
	}
	if err != nil {
		return nil, err
	}

	if !isPostgres {
		// Serialize sqlite access; the engines coordinate purely through
		// conditional writes and busy retries are cheaper than corruption.
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)

		if err := gormDB.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
		if err := gormDB.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			return nil, err
		}
	}

	logger.Logger.Info().Str("uri", uri).Msg("Database opened")
	return gormDB, nil
}

func Stop(gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	closed := make(chan error, 1)
	go func() {
		closed <- sqlDB.Close()
	}()
	select {
	case err := <-closed:
		return err
	case <-time.After(5 * time.Second):
		logger.Logger.Warn().Msg("Timed out waiting for database to close")
		return nil
	}
}
