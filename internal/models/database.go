package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/pkg/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// sqlitePragmas make file databases usable by concurrent request handlers:
// writers wait for the lock instead of failing, and BEGIN takes the write
// lock up front so two transactions never deadlock upgrading a read lock.
const sqlitePragmas = "_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"

// Open connects to the configured database without touching the global handle.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqlitePragmas
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger:         logger.NewGormLogger(200 * time.Millisecond),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite has a single writer; one connection keeps transactions in a queue
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func InitDB(cfg *config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Migrate creates or updates every table on db.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&UserSession{},
		&Project{},
		&ProjectMember{},
		&Task{},
		&ColumnLock{},
		&Activity{},
		&Label{},
		&TaskLabel{},
		&Watcher{},
		&Attachment{},
		&RateLimitWindow{},
	)
}

func AutoMigrate() error {
	return Migrate(DB)
}

func GetDB() *gorm.DB {
	return DB
}
