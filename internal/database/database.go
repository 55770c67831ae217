package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/config"
	"visitorinsights/internal/users"
	"visitorinsights/internal/visitors"
)

// DBManager owns the gorm connection and the schema migrations.
type DBManager struct {
	cfg    *config.Config
	logger *slog.Logger

	mu sync.Mutex
	db *gorm.DB
}

// NewDBManager creates a database manager. Call Init before use.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return &DBManager{cfg: cfg, logger: logger}
}

// NewDBManagerWithConnection wraps an already open connection, as used by
// tests and tools that manage their own database.
func NewDBManagerWithConnection(db *gorm.DB, logger *slog.Logger) *DBManager {
	return &DBManager{db: db, logger: logger}
}

// Init opens the configured database.
func (dm *DBManager) Init() error {
	_, err := dm.Connect()
	return err
}

// Connect opens the connection if needed and returns it.
func (dm *DBManager) Connect() (*gorm.DB, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db != nil {
		return dm.db, nil
	}
	if dm.cfg == nil {
		return nil, gorm.ErrInvalidDB
	}

	gormCfg := &gorm.Config{Logger: dm.gormLogger()}

	var (
		db  *gorm.DB
		err error
	)
	switch dm.cfg.DatabaseType {
	case config.PostgresDatabase:
		db, err = gorm.Open(postgres.Open(dm.cfg.DatabaseURL), gormCfg)
	default:
		db, err = dm.openSQLite(gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dm.cfg.DatabaseType, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(dm.cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(dm.cfg.GetMaxIdleConns())
	sqlDB.SetConnMaxLifetime(time.Hour)

	dm.db = db
	dm.logger.Info("Database connected",
		slog.String("type", dm.cfg.DatabaseType),
		slog.Int("max_open_conns", dm.cfg.GetMaxOpenConns()))
	return db, nil
}

func (dm *DBManager) openSQLite(gormCfg *gorm.Config) (*gorm.DB, error) {
	path := dm.cfg.GetDatabasePath()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	// _txlock=immediate takes the write lock at BEGIN so concurrent refreshes
	// wait on busy_timeout instead of failing with SQLITE_BUSY mid-transaction.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path)
	return gorm.Open(sqlite.Open(dsn), gormCfg)
}

func (dm *DBManager) gormLogger() logger.Interface {
	if dm.cfg != nil && dm.cfg.IsTest() {
		return logger.Default.LogMode(logger.Silent)
	}
	return logger.Default.LogMode(logger.Warn)
}

// GetConnection returns the open connection, or nil before Init.
func (dm *DBManager) GetConnection() *gorm.DB {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.db
}

// Models lists every table the application owns.
func Models() []any {
	models := []any{&users.User{}, &visitors.Record{}}
	return append(models, analytics.Models()...)
}

// MigrateDatabase creates or updates the application tables.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// CheckpointWAL runs a WAL checkpoint on sqlite. It is a no-op on postgres.
func (dm *DBManager) CheckpointWAL(mode string) error {
	db := dm.GetConnection()
	if db == nil || db.Dialector.Name() != "sqlite" {
		return nil
	}
	return db.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)).Error
}

// Ping checks that the database answers within ctx.
func (dm *DBManager) Ping(ctx context.Context) error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (dm *DBManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db == nil {
		return nil
	}
	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	dm.db = nil
	return sqlDB.Close()
}
