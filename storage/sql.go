// File: storage/sql.go
package storage

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/raykavin/stopkeep/core"
	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStorage implements the core.StopStorage interface using a SQL database via GORM
type SQLStorage struct {
	db *gorm.DB
}

// Config holds the configuration for SQL database connections
type Config struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a default configuration for SQL connections
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:    5,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// stopModel is the flat database row for a trailing stop record. Prices are
// stored as base-10 strings since they exceed int64 range.
type stopModel struct {
	OrderID      string `gorm:"primaryKey;size:66"`
	Oracle       string `gorm:"size:128"`
	InitialStop  string `gorm:"size:80"`
	CurrentStop  string `gorm:"size:80"`
	DistanceBps  int64
	UpdateEvery  int64 // nanoseconds
	ConfiguredAt time.Time
	LastUpdateAt time.Time `gorm:"index"`
}

// TableName overrides the GORM table name
func (stopModel) TableName() string {
	return "trailing_stops"
}

func toStopModel(stop *core.TrailingStop) stopModel {
	m := stopModel{
		OrderID:      stop.OrderID.Hex(),
		Oracle:       stop.Oracle.String(),
		DistanceBps:  stop.DistanceBps,
		UpdateEvery:  int64(stop.UpdateEvery),
		ConfiguredAt: stop.ConfiguredAt,
		LastUpdateAt: stop.LastUpdateAt,
	}
	if stop.InitialStop != nil {
		m.InitialStop = stop.InitialStop.String()
	}
	if stop.CurrentStop != nil {
		m.CurrentStop = stop.CurrentStop.String()
	}
	return m
}

func (m stopModel) toStop() (*core.TrailingStop, error) {
	initial, ok := new(big.Int).SetString(m.InitialStop, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse initial stop %q", m.InitialStop)
	}
	current, ok := new(big.Int).SetString(m.CurrentStop, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse current stop %q", m.CurrentStop)
	}

	return &core.TrailingStop{
		OrderID:      common.HexToHash(m.OrderID),
		Oracle:       core.OracleRef(m.Oracle),
		InitialStop:  initial,
		CurrentStop:  current,
		DistanceBps:  m.DistanceBps,
		UpdateEvery:  core.Duration(m.UpdateEvery),
		ConfiguredAt: m.ConfiguredAt,
		LastUpdateAt: m.LastUpdateAt,
	}, nil
}

// NewFromSQLite creates a new SQLite storage instance
func NewFromSQLite(dbPath string, config Config, opts ...gorm.Option) (*SQLStorage, error) {
	dialect := sqlite.Open(dbPath)
	return newFromSQL(dialect, config, opts...)
}

// newFromSQL creates a new SQL storage instance with the specified configuration
func newFromSQL(dialect gorm.Dialector, config Config, opts ...gorm.Option) (*SQLStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Apply configuration
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	// Auto migrate the trailing stop model
	if err = db.AutoMigrate(&stopModel{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStorage{db: db}, nil
}

// SaveStop stores a trailing stop record, replacing any existing record
// for the same order id
func (s *SQLStorage) SaveStop(ctx context.Context, stop *core.TrailingStop) error {
	tx := s.db.WithContext(ctx)

	model := toStopModel(stop)
	result := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to save trailing stop: %w", result.Error)
	}

	return nil
}

// Stop retrieves the trailing stop record for an order id
func (s *SQLStorage) Stop(ctx context.Context, id common.Hash) (*core.TrailingStop, error) {
	tx := s.db.WithContext(ctx)

	var model stopModel
	result := tx.First(&model, "order_id = ?", id.Hex())
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, core.ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to get trailing stop: %w", result.Error)
	}

	return model.toStop()
}

// Stops retrieves trailing stop records matching the provided filters,
// ordered by last update timestamp
func (s *SQLStorage) Stops(ctx context.Context, filters ...core.StopFilter) ([]*core.TrailingStop, error) {
	tx := s.db.WithContext(ctx)

	var models []stopModel
	result := tx.Order("last_update_at").Find(&models)
	if result.Error != nil && result.Error != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to fetch trailing stops: %w", result.Error)
	}

	stops := make([]*core.TrailingStop, 0, len(models))
	for _, model := range models {
		stop, err := model.toStop()
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}

	// Apply filters in memory
	if len(filters) > 0 {
		stops = lo.Filter(stops, func(stop *core.TrailingStop, _ int) bool {
			return core.MatchStopFilters(stop, filters)
		})
	}

	return stops, nil
}

// DeleteStop removes the trailing stop record for an order id
func (s *SQLStorage) DeleteStop(ctx context.Context, id common.Hash) error {
	tx := s.db.WithContext(ctx)

	result := tx.Delete(&stopModel{}, "order_id = ?", id.Hex())
	if result.Error != nil {
		return fmt.Errorf("failed to delete trailing stop: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return core.ErrNotConfigured
	}

	return nil
}

// StopsWithQuery allows for more customized querying using GORM's query builder
func (s *SQLStorage) StopsWithQuery(ctx context.Context, queryFn func(*gorm.DB) *gorm.DB) ([]*core.TrailingStop, error) {
	tx := s.db.WithContext(ctx)

	var models []stopModel
	result := queryFn(tx).Find(&models)

	if result.Error != nil && result.Error != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to execute query: %w", result.Error)
	}

	stops := make([]*core.TrailingStop, 0, len(models))
	for _, model := range models {
		stop, err := model.toStop()
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}

	return stops, nil
}

// WithTransaction executes the given function within a database transaction
func (s *SQLStorage) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Legacy function aliases for backward compatibility
// These can be removed once all code is updated to use the new functions

// FromSQLite creates a new SQLite storage instance (legacy function)
func FromSQLite(dbPath string, opts ...gorm.Option) (*SQLStorage, error) {
	return NewFromSQLite(dbPath, DefaultConfig(), opts...)
}

// FromSQL creates a new SQL storage instance (legacy function)
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (*SQLStorage, error) {
	return newFromSQL(dialect, DefaultConfig(), opts...)
}
