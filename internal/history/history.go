// Package history persists a record of each solver run (its configuration,
// wall-clock timings, and final state) through GORM, so a sqlite file is
// enough for a single-box run but swapping in postgres or mysql for a
// shared, concurrently-written deployment is a one-line config change.
package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/latticeforge/stencilmesh/pkg/config"
	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
	"github.com/latticeforge/stencilmesh/pkg/telemetry"
)

// RunRecord is one rank's row in the run_records table: the configuration
// it ran with, how long it took, and whether it finished cleanly.
type RunRecord struct {
	ID         uint   `gorm:"primarykey"`
	RunID      string `gorm:"index"`
	Rank       int
	GridN      int
	TimeSteps  int
	Workers    int
	Variant    string
	StartedAt  time.Time
	FinishedAt time.Time
	DurationMS int64
	Status     string // "running", "completed", "failed"
	Error      string
}

// TableName pins the table name so it doesn't depend on GORM's pluralization
// of a name future refactors might change.
func (RunRecord) TableName() string { return "run_records" }

// Store wraps a GORM connection for reading and writing RunRecord rows.
type Store struct {
	db *gorm.DB
}

// Open connects to the database named by cfg and runs its migration:
// postgres and mysql use a constructed DSN, sqlite opens (and creates) a
// local file.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)
		dialector = postgres.Open(dsn)
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		path := cfg.Database
		if path == "" {
			path = "stencilmesh.db"
		}
		dialector = sqlite.Open(path)
	default:
		return nil, apperrors.Wrap(apperrors.CodeConfigError, fmt.Sprintf("unsupported database type %q", cfg.Type), nil)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseErr, "open database", err)
	}

	if telemetry.Enabled() {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabaseErr, "enable database tracing", err)
		}
	}

	if cfg.Type == "postgres" || cfg.Type == "postgresql" || cfg.Type == "mysql" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabaseErr, "get underlying sql.DB", err)
		}
		maxConns := cfg.MaxConns
		if maxConns <= 0 {
			maxConns = 10
		}
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseErr, "migrate run_records", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open GORM connection, used by tests that stand
// up a go-sqlmock-backed *gorm.DB instead of a real file.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Start records the beginning of a run for one rank and returns the record
// id to pass to Finish.
func (s *Store) Start(ctx context.Context, runID string, rank, gridN, timeSteps, workers int, variant string) (uint, error) {
	rec := RunRecord{
		RunID:     runID,
		Rank:      rank,
		GridN:     gridN,
		TimeSteps: timeSteps,
		Workers:   workers,
		Variant:   variant,
		StartedAt: time.Now(),
		Status:    "running",
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.CodeDatabaseErr, "create run record", err)
	}
	return rec.ID, nil
}

// Finish marks a run record completed or failed and records its duration.
func (s *Store) Finish(ctx context.Context, id uint, started time.Time, runErr error) error {
	status := "completed"
	errMsg := ""
	if runErr != nil {
		status = "failed"
		errMsg = runErr.Error()
	}
	finished := time.Now()
	result := s.db.WithContext(ctx).Model(&RunRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"finished_at": finished,
		"duration_ms": finished.Sub(started).Milliseconds(),
		"status":      status,
		"error":       errMsg,
	})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseErr, "update run record", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("run record %d not found", id), apperrors.ErrNotFound)
	}
	return nil
}

// ByRunID returns every rank's record for a run, ordered by rank.
func (s *Store) ByRunID(ctx context.Context, runID string) ([]RunRecord, error) {
	var recs []RunRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("rank ASC").Find(&recs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseErr, "query run records", err)
	}
	return recs, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseErr, "get underlying sql.DB", err)
	}
	return sqlDB.Close()
}
