// Package bootstrap builds the process-level dependencies shared by the
// binaries in cmd/.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/timmy/trackr/internal/config"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/repository"
	"github.com/timmy/trackr/internal/repository/memstore"
	"github.com/timmy/trackr/internal/service"
)

// Stores is the persistence backend selected by database.driver.
type Stores struct {
	Campaigns service.CampaignStore
	Posts     service.PostStore
	History   service.HistoryStore
	Jobs      service.JobStore

	ping  func(ctx context.Context) error
	close func() error
}

// Ping checks the backend connection.
func (s *Stores) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the backend connection.
func (s *Stores) Close() error {
	return s.close()
}

// OpenStores opens the gorm repositories, or the in-memory store for the
// "memory" driver.
func OpenStores(cfg *config.DatabaseConfig) (*Stores, error) {
	if cfg.Driver == "memory" {
		logger.Warn("[DB] Using in-memory store, data is lost on exit")
		mem := memstore.New()
		return &Stores{
			Campaigns: mem.Campaigns(),
			Posts:     mem.Posts(),
			History:   mem.History(),
			Jobs:      mem.Jobs(),
			ping:      func(context.Context) error { return nil },
			close:     func() error { return nil },
		}, nil
	}

	db, err := repository.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	return &Stores{
		Campaigns: repository.NewCampaignRepository(db),
		Posts:     repository.NewPostRepository(db),
		History:   repository.NewHistoryRepository(db),
		Jobs:      repository.NewJobRepository(db),
		ping:      sqlDB.PingContext,
		close:     sqlDB.Close,
	}, nil
}

// NewLogger builds the process logger from the log section and installs it
// as the default.
func NewLogger(cfg *config.LogConfig, serviceName string) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.ServiceName = serviceName
	if cfg != nil {
		opts.Output = nil
		opts.Level = cfg.Level
		opts.Format = cfg.Format
		opts.Environment = cfg.Environment
		opts.File = cfg.File
		opts.FileOnly = cfg.FileOnly
		opts.MaxSizeMB = cfg.MaxSizeMB
		opts.MaxBackups = cfg.MaxBackups
		opts.MaxAgeDays = cfg.MaxAgeDays
		opts.Compress = cfg.Compress
	}
	log := logger.New(opts)
	logger.SetDefaultLogger(log)
	return log
}
