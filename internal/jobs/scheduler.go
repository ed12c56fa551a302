// Package jobs runs the background refresh loop: it watches the export
// files of all tracked apps and re-runs the import pipeline when one
// changes on disk.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"appinsights/internal/analytics"
	"appinsights/internal/config"
	"appinsights/internal/database"
	"appinsights/internal/ingest"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent refresh executions
	processingMutex sync.Mutex
	isProcessing    bool

	importer *ingest.Importer

	refreshTicker *time.Ticker
}

func NewScheduler(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
	}

	s.importer = ingest.NewImporter(cfg, dbManager, logger)

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins the refresh loop.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true
	s.startRefreshJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startRefreshJob() {
	interval := time.Duration(s.cfg.RefreshIntervalSeconds) * time.Second
	s.logger.Info("Starting export refresh job", slog.Duration("interval", interval))
	s.refreshTicker = time.NewTicker(interval)

	go func() {
		// Load whatever is on disk before the first tick.
		s.logger.Info("Running initial export refresh...")
		s.executeJobSafely("refresh", s.runRefresh)

		for {
			select {
			case <-s.refreshTicker.C:
				s.executeJobSafely("refresh", s.runRefresh)
			case <-s.ctx.Done():
				s.logger.Info("Export refresh job stopped")
				return
			}
		}
	}()
}

// runRefresh imports changed exports and refreshes the derived tables.
// Unchanged fingerprints make this loop cheap when nothing moved on disk.
func (s *Scheduler) runRefresh() error {
	summary, err := s.importer.Refresh(false)
	if err != nil {
		return err
	}

	imported := 0
	for _, app := range summary.Apps {
		if !app.Unchanged && !app.Missing {
			imported++
		}
	}
	if imported > 0 {
		analytics.ClearFilterCache()
		s.logger.Info("Export refresh imported new data",
			slog.Int("apps_imported", imported),
			slog.Int("flattened", summary.Flattened),
			slog.Int64("sessions", summary.Sessions))
	}

	return nil
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.refreshTicker != nil {
		s.refreshTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RefreshNow triggers a refresh outside the schedule.
func (s *Scheduler) RefreshNow() error {
	if !s.enabled {
		return nil
	}
	return s.runRefresh()
}
