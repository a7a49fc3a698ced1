package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
)

// Maintenance keeps the database file compact. Every unit of work holds the shared
// operation lock for its whole lifetime, so a maintenance pass only runs between
// block heights.
type Maintenance interface {
	// Start begins periodic maintenance if enabled.
	Start(ctx context.Context) error
	// Stop stops periodic maintenance and waits for a running pass.
	Stop() error
	// AcquireOperationLock takes the shared lock and returns its release function.
	AcquireOperationLock() func()
	// Stats returns a summary of past passes.
	Stats() MaintenanceStats
	// RunMaintenance runs one pass immediately.
	RunMaintenance(ctx context.Context) error
}

// MaintenanceStats summarizes maintenance passes.
type MaintenanceStats struct {
	Runs           uint64
	LastRun        time.Time
	LastErr        error
	LastVacuumed   bool
	ReclaimedBytes int64
}

// NoOpMaintenance is used when maintenance is not configured.
type NoOpMaintenance struct{}

func (m *NoOpMaintenance) Start(context.Context) error { return nil }

func (m *NoOpMaintenance) Stop() error { return nil }

func (m *NoOpMaintenance) RunMaintenance(context.Context) error { return nil }

func (m *NoOpMaintenance) AcquireOperationLock() func() { return func() {} }

func (m *NoOpMaintenance) Stats() MaintenanceStats { return MaintenanceStats{} }

// WithOperationLock runs fn while holding the shared operation lock of m.
func WithOperationLock(m Maintenance, fn func() error) error {
	unlock := m.AcquireOperationLock()
	defer unlock()
	return fn()
}

// MaintenanceCoordinator serializes maintenance passes against units of work with
// a RWMutex: units of work share the read side, a pass takes the write side.
type MaintenanceCoordinator struct {
	db     *sql.DB
	dbPath string
	config config.MaintenanceConfig
	log    *logger.Logger

	opLock sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   MaintenanceStats
}

// NewMaintenanceCoordinator returns a no-op implementation when cfg is nil.
func NewMaintenanceCoordinator(dbPath string, db *sql.DB, cfg *config.MaintenanceConfig, log *logger.Logger) Maintenance {
	if cfg == nil {
		return &NoOpMaintenance{}
	}
	return newMaintenanceCoordinator(dbPath, db, *cfg, log)
}

func newMaintenanceCoordinator(dbPath string, db *sql.DB, cfg config.MaintenanceConfig, log *logger.Logger) *MaintenanceCoordinator {
	cfg.ApplyDefaults()

	return &MaintenanceCoordinator{
		db:     db,
		dbPath: dbPath,
		config: cfg,
		log:    log.WithComponent(common.ComponentMaintenance),
	}
}

// Start runs the startup pass if configured and then one pass per check interval.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.log.Info("database maintenance is disabled")
		return nil
	}

	ctx, m.cancel = context.WithCancel(ctx)

	if m.config.VacuumOnStartup {
		if err := m.RunMaintenance(ctx); err != nil {
			m.log.Warnw("startup maintenance failed", "error", err)
		}
	}

	m.wg.Add(1)
	go m.loop(ctx)

	m.log.Infow("database maintenance started",
		"interval", m.config.CheckInterval.Duration,
		"wal_checkpoint_mode", m.config.WALCheckpointMode,
		"vacuum_free_ratio", m.config.VacuumFreeRatio,
	)
	return nil
}

// Stop is safe to call when Start was never called.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.wg.Wait()
	m.log.Info("database maintenance stopped")
	return nil
}

func (m *MaintenanceCoordinator) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RunMaintenance(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Warnw("periodic maintenance failed", "error", err)
			}
		}
	}
}

// RunMaintenance waits for the running unit of work to commit, then checkpoints
// the WAL, refreshes planner statistics and vacuums when enough pages are free.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) error {
	start := time.Now()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	sizeBefore, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnw("failed to read database size", "error", err)
	}

	var errs []error
	if err := m.walCheckpoint(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.optimize(ctx); err != nil {
		errs = append(errs, err)
	}
	vacuumed, err := m.vacuumIfFragmented(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	sizeAfter, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnw("failed to read database size", "error", err)
	}
	freeRatio, err := m.freeRatio(ctx)
	if err == nil {
		dbSizeLog(sizeAfter, freeRatio)
	}

	passErr := errors.Join(errs...)
	reclaimed := max(sizeBefore-sizeAfter, 0)

	m.statsMu.Lock()
	m.stats.Runs++
	m.stats.LastRun = time.Now().UTC()
	m.stats.LastErr = passErr
	m.stats.LastVacuumed = vacuumed
	m.stats.ReclaimedBytes += reclaimed
	m.statsMu.Unlock()

	duration := time.Since(start)
	maintenancePassLog(duration)

	if passErr != nil {
		m.log.Warnw("maintenance finished with errors", "duration", duration, "error", passErr)
		return passErr
	}

	m.log.Infow("maintenance finished",
		"duration", duration,
		"vacuumed", vacuumed,
		"reclaimed_mb", common.BytesToMB(uint64(reclaimed)),
		"size_bytes", sizeAfter,
	)
	return nil
}

func (m *MaintenanceCoordinator) walCheckpoint(ctx context.Context) error {
	var mode string
	if err := m.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		maintenanceStepInc(stepWALCheckpoint, "error")
		return fmt.Errorf("failed to read journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		maintenanceStepInc(stepWALCheckpoint, "skipped")
		return nil
	}

	var busy, logFrames, checkpointed int
	query := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.config.WALCheckpointMode)
	if err := m.db.QueryRowContext(ctx, query).Scan(&busy, &logFrames, &checkpointed); err != nil {
		maintenanceStepInc(stepWALCheckpoint, "error")
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}

	maintenanceStepInc(stepWALCheckpoint, "success")
	m.log.Debugw("wal checkpoint",
		"mode", m.config.WALCheckpointMode,
		"busy", busy,
		"log_frames", logFrames,
		"checkpointed_frames", checkpointed,
	)
	return nil
}

func (m *MaintenanceCoordinator) optimize(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		maintenanceStepInc(stepOptimize, "error")
		return fmt.Errorf("optimize failed: %w", err)
	}
	maintenanceStepInc(stepOptimize, "success")
	return nil
}

// vacuumIfFragmented rebuilds the file when the free page ratio reaches the
// configured threshold. The store is append-mostly, so this is rare.
func (m *MaintenanceCoordinator) vacuumIfFragmented(ctx context.Context) (bool, error) {
	ratio, err := m.freeRatio(ctx)
	if err != nil {
		maintenanceStepInc(stepVacuum, "error")
		return false, err
	}
	if ratio < m.config.VacuumFreeRatio {
		maintenanceStepInc(stepVacuum, "skipped")
		return false, nil
	}

	if err := Vacuum(m.db); err != nil {
		maintenanceStepInc(stepVacuum, "error")
		return false, err
	}
	maintenanceStepInc(stepVacuum, "success")
	return true, nil
}

func (m *MaintenanceCoordinator) freeRatio(ctx context.Context) (float64, error) {
	var pages, free int64
	if err := m.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := m.db.QueryRowContext(ctx, "PRAGMA freelist_count").Scan(&free); err != nil {
		return 0, fmt.Errorf("failed to read freelist count: %w", err)
	}
	if pages == 0 {
		return 0, nil
	}
	return float64(free) / float64(pages), nil
}

// AcquireOperationLock takes the shared side of the lock.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

// Stats returns a summary of past passes.
func (m *MaintenanceCoordinator) Stats() MaintenanceStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}
