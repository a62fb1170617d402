package backup

import (
	"log/slog"

	"github.com/robfig/cron"
)

// Scheduler drives periodic scheduled backups on a cron expression.
type Scheduler struct {
	cron   *cron.Cron
	mgr    *Manager
	logger *slog.Logger
}

// NewScheduler builds a Scheduler that fires Create(TypeScheduled, ...) on
// the given six-field cron expression (e.g. "0 0 0 * * *" for daily at
// midnight; the leading field is seconds).
func NewScheduler(mgr *Manager, expr string, schemaVersion int, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, mgr: mgr, logger: logger}
	if err := c.AddFunc(expr, func() {
		meta, err := mgr.Create(TypeScheduled, schemaVersion, nil)
		if err != nil {
			logger.Error("scheduled backup failed", "error", err)
			return
		}
		logger.Info("scheduled backup created", "id", meta.ID, "size_bytes", meta.SizeBytes)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron scheduler in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron scheduler, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() { s.cron.Stop() }
