package pipeline

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Watchdog warns when a running runner has not completed a block for too long, which
// usually means the upstream block stream dried up.
type Watchdog struct {
	logger     *zap.Logger
	status     *Status
	stallAfter time.Duration
	now        func() time.Time
}

func NewWatchdog(logger *zap.Logger, status *Status, stallAfter time.Duration) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		logger:     logger.Named("watchdog"),
		status:     status,
		stallAfter: stallAfter,
		now:        time.Now,
	}
}

// Check logs the runner's progress and reports whether it is stalled.
// A stopped runner is not stalled; its failure was already reported.
func (w *Watchdog) Check() bool {
	snap := w.status.Snapshot()
	if !snap.Running {
		return false
	}

	since := snap.Started
	if snap.LastBlockAt != nil {
		since = *snap.LastBlockAt
	}
	idle := w.now().Sub(since)

	fields := []zap.Field{
		zap.Uint64("blocks", snap.Blocks),
		zap.Duration("idle", idle),
	}
	if snap.LastBlock != nil {
		fields = append(fields, zap.Uint64("lastBlock", *snap.LastBlock))
	}

	if idle > w.stallAfter {
		w.logger.Warn("No block processed recently", fields...)
		return true
	}
	w.logger.Debug("Runner progress", fields...)
	return false
}

// Schedule registers Check on c with a seconds-aware cron spec.
func (w *Watchdog) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() { w.Check() })
}
