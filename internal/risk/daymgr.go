package risk

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/chidi150c/polyguard/internal/util"
)

// DayManager persists the accountant's window to a JSON snapshot file so a
// restart on the same UTC day resumes today's counters.
type DayManager struct {
	Path  string // snapshot file path
	clock util.Clock
	log   *zap.Logger

	mu       sync.Mutex // serializes snapshot writes
	lastDate string
}

func NewDayManager(path string, clock util.Clock, log *zap.Logger) *DayManager {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &DayManager{Path: path, clock: clock, log: util.OrNop(log)}
}

// InitAtStartup loads today's snapshot, or seeds a fresh window when the file
// is missing, unreadable, or from an earlier day.
func (dm *DayManager) InitAtStartup() *Accountant {
	now := dm.clock.Now()
	today := util.DayKey(now)

	var snap Window
	err := util.LoadJSON(dm.Path, &snap)
	switch {
	case errors.Is(err, util.ErrNoSnapshot):
		dm.log.Info("window_seeded", zap.String("date", today))
	case err != nil:
		dm.log.Warn("window_snapshot_unreadable", zap.String("path", dm.Path), zap.Error(err))
	case snap.Date != today:
		dm.log.Info("window_snapshot_stale", zap.String("snapshot_date", snap.Date), zap.String("date", today))
	default:
		dm.log.Info("window_loaded",
			zap.String("date", snap.Date),
			zap.Int("trades", snap.TradeCount),
			zap.String("volume_usd", snap.VolumeUSD.String()))
		acct := NewAccountantFrom(snap, dm.clock, dm.log)
		dm.lastDate = today
		return acct
	}

	acct := NewAccountant(dm.clock, dm.log)
	dm.lastDate = today
	if err := dm.PersistProgress(acct); err != nil {
		dm.log.Error("window_persist_failed", zap.Error(err))
	}
	return acct
}

// RolloverIfNeeded reports whether the UTC day changed since the last call and,
// if so, persists the fresh window right away. Call this once per tick.
func (dm *DayManager) RolloverIfNeeded(acct *Accountant) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	now := dm.clock.Now()
	if dm.lastDate == util.DayKey(now) {
		return false
	}
	w := acct.Current(now)
	dm.lastDate = w.Date
	if err := util.SaveJSON(dm.Path, w); err != nil {
		dm.log.Error("window_persist_failed", zap.Error(err))
	}
	dm.log.Info("trading_day_started", zap.String("date", w.Date), zap.Time("next_reset", util.NextOpen(now)))
	return true
}

// PersistProgress writes the current window to disk. Safe for concurrent
// callers: the window is read under the write lock, so the last write holds
// the newest counters.
func (dm *DayManager) PersistProgress(acct *Accountant) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return util.SaveJSON(dm.Path, acct.Current(dm.clock.Now()))
}
