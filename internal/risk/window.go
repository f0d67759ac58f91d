package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chidi150c/polyguard/internal/util"
)

// day is one UTC day's counters. Once retired it is never written again.
type day struct {
	mu      sync.Mutex
	w       Window
	retired bool
}

// Accountant owns the active day's usage counters. Rollover happens lazily on
// access: there is no background timer.
type Accountant struct {
	cur   atomic.Pointer[day]
	clock util.Clock
	log   *zap.Logger
}

func NewAccountant(clock util.Clock, log *zap.Logger) *Accountant {
	if clock == nil {
		clock = util.RealClock{}
	}
	a := &Accountant{clock: clock, log: util.OrNop(log)}
	a.cur.Store(&day{w: newWindow(util.DayKey(clock.Now()))})
	return a
}

// NewAccountantFrom rehydrates the accountant from a persisted window. A
// snapshot from an earlier date is superseded on first access.
func NewAccountantFrom(snap Window, clock util.Clock, log *zap.Logger) *Accountant {
	a := NewAccountant(clock, log)
	if snap.Date == "" {
		return a
	}
	a.cur.Store(&day{w: snap.clone()})
	return a
}

// acquire returns the locked day for date, rolling the active day over when
// it belongs to an earlier date. The caller must unlock.
func (a *Accountant) acquire(date string) *day {
	for {
		d := a.cur.Load()
		d.mu.Lock()
		if d.retired {
			d.mu.Unlock()
			continue
		}
		if d.w.Date == date {
			return d
		}
		if d.w.Date > date {
			// A caller with a stale clock reading; account to the live day.
			return d
		}
		fresh := &day{w: newWindow(date)}
		if a.cur.CompareAndSwap(d, fresh) {
			d.retired = true
			a.log.Info("window_rolled",
				zap.String("from", d.w.Date),
				zap.String("to", date),
				zap.Int("trades", d.w.TradeCount),
				zap.String("volume_usd", d.w.VolumeUSD.String()))
		}
		d.mu.Unlock()
	}
}

// Current returns a copy of the window for now's UTC date.
func (a *Accountant) Current(now time.Time) Window {
	d := a.acquire(util.DayKey(now))
	defer d.mu.Unlock()
	return d.w.clone()
}

// Record adds a confirmed trade to the window active when Record is invoked.
// The trade's own timestamp is not used to pick the window.
func (a *Accountant) Record(t Trade) Window {
	d := a.acquire(util.DayKey(a.clock.Now()))
	defer d.mu.Unlock()

	amt := t.AmountUSD.Abs()
	d.w.TradeCount++
	d.w.VolumeUSD = d.w.VolumeUSD.Add(amt)
	switch t.Side {
	case Sell:
		d.w.SellVolumeUSD = d.w.SellVolumeUSD.Add(amt)
	default:
		d.w.BuyVolumeUSD = d.w.BuyVolumeUSD.Add(amt)
	}
	d.w.Positions[t.MarketID] = d.w.Positions[t.MarketID].Add(amt.Mul(t.Side.Sign()))

	a.log.Debug("trade_recorded",
		zap.String("market", t.MarketID),
		zap.String("side", string(t.Side)),
		zap.String("amount_usd", amt.String()),
		zap.Int("trades_today", d.w.TradeCount))
	return d.w.clone()
}

// Now exposes the accountant's clock so callers snapshot the same day it records to.
func (a *Accountant) Now() time.Time { return a.clock.Now() }
