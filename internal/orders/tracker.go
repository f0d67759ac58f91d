package orders

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chidi150c/polyguard/internal/risk"
	"github.com/chidi150c/polyguard/internal/util"
)

// Recorder receives the filled amount of an order once it reaches a terminal state.
type Recorder interface {
	Record(t risk.Trade) risk.Window
}

type entry struct {
	mu sync.Mutex
	o  Order
}

// Tracker owns per-order state. The map is guarded by mu; each order by its
// own entry lock so unrelated orders never serialize on each other.
type Tracker struct {
	mu     sync.RWMutex
	orders map[string]*entry

	rec   Recorder
	clock util.Clock
	log   *zap.Logger

	// MinOrderSize is the venue minimum enforced at Create.
	MinOrderSize decimal.Decimal
}

func NewTracker(rec Recorder, clock util.Clock, log *zap.Logger) *Tracker {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Tracker{
		orders:       make(map[string]*entry),
		rec:          rec,
		clock:        clock,
		log:          util.OrNop(log),
		MinOrderSize: risk.DefaultMinOrderSize,
	}
}

func (req NewOrder) validate(minSize decimal.Decimal) error {
	if err := util.ValidateStruct(req); err != nil {
		return err
	}
	if req.AmountUSD.LessThan(minSize) {
		return util.Invalid("amountUsd", "must be at least %s", minSize.StringFixed(2))
	}
	if (req.Type == "" || req.Type == TypeGTC) && req.LimitPrice == nil {
		return util.Invalid("price", "is required for GTC orders")
	}
	return nil
}

// Create registers an admitted order in CREATED state.
func (t *Tracker) Create(req NewOrder) (Order, error) {
	if err := req.validate(t.MinOrderSize); err != nil {
		return Order{}, err
	}
	typ := req.Type
	if typ == "" {
		typ = TypeGTC
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := t.clock.Now()
	o := Order{
		ID:           id,
		MarketID:     req.MarketID,
		Side:         req.Side,
		AmountUSD:    req.AmountUSD,
		Type:         typ,
		Status:       StatusCreated,
		FilledSize:   decimal.Zero,
		OriginalSize: req.AmountUSD,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if typ != TypeMarket && req.LimitPrice != nil {
		p := *req.LimitPrice
		o.LimitPrice = &p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.orders[id]; exists {
		return Order{}, fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
	}
	t.orders[id] = &entry{o: o}

	t.log.Info("order_created",
		zap.String("order_id", id),
		zap.String("market", o.MarketID),
		zap.String("side", string(o.Side)),
		zap.String("amount_usd", o.AmountUSD.String()),
		zap.String("type", string(o.Type)))
	return o, nil
}

// Restore loads previously persisted orders, e.g. at startup.
func (t *Tracker) Restore(list []Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range list {
		if o.ID == "" || !o.Status.Valid() {
			return util.Invalid("order", "cannot restore %q with status %q", o.ID, o.Status)
		}
		if o.FilledSize.GreaterThan(o.OriginalSize) || o.FilledSize.IsNegative() {
			return fmt.Errorf("restore %s: %w", o.ID, ErrExceedsOriginalSize)
		}
		t.orders[o.ID] = &entry{o: o}
	}
	t.log.Info("orders_restored", zap.Int("count", len(list)))
	return nil
}

func (t *Tracker) lookup(id string) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.orders[id]
}

// Get returns a copy of the order.
func (t *Tracker) Get(id string) (Order, bool) {
	e := t.lookup(id)
	if e == nil {
		return Order{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.o, true
}

func (t *Tracker) entries() []*entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*entry, 0, len(t.orders))
	for _, e := range t.orders {
		out = append(out, e)
	}
	return out
}

// List returns matching orders, oldest first.
func (t *Tracker) List(f Filter) []Order {
	var out []Order
	for _, e := range t.entries() {
		e.mu.Lock()
		o := e.o
		e.mu.Unlock()

		if f.MarketID != "" && o.MarketID != f.MarketID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.OpenOnly && o.Status.Terminal() {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Exposure is the signed USD exposure in a market: filled size of every
// order plus the unfilled remainder of orders still working.
func (t *Tracker) Exposure(marketID string) decimal.Decimal {
	total := decimal.Zero
	for _, e := range t.entries() {
		e.mu.Lock()
		o := e.o
		e.mu.Unlock()
		if o.MarketID != marketID {
			continue
		}
		size := o.FilledSize
		if !o.Status.Terminal() {
			size = size.Add(o.Remaining())
		}
		total = total.Add(size.Mul(o.Side.Sign()))
	}
	return total
}

// Pending sums orders whose usage has not reached the accountant yet: every
// non-terminal order, at its full size, since fills are recorded only once
// the order is terminal.
func (t *Tracker) Pending() (volume decimal.Decimal, count int) {
	volume = decimal.Zero
	for _, e := range t.entries() {
		e.mu.Lock()
		o := e.o
		e.mu.Unlock()
		if o.Status.Terminal() || o.Recorded {
			continue
		}
		volume = volume.Add(o.OriginalSize)
		count++
	}
	return volume, count
}

// Apply moves an order to the externally reported status.
func (t *Tracker) Apply(u StatusUpdate) (Result, error) {
	if err := util.ValidateStruct(u); err != nil {
		return Result{}, err
	}
	if !u.Status.Valid() {
		return Result{}, util.Invalid("reportedStatus", "unknown status %q", u.Status)
	}
	if u.FilledDelta.IsNegative() {
		return Result{}, util.Invalid("filledDelta", "must not be negative")
	}
	e := t.lookup(u.OrderID)
	if e == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrOrderNotFound, u.OrderID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	o := &e.o
	res := Result{Previous: o.Status}

	if o.Status.Terminal() {
		if u.Status == o.Status {
			// Venue redelivery of the same terminal update.
			res.Duplicate = true
			res.Order = *o
			t.log.Debug("order_status_duplicate", zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
			return res, nil
		}
		return res, fmt.Errorf("%w: %s -> %s (order %s is terminal)", ErrInvalidTransition, o.Status, u.Status, o.ID)
	}
	if u.Status == o.Status && u.FilledDelta.IsZero() {
		res.Duplicate = true
		res.Order = *o
		return res, nil
	}
	if !CanTransition(o.Status, u.Status) {
		return res, fmt.Errorf("%w: %s -> %s (order %s)", ErrInvalidTransition, o.Status, u.Status, o.ID)
	}
	if u.FilledDelta.IsPositive() && !u.Status.carriesFills() {
		return res, util.Invalid("filledDelta", "status %s cannot report fills", u.Status)
	}

	next := u.Status
	filled := o.FilledSize.Add(u.FilledDelta)
	if next == StatusFilled && u.FilledDelta.IsZero() {
		filled = o.OriginalSize
	}
	if filled.GreaterThan(o.OriginalSize) {
		return res, fmt.Errorf("%w: %s + %s > %s (order %s)",
			ErrExceedsOriginalSize, o.FilledSize, u.FilledDelta, o.OriginalSize, o.ID)
	}
	if next == StatusPartiallyFilled && filled.Equal(o.OriginalSize) {
		next = StatusFilled
	}

	o.Status = next
	o.FilledSize = filled
	o.UpdatedAt = t.clock.Now()
	res.Applied = true

	if o.Status.Terminal() && !o.Recorded && o.FilledSize.IsPositive() {
		if t.rec != nil {
			t.rec.Record(risk.Trade{MarketID: o.MarketID, Side: o.Side, AmountUSD: o.FilledSize})
		}
		o.Recorded = true
		res.Recorded = true
	}
	res.Order = *o

	t.log.Info("order_status_applied",
		zap.String("order_id", o.ID),
		zap.String("from", string(res.Previous)),
		zap.String("to", string(o.Status)),
		zap.String("filled", o.FilledSize.String()),
		zap.String("original", o.OriginalSize.String()),
		zap.Bool("recorded", res.Recorded))
	return res, nil
}
