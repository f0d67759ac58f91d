package alerts

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chidi150c/polyguard/internal/util"
)

// Registry owns the alerts and their edge state.
type Registry struct {
	mu     sync.Mutex
	alerts map[string]*Alert

	clock util.Clock
	log   *zap.Logger
}

func NewRegistry(clock util.Clock, log *zap.Logger) *Registry {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Registry{alerts: make(map[string]*Alert), clock: clock, log: util.OrNop(log)}
}

func validPrice(field string, p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(1)) {
		return util.Invalid(field, "must be within [0,1], got %s", p)
	}
	return nil
}

// Register creates an active alert.
func (r *Registry) Register(req Registration) (Alert, error) {
	if err := util.ValidateStruct(req); err != nil {
		return Alert{}, err
	}
	if err := validPrice("threshold", req.Threshold); err != nil {
		return Alert{}, err
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	a := Alert{
		ID:        id,
		MarketID:  req.MarketID,
		Side:      req.Side,
		Condition: req.Condition,
		Threshold: req.Threshold,
		OneShot:   req.OneShot,
		Active:    true,
		CreatedAt: r.clock.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[id]; ok {
		return Alert{}, util.Invalid("id", "alert %s already exists", id)
	}
	r.alerts[id] = &a
	r.log.Info("alert_created",
		zap.String("alert_id", id),
		zap.String("market", a.MarketID),
		zap.String("side", a.Side),
		zap.String("condition", string(a.Condition)),
		zap.String("threshold", a.Threshold.String()))
	return a, nil
}

// Restore loads persisted alerts, replacing any with the same id.
func (r *Registry) Restore(list []Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range list {
		a := list[i]
		r.alerts[a.ID] = &a
	}
	r.log.Info("alerts_restored", zap.Int("count", len(list)))
}

func (r *Registry) Get(id string) (Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// List returns alerts oldest first. Spent one-shot alerts are included only
// when includeTriggered is set.
func (r *Registry) List(includeTriggered bool) []Alert {
	r.mu.Lock()
	out := make([]Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if !includeTriggered && a.Spent() {
			continue
		}
		out = append(out, *a)
	}
	r.mu.Unlock()

	sortAlerts(out)
	return out
}

func sortAlerts(out []Alert) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	delete(r.alerts, id)
	r.log.Info("alert_deleted", zap.String("alert_id", id))
	return nil
}

// Reset re-arms a triggered alert. Edge state is kept.
func (r *Registry) Reset(id string) (Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	a.Triggered = false
	a.TriggerPrice = nil
	a.TriggeredAt = nil
	return *a, nil
}

func (r *Registry) SetActive(id string, active bool) (Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	a.Active = active
	return *a, nil
}

// apply evaluates and stores one alert. r.mu must be held.
func (r *Registry) apply(a *Alert, price decimal.Decimal) TriggerResult {
	next, res := Evaluate(*a, price)
	if res.Triggered {
		at := r.clock.Now()
		next.TriggeredAt = &at
		r.log.Info("alert_triggered",
			zap.String("alert_id", a.ID),
			zap.String("market", a.MarketID),
			zap.String("condition", string(a.Condition)),
			zap.String("threshold", a.Threshold.String()),
			zap.String("price", price.String()))
	}
	*a = next
	return res
}

// Check evaluates one alert against price.
func (r *Registry) Check(id string, price decimal.Decimal) (TriggerResult, Alert, error) {
	if err := validPrice("currentPrice", price); err != nil {
		return TriggerResult{}, Alert{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return TriggerResult{}, Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	res := r.apply(a, price)
	return res, *a, nil
}

// CheckQuote evaluates every alert on marketID against q and returns the
// alerts that fired.
func (r *Registry) CheckQuote(marketID string, q Quote) ([]Alert, error) {
	if err := validPrice("yes", q.Yes); err != nil {
		return nil, err
	}
	if err := validPrice("no", q.No); err != nil {
		return nil, err
	}
	r.mu.Lock()
	var fired []Alert
	for _, a := range r.alerts {
		if a.MarketID != marketID {
			continue
		}
		if res := r.apply(a, q.Price(a.Side)); res.Triggered {
			fired = append(fired, *a)
		}
	}
	r.mu.Unlock()

	sortAlerts(fired)
	return fired, nil
}
