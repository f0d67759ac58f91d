package guards

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chidi150c/polyguard/internal/alerts"
	"github.com/chidi150c/polyguard/internal/market"
	"github.com/chidi150c/polyguard/internal/orders"
	"github.com/chidi150c/polyguard/internal/risk"
	"github.com/chidi150c/polyguard/internal/util"
)

var (
	metricAdmissions    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "polyguard_admissions_total", Help: "Admission decisions by reason"}, []string{"reason"})
	metricOrderUpdates  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "polyguard_order_updates_total", Help: "Venue status updates by outcome"}, []string{"outcome"})
	metricOrdersCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "polyguard_orders_created_total", Help: "Orders registered with the tracker"})
	metricAlertsFired   = prometheus.NewCounter(prometheus.CounterOpts{Name: "polyguard_alerts_triggered_total", Help: "Alert trigger events"})
	metricDailyVolume   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "polyguard_daily_volume_usd", Help: "Recorded USD volume in the current UTC day"})
	metricDailyTrades   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "polyguard_daily_trades", Help: "Recorded trades in the current UTC day"})
)

func init() {
	prometheus.MustRegister(
		metricAdmissions, metricOrderUpdates, metricOrdersCreated,
		metricAlertsFired, metricDailyVolume, metricDailyTrades,
	)
}

// WindowStore persists the usage window. *risk.DayManager implements it.
type WindowStore interface {
	PersistProgress(acct *risk.Accountant) error
}

// Guard is the entry point the transport layer talks to. It composes the
// accountant, the order tracker and the alert registry, and holds the
// current limits behind an atomic pointer so a reload never tears a read.
type Guard struct {
	acct   *risk.Accountant
	orders *orders.Tracker
	alerts *alerts.Registry
	window WindowStore // optional
	log    *zap.Logger

	// placeMu makes admit-then-create atomic across concurrent placements.
	placeMu sync.Mutex

	cfg  atomic.Pointer[risk.Config]
	mcfg atomic.Pointer[market.Config]
}

func New(acct *risk.Accountant, tr *orders.Tracker, reg *alerts.Registry, cfg risk.Config, mcfg market.Config, log *zap.Logger) (*Guard, error) {
	if acct == nil || tr == nil || reg == nil {
		return nil, errors.New("guards: accountant, tracker and registry are required")
	}
	g := &Guard{acct: acct, orders: tr, alerts: reg, log: util.OrNop(log)}
	if err := g.SetConfig(cfg); err != nil {
		return nil, err
	}
	if err := g.SetMarketConfig(mcfg); err != nil {
		return nil, err
	}
	g.observeWindow(acct.Current(acct.Now()))
	return g, nil
}

// PersistWindowWith makes ReportStatus write the window through ws every time
// a fill is recorded. Call it before serving.
func (g *Guard) PersistWindowWith(ws WindowStore) { g.window = ws }

func (g *Guard) Config() risk.Config { return *g.cfg.Load() }

// SetConfig swaps the limits atomically. Admissions in flight finish on the
// value they loaded.
func (g *Guard) SetConfig(c risk.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	g.cfg.Store(&c)
	g.log.Info("risk_config_set",
		zap.Bool("enabled", c.Enabled),
		zap.String("min_order_usd", c.MinOrderSize.String()),
		zap.String("max_trade_usd", c.MaxPerTrade.String()),
		zap.String("max_daily_usd", c.MaxDailyVolume.String()),
		zap.Int("max_daily_trades", c.MaxDailyTrades),
		zap.String("max_position_usd", c.MaxPositionPerMarket.String()))
	return nil
}

func (g *Guard) MarketConfig() market.Config { return *g.mcfg.Load() }

func (g *Guard) SetMarketConfig(c market.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	g.mcfg.Store(&c)
	return nil
}

// admissionWindow is today's window plus the orders admitted but not yet
// recorded. It is a copy; the accountant's window is untouched. Pending is
// read first so an order recorded in between is counted twice, never zero times.
func (g *Guard) admissionWindow() risk.Window {
	pendingUSD, pendingTrades := g.orders.Pending()
	w := g.acct.Current(g.acct.Now())
	w.VolumeUSD = w.VolumeUSD.Add(pendingUSD)
	w.TradeCount += pendingTrades
	return w
}

// Admit evaluates p against today's usage, open orders included, and the
// market's exposure. Nothing is recorded: usage changes only when a fill is
// reported.
func (g *Guard) Admit(p risk.Proposal) (risk.Decision, error) {
	if err := p.Validate(); err != nil {
		metricAdmissions.WithLabelValues("Invalid").Inc()
		return risk.Decision{}, err
	}
	cfg := g.Config()
	w := g.admissionWindow()
	exposure := g.orders.Exposure(p.MarketID)

	d := risk.Evaluate(p, cfg, w, exposure)
	metricAdmissions.WithLabelValues(string(d.Reason)).Inc()
	if d.Allowed {
		g.log.Debug("trade_admitted", zap.String("market", p.MarketID), zap.String("amount_usd", p.AmountUSD.String()), zap.String("reason", string(d.Reason)))
	} else {
		g.log.Info("trade_rejected",
			zap.String("market", p.MarketID),
			zap.String("side", string(p.Side)),
			zap.String("amount_usd", p.AmountUSD.String()),
			zap.String("reason", string(d.Reason)),
			zap.String("message", d.Message))
	}
	return d, nil
}

// PlaceOrder admits req and, when allowed, starts tracking it. Placements are
// serialized so two requests cannot both fit into the same headroom. A denied
// order returns the decision with a zero Order and no error.
func (g *Guard) PlaceOrder(req orders.NewOrder) (risk.Decision, orders.Order, error) {
	g.placeMu.Lock()
	defer g.placeMu.Unlock()

	d, err := g.Admit(risk.Proposal{MarketID: req.MarketID, Side: req.Side, AmountUSD: req.AmountUSD})
	if err != nil || !d.Allowed {
		return d, orders.Order{}, err
	}
	o, err := g.CreateOrder(req)
	if err != nil {
		return d, orders.Order{}, err
	}
	return d, o, nil
}

// CreateOrder tracks req without an admission check, e.g. for orders the
// venue already holds.
func (g *Guard) CreateOrder(req orders.NewOrder) (orders.Order, error) {
	o, err := g.orders.Create(req)
	if err != nil {
		return orders.Order{}, err
	}
	metricOrdersCreated.Inc()
	return o, nil
}

// ReportStatus applies a venue update and refreshes the usage gauges when a
// fill was recorded.
func (g *Guard) ReportStatus(u orders.StatusUpdate) (orders.Result, error) {
	res, err := g.orders.Apply(u)
	metricOrderUpdates.WithLabelValues(updateOutcome(res, err)).Inc()
	if err != nil {
		g.log.Warn("order_update_rejected",
			zap.String("order_id", u.OrderID),
			zap.String("reported", string(u.Status)),
			zap.String("filled_delta", u.FilledDelta.String()),
			zap.Error(err))
		return res, err
	}
	if res.Recorded {
		g.observeWindow(g.acct.Current(g.acct.Now()))
		if g.window != nil {
			if err := g.window.PersistProgress(g.acct); err != nil {
				g.log.Error("window_persist_failed", zap.String("order_id", u.OrderID), zap.Error(err))
			}
		}
	}
	return res, nil
}

func updateOutcome(res orders.Result, err error) string {
	switch {
	case err == nil && res.Duplicate:
		return "duplicate"
	case err == nil:
		return "applied"
	case errors.Is(err, orders.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, orders.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, orders.ErrExceedsOriginalSize):
		return "exceeds_original_size"
	case util.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

func (g *Guard) observeWindow(w risk.Window) {
	v, _ := w.VolumeUSD.Float64()
	metricDailyVolume.Set(v)
	metricDailyTrades.Set(float64(w.TradeCount))
}

func (g *Guard) Order(id string) (orders.Order, bool) { return g.orders.Get(id) }

func (g *Guard) Orders(f orders.Filter) []orders.Order { return g.orders.List(f) }

func (g *Guard) Exposure(marketID string) decimal.Decimal { return g.orders.Exposure(marketID) }

// Limits reports the configured limits and what is left of them today.
func (g *Guard) Limits() risk.Limits {
	return risk.Remaining(g.Config(), g.DailyStats())
}

// DailyStats returns a copy of today's window.
func (g *Guard) DailyStats() risk.Window {
	w := g.acct.Current(g.acct.Now())
	g.observeWindow(w)
	return w
}

func (g *Guard) Analyze(s market.Snapshot) (market.Context, error) {
	return market.Analyze(s, g.MarketConfig())
}

func (g *Guard) RegisterAlert(req alerts.Registration) (alerts.Alert, error) {
	return g.alerts.Register(req)
}

func (g *Guard) Alert(id string) (alerts.Alert, bool) { return g.alerts.Get(id) }

func (g *Guard) Alerts(includeTriggered bool) []alerts.Alert {
	return g.alerts.List(includeTriggered)
}

func (g *Guard) DeleteAlert(id string) error { return g.alerts.Delete(id) }

func (g *Guard) ResetAlert(id string) (alerts.Alert, error) { return g.alerts.Reset(id) }

func (g *Guard) SetAlertActive(id string, active bool) (alerts.Alert, error) {
	return g.alerts.SetActive(id, active)
}

func (g *Guard) EvaluateAlert(id string, price decimal.Decimal) (alerts.TriggerResult, alerts.Alert, error) {
	res, a, err := g.alerts.Check(id, price)
	if err == nil && res.Triggered {
		metricAlertsFired.Inc()
	}
	return res, a, err
}

// CheckQuote runs every alert of a market against a fresh quote.
func (g *Guard) CheckQuote(marketID string, q alerts.Quote) ([]alerts.Alert, error) {
	fired, err := g.alerts.CheckQuote(marketID, q)
	if err != nil {
		return nil, err
	}
	metricAlertsFired.Add(float64(len(fired)))
	return fired, nil
}
