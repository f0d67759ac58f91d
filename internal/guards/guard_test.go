package guards

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/polyguard/internal/alerts"
	"github.com/chidi150c/polyguard/internal/market"
	"github.com/chidi150c/polyguard/internal/orders"
	"github.com/chidi150c/polyguard/internal/risk"
	"github.com/chidi150c/polyguard/internal/util"
)

func usd(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newGuard(t *testing.T, cfg risk.Config) (*Guard, *util.ManualClock) {
	t.Helper()
	clock := util.NewManualClock(time.Date(2026, 10, 16, 23, 50, 0, 0, time.UTC))
	acct := risk.NewAccountant(clock, nil)
	g, err := New(acct, orders.NewTracker(acct, clock, nil), alerts.NewRegistry(clock, nil), cfg, market.DefaultConfig(), nil)
	require.NoError(t, err)
	return g, clock
}

// fill drives an admitted order through to FILLED.
func fill(t *testing.T, g *Guard, market string, side risk.Side, amount string) orders.Order {
	t.Helper()
	o, err := g.CreateOrder(orders.NewOrder{MarketID: market, Side: side, AmountUSD: usd(amount), Type: orders.TypeMarket})
	require.NoError(t, err)
	for _, s := range []orders.Status{orders.StatusSubmitted, orders.StatusLive, orders.StatusFilled} {
		_, err := g.ReportStatus(orders.StatusUpdate{OrderID: o.ID, Status: s})
		require.NoError(t, err)
	}
	got, _ := g.Order(o.ID)
	return got
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil, risk.DefaultConfig(), market.DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestGuard_AdmitAndRecord(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxPerTrade = usd("1000")
	cfg.MaxDailyVolume = usd("10000")
	g, _ := newGuard(t, cfg)

	before := testutil.ToFloat64(metricAdmissions.WithLabelValues(string(risk.ReasonAllowed)))
	for i := 0; i < 100; i++ {
		d, err := g.Admit(risk.Proposal{MarketID: "m1", Side: risk.Buy, AmountUSD: usd("100")})
		require.NoError(t, err)
		require.True(t, d.Allowed, "trade %d: %+v", i+1, d)
		fill(t, g, "m1", risk.Buy, "100")
	}
	assert.Equal(t, before+100, testutil.ToFloat64(metricAdmissions.WithLabelValues(string(risk.ReasonAllowed))))

	d, err := g.Admit(risk.Proposal{MarketID: "m1", Side: risk.Buy, AmountUSD: usd("5")})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, risk.ReasonExceedsDailyVolumeLimit, d.Reason)

	stats := g.DailyStats()
	assert.Equal(t, 100, stats.TradeCount)
	assert.True(t, stats.VolumeUSD.Equal(usd("10000")))
	assert.True(t, stats.BuyVolumeUSD.Equal(usd("10000")))
	assert.Equal(t, 100.0, testutil.ToFloat64(metricDailyTrades))

	l := g.Limits()
	assert.True(t, l.DailyVolumeRemaining.IsZero())
	assert.Equal(t, 100, l.DailyTradesUsed)
}

func TestGuard_AdmitDoesNotRecord(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())
	for i := 0; i < 3; i++ {
		d, err := g.Admit(risk.Proposal{MarketID: "m1", Side: risk.Sell, AmountUSD: usd("50")})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	assert.Equal(t, 0, g.DailyStats().TradeCount)
}

func TestGuard_AdmitValidation(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())
	_, err := g.Admit(risk.Proposal{MarketID: "", Side: risk.Buy, AmountUSD: usd("10")})
	assert.True(t, util.IsValidation(err))
	_, err = g.Admit(risk.Proposal{MarketID: "m1", Side: risk.Buy, AmountUSD: usd("-10")})
	assert.True(t, util.IsValidation(err))
}

func TestGuard_PositionLimitUsesTrackerExposure(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxPositionPerMarket = usd("150")
	g, _ := newGuard(t, cfg)

	fill(t, g, "m1", risk.Buy, "100")
	// A working order counts toward exposure before it fills.
	_, err := g.CreateOrder(orders.NewOrder{MarketID: "m1", Side: risk.Buy, AmountUSD: usd("40"), LimitPrice: ptr(0.4)})
	require.NoError(t, err)
	assert.True(t, g.Exposure("m1").Equal(usd("140")))

	d, err := g.Admit(risk.Proposal{MarketID: "m1", Side: risk.Buy, AmountUSD: usd("20")})
	require.NoError(t, err)
	assert.Equal(t, risk.ReasonExceedsPositionLimit, d.Reason)

	d, err = g.Admit(risk.Proposal{MarketID: "m1", Side: risk.Sell, AmountUSD: usd("20")})
	require.NoError(t, err)
	assert.True(t, d.Allowed, "reducing exposure is fine")

	d, err = g.Admit(risk.Proposal{MarketID: "m2", Side: risk.Buy, AmountUSD: usd("100")})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func ptr(f float64) *float64 { return &f }

func marketOrder(marketID, amount string) orders.NewOrder {
	return orders.NewOrder{MarketID: marketID, Side: risk.Buy, AmountUSD: usd(amount), Type: orders.TypeMarket}
}

func TestGuard_PlaceOrderCountsOpenOrders(t *testing.T) {
	cfg := risk.DefaultConfig() // $100 per trade, $500 per day
	cfg.MaxDailyTrades = 3
	g, _ := newGuard(t, cfg)

	var placed []orders.Order
	for i := 0; i < 10; i++ {
		d, o, err := g.PlaceOrder(marketOrder("m1", "100"))
		require.NoError(t, err)
		if !d.Allowed {
			assert.Equal(t, risk.ReasonExceedsDailyTradeCountLimit, d.Reason)
			assert.Empty(t, o.ID)
			continue
		}
		placed = append(placed, o)
	}
	require.Len(t, placed, 3)
	assert.Len(t, g.Orders(orders.Filter{}), 3)

	for _, o := range placed {
		for _, s := range []orders.Status{orders.StatusSubmitted, orders.StatusLive, orders.StatusFilled} {
			_, err := g.ReportStatus(orders.StatusUpdate{OrderID: o.ID, Status: s})
			require.NoError(t, err)
		}
	}
	stats := g.DailyStats()
	assert.Equal(t, 3, stats.TradeCount)
	assert.True(t, stats.VolumeUSD.Equal(usd("300")))
}

func TestGuard_OpenOrdersHoldDailyVolume(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())

	var first orders.Order
	for i := 0; i < 5; i++ {
		d, o, err := g.PlaceOrder(marketOrder("m1", "100"))
		require.NoError(t, err)
		require.True(t, d.Allowed, "order %d: %+v", i+1, d)
		if i == 0 {
			first = o
		}
	}
	d, _, err := g.PlaceOrder(marketOrder("m2", "5"))
	require.NoError(t, err)
	assert.Equal(t, risk.ReasonExceedsDailyVolumeLimit, d.Reason)
	assert.True(t, g.DailyStats().VolumeUSD.IsZero(), "the window itself is untouched")

	// Cancelling an unfilled order frees its headroom.
	for _, s := range []orders.Status{orders.StatusSubmitted, orders.StatusLive, orders.StatusCancelled} {
		_, err := g.ReportStatus(orders.StatusUpdate{OrderID: first.ID, Status: s})
		require.NoError(t, err)
	}
	d, _, err = g.PlaceOrder(marketOrder("m2", "100"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuard_ConcurrentPlaceOrder(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _, err := g.PlaceOrder(marketOrder("m1", "100"))
			if err == nil && d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, admitted)
	assert.Len(t, g.Orders(orders.Filter{}), 5)
}

func TestGuard_PlaceOrderValidation(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())
	_, _, err := g.PlaceOrder(orders.NewOrder{MarketID: "m1", Side: risk.Buy, AmountUSD: usd("10")})
	assert.True(t, util.IsValidation(err), "GTC without a price")
	assert.Empty(t, g.Orders(orders.Filter{}))
}

func TestGuard_RecordedFillIsPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.json")
	clock := util.NewManualClock(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	dm := risk.NewDayManager(path, clock, nil)
	acct := dm.InitAtStartup()
	g, err := New(acct, orders.NewTracker(acct, clock, nil), alerts.NewRegistry(clock, nil), risk.DefaultConfig(), market.DefaultConfig(), nil)
	require.NoError(t, err)
	g.PersistWindowWith(dm)

	fill(t, g, "m1", risk.Buy, "100")

	// A restart without any periodic snapshot still sees the fill.
	w := risk.NewDayManager(path, clock, nil).InitAtStartup().Current(clock.Now())
	assert.Equal(t, 1, w.TradeCount)
	assert.True(t, w.VolumeUSD.Equal(usd("100")))
}

func TestGuard_SetConfig(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())

	bad := risk.DefaultConfig()
	bad.MaxPerTrade = usd("-1")
	assert.True(t, util.IsValidation(g.SetConfig(bad)))
	assert.True(t, g.Config().MaxPerTrade.Equal(usd("100")), "rejected config is not applied")

	off := risk.DefaultConfig()
	off.Enabled = false
	require.NoError(t, g.SetConfig(off))
	d, err := g.Admit(risk.Proposal{MarketID: "m1", Side: risk.Buy, AmountUSD: usd("1000000")})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, risk.ReasonLimitsDisabled, d.Reason)
}

func TestGuard_RolloverResetsUsage(t *testing.T) {
	g, clock := newGuard(t, risk.DefaultConfig())
	fill(t, g, "m1", risk.Buy, "100")
	assert.Equal(t, "2026-10-16", g.DailyStats().Date)

	clock.Advance(15 * time.Minute)
	stats := g.DailyStats()
	assert.Equal(t, "2026-10-17", stats.Date)
	assert.Zero(t, stats.TradeCount)
	assert.True(t, g.Limits().DailyVolumeRemaining.Equal(usd("500")))
}

func TestGuard_ReportStatusOutcomes(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())
	o := fill(t, g, "m1", risk.Sell, "30")
	assert.True(t, o.Recorded)

	dup := testutil.ToFloat64(metricOrderUpdates.WithLabelValues("duplicate"))
	res, err := g.ReportStatus(orders.StatusUpdate{OrderID: o.ID, Status: orders.StatusFilled})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, dup+1, testutil.ToFloat64(metricOrderUpdates.WithLabelValues("duplicate")))
	assert.Equal(t, 1, g.DailyStats().TradeCount)

	bad := testutil.ToFloat64(metricOrderUpdates.WithLabelValues("invalid_transition"))
	_, err = g.ReportStatus(orders.StatusUpdate{OrderID: o.ID, Status: orders.StatusCancelled})
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Equal(t, bad+1, testutil.ToFloat64(metricOrderUpdates.WithLabelValues("invalid_transition")))

	_, err = g.ReportStatus(orders.StatusUpdate{OrderID: "nope", Status: orders.StatusLive})
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	assert.True(t, g.DailyStats().Position("m1").Equal(usd("-30")))
}

func TestGuard_AnalyzeUsesMarketConfig(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())
	ctx, err := g.Analyze(market.Snapshot{BestBid: usd("0.49"), BestAsk: usd("0.51")})
	require.NoError(t, err)
	assert.Equal(t, market.LiquidityMedium, ctx.LiquidityRating)

	mc := market.DefaultConfig()
	mc.HighSpread = usd("0.03")
	require.NoError(t, g.SetMarketConfig(mc))
	ctx, err = g.Analyze(market.Snapshot{BestBid: usd("0.49"), BestAsk: usd("0.51")})
	require.NoError(t, err)
	assert.Equal(t, market.LiquidityHigh, ctx.LiquidityRating)

	mc.MediumSpread = usd("0.01")
	assert.Error(t, g.SetMarketConfig(mc))
}

func TestGuard_Alerts(t *testing.T) {
	g, _ := newGuard(t, risk.DefaultConfig())
	a, err := g.RegisterAlert(alerts.Registration{MarketID: "m1", Side: alerts.SideYes, Condition: alerts.CrossesAbove, Threshold: usd("0.5")})
	require.NoError(t, err)

	before := testutil.ToFloat64(metricAlertsFired)
	res, _, err := g.EvaluateAlert(a.ID, usd("0.4"))
	require.NoError(t, err)
	assert.False(t, res.Triggered)

	fired, err := g.CheckQuote("m1", alerts.Quote{Yes: usd("0.6"), No: usd("0.4")})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metricAlertsFired))

	assert.Len(t, g.Alerts(false), 1)
	_, err = g.SetAlertActive(a.ID, false)
	require.NoError(t, err)
	_, err = g.ResetAlert(a.ID)
	require.NoError(t, err)
	require.NoError(t, g.DeleteAlert(a.ID))
	_, ok := g.Alert(a.ID)
	assert.False(t, ok)
}
