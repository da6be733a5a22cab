package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/trendmonster/internal/allocation"
	"github.com/rewired-gh/trendmonster/internal/gate"
	"github.com/rewired-gh/trendmonster/internal/indicators"
	"github.com/rewired-gh/trendmonster/internal/logger"
	"github.com/rewired-gh/trendmonster/internal/marketdata"
	"github.com/rewired-gh/trendmonster/internal/models"
	"github.com/rewired-gh/trendmonster/internal/storage"
)

// ErrInsufficientHistory is returned when the confirmed history cannot
// produce a signal yet.
var ErrInsufficientHistory = errors.New("insufficient confirmed history")

type Config struct {
	VIXSymbol    string
	VIX3MSymbol  string
	SPYSymbol    string
	SMAWeeks     int
	RSIWeeks     int
	AssumeFilled bool
	DedupeBars   int
}

func DefaultConfig() Config {
	return Config{
		VIXSymbol:    "^vix",
		VIX3MSymbol:  "^vix3m",
		SPYSymbol:    "spy.us",
		SMAWeeks:     50,
		RSIWeeks:     14,
		AssumeFilled: true,
		DedupeBars:   64,
	}
}

// Store is the persistence the monitor needs; *storage.Storage satisfies it.
type Store interface {
	UpsertBars(bars []models.Bar) error
	LoadBars(symbol string, interval models.Interval) ([]models.Bar, error)
	LoadHoldings() (*models.Holdings, error)
	SaveHoldings(h *models.Holdings) error
}

// Notifier delivers alerts. Telegram is one implementation.
type Notifier interface {
	Send(alerts []models.Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct{}

func (LogNotifier) Send(alerts []models.Alert) error {
	for _, a := range alerts {
		logger.Info("ALERT [%s %s] %s: %s", a.Kind, a.BarKey, a.Title, a.Message)
	}
	return nil
}

// Recorder receives evaluation metrics. A nil Recorder is allowed.
type Recorder interface {
	RecordSignal(vixRatio float64, trendUp bool, weeklyRSI float64)
	RecordTarget(spy, tqqq, cash float64, rebalance bool)
	RecordProviderError(symbol string)
	RecordCycle(seconds float64, err error)
	RecordAlert(kind string)
}

// Evaluation is the outcome of one cycle.
type Evaluation struct {
	Signal    models.MarketSignal
	Live      models.LiveSnapshot
	Decision  allocation.Decision
	Change    gate.Change
	Evaluated bool
	Alerts    []models.Alert
	At        time.Time
}

type Monitor struct {
	source   marketdata.Source
	store    Store
	session  *marketdata.Session
	engine   *allocation.Engine
	gate     *gate.Gate
	recorder Recorder
	config   Config
	now      func() time.Time

	mu       sync.RWMutex
	latest   *Evaluation
	holdings models.Holdings
	// holdingsRev changes whenever the user records holdings.
	holdingsRev uint64

	// sentMu guards delivery state and is taken before mu, never after.
	sentMu    sync.Mutex
	sent      map[string]bool
	sentOrder []string
	pending   []models.Alert
	fills     map[string]fill
}

// fill is the allocation assumed once a rebalance alert is delivered.
type fill struct {
	holdings models.Holdings
	rev      uint64
}

func New(source marketdata.Source, store Store, session *marketdata.Session, engine *allocation.Engine, config Config) *Monitor {
	m := &Monitor{
		source:   source,
		store:    store,
		session:  session,
		engine:   engine,
		gate:     gate.New(),
		config:   config,
		now:      time.Now,
		holdings: models.AllCash(),
		sent:     make(map[string]bool),
		fills:    make(map[string]fill),
	}

	h, err := store.LoadHoldings()
	switch {
	case errors.Is(err, storage.ErrNoHoldings):
		logger.Info("No holdings recorded, assuming all cash")
	case err != nil:
		logger.Warn("Failed to load holdings, assuming all cash: %v", err)
	default:
		m.holdings = *h
		logger.Info("Loaded holdings: SPY %.1f%% TQQQ %.1f%%", h.SPY*100, h.TQQQ*100)
	}

	return m
}

// SetRecorder attaches a metrics recorder.
func (m *Monitor) SetRecorder(r Recorder) {
	m.recorder = r
}

// Engine returns the allocation engine in use.
func (m *Monitor) Engine() *allocation.Engine {
	return m.engine
}

// Holdings returns the allocation the next decision is measured against.
func (m *Monitor) Holdings() models.Holdings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holdings
}

// SetHoldings stores and applies a new current allocation. The next confirmed
// change is measured against it; the gate is not reset.
func (m *Monitor) SetHoldings(h models.Holdings) error {
	if err := m.store.SaveHoldings(&h); err != nil {
		return err
	}
	m.mu.Lock()
	m.holdings = h
	m.holdingsRev++
	m.mu.Unlock()
	return nil
}

// Latest returns the most recent evaluation, or nil before the first cycle.
func (m *Monitor) Latest() *Evaluation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil
	}
	eval := *m.latest
	return &eval
}

// RunCycle fetches history, evaluates the confirmed signal and returns every
// alert not yet delivered, including those left over from earlier cycles.
func (m *Monitor) RunCycle(ctx context.Context) (*Evaluation, error) {
	start := time.Now()
	eval, err := m.runCycle(ctx)
	if m.recorder != nil {
		m.recorder.RecordCycle(time.Since(start).Seconds(), err)
	}
	return eval, err
}

func (m *Monitor) runCycle(ctx context.Context) (*Evaluation, error) {
	now := m.now()

	vix, err := m.series(ctx, m.config.VIXSymbol, models.Daily)
	if err != nil {
		return nil, err
	}
	vix3m, err := m.series(ctx, m.config.VIX3MSymbol, models.Daily)
	if err != nil {
		return nil, err
	}
	spy, err := m.series(ctx, m.config.SPYSymbol, models.Weekly)
	if err != nil {
		return nil, err
	}

	vixConf, vixLive := m.session.Split(vix, now)
	vix3mConf, vix3mLive := m.session.Split(vix3m, now)
	spyConf, spyLive := m.session.Split(spy, now)

	signal, err := m.buildSignal(vixConf, vix3mConf, spyConf)
	if err != nil {
		return nil, err
	}
	live := buildLive(vixLive, vix3mLive, spyLive)

	if m.recorder != nil {
		m.recorder.RecordSignal(signal.VIXRatioDaily, signal.WeeklyTrendUp, signal.WeeklyRSI)
	}

	m.mu.RLock()
	prev := m.latest
	holdings := m.holdings
	rev := m.holdingsRev
	m.mu.RUnlock()

	change := m.gate.Peek(signal)
	if !change.Any() && prev != nil {
		logger.Debug("Confirmed inputs unchanged (daily %s, weekly %s), skipping decision",
			signal.DailyKey(), signal.WeeklyKey())
		eval := &Evaluation{
			Signal:   prev.Signal,
			Live:     live,
			Decision: prev.Decision,
			Change:   change,
			Alerts:   m.pendingAlerts(),
			At:       now,
		}
		m.publish(eval)
		return eval, nil
	}

	decision, err := m.engine.Decide(signal, holdings.SPY, holdings.TQQQ)
	if err != nil {
		return nil, fmt.Errorf("failed to decide allocation: %w", err)
	}
	change = m.gate.Observe(signal)

	logger.Info("Decision: ratio=%.4f (%s) trend_up=%v posture=%s target=[%s] rebalance=%v",
		signal.VIXRatioDaily, decision.Band.Level, signal.WeeklyTrendUp, decision.Posture,
		decision.Target, decision.RebalanceNeeded)

	var filled *fill
	if decision.RebalanceNeeded && m.config.AssumeFilled {
		filled = &fill{
			holdings: models.Holdings{SPY: decision.Target.SPY, TQQQ: decision.Target.TQQQ, UpdatedAt: now},
			rev:      rev,
		}
	}
	alerts := m.enqueue(m.filterSent(m.buildAlerts(prev, signal, decision, change, now)), filled)

	eval := &Evaluation{
		Signal:    signal,
		Live:      live,
		Decision:  decision,
		Change:    change,
		Evaluated: true,
		Alerts:    alerts,
		At:        now,
	}
	m.publish(eval)

	if m.recorder != nil {
		m.recorder.RecordTarget(decision.Target.SPY, decision.Target.TQQQ, decision.Target.Cash, decision.RebalanceNeeded)
	}
	return eval, nil
}

func (m *Monitor) publish(eval *Evaluation) {
	m.mu.Lock()
	m.latest = eval
	m.mu.Unlock()
}

// series fetches a bar series, caching it in the store. When the provider
// fails the stored copy is used instead.
func (m *Monitor) series(ctx context.Context, symbol string, interval models.Interval) ([]models.Bar, error) {
	bars, err := m.source.FetchBars(ctx, symbol, interval)
	if err == nil {
		if storeErr := m.store.UpsertBars(bars); storeErr != nil {
			logger.Warn("Failed to store %s bars: %v", symbol, storeErr)
		}
		return bars, nil
	}

	if m.recorder != nil {
		m.recorder.RecordProviderError(symbol)
	}
	logger.Warn("Failed to fetch %s, falling back to stored bars: %v", symbol, err)
	stored, loadErr := m.store.LoadBars(symbol, interval)
	if loadErr != nil || len(stored) == 0 {
		return nil, fmt.Errorf("no bars for %s: %w", symbol, err)
	}
	return stored, nil
}

func (m *Monitor) buildSignal(vix, vix3m, spy []models.Bar) (models.MarketSignal, error) {
	vix3mByDay := make(map[string]models.Bar, len(vix3m))
	for _, b := range vix3m {
		vix3mByDay[b.Key()] = b
	}

	var sig models.MarketSignal
	found := false
	for i := len(vix) - 1; i >= 0; i-- {
		other, ok := vix3mByDay[vix[i].Key()]
		if !ok {
			continue
		}
		ratio, err := indicators.VIXRatio(vix[i].Close, other.Close)
		if err != nil {
			return sig, fmt.Errorf("bad vix data on %s: %w", vix[i].Key(), err)
		}
		sig.VIXRatioDaily = ratio
		sig.VIXClose = vix[i].Close
		sig.VIX3MClose = other.Close
		sig.DailyAsOf = vix[i].Date
		found = true
		break
	}
	if !found {
		return sig, fmt.Errorf("%w: no confirmed day with both %s and %s",
			ErrInsufficientHistory, m.config.VIXSymbol, m.config.VIX3MSymbol)
	}

	if len(spy) < m.config.SMAWeeks {
		return sig, fmt.Errorf("%w: %d confirmed weekly bars, need %d",
			ErrInsufficientHistory, len(spy), m.config.SMAWeeks)
	}
	closes := make([]float64, len(spy))
	for i, b := range spy {
		closes[i] = b.Close
	}
	sma, err := indicators.SMA(closes, m.config.SMAWeeks)
	if err != nil {
		return sig, err
	}
	last := spy[len(spy)-1]
	sig.WeeklyClose = last.Close
	sig.WeeklySMA = sma
	sig.WeeklyRSI = indicators.RSI(closes, m.config.RSIWeeks)
	sig.WeeklyTrendUp = indicators.TrendUp(last.Close, sma)
	sig.WeeklyAsOf = last.Date
	return sig, nil
}

func buildLive(vix, vix3m, spy *models.Bar) models.LiveSnapshot {
	var live models.LiveSnapshot
	if vix != nil && vix3m != nil {
		if ratio, err := indicators.VIXRatio(vix.Close, vix3m.Close); err == nil {
			live.VIXRatio = ratio
		}
		live.AsOf = vix.Date
	}
	if spy != nil {
		live.SPYClose = spy.Close
		if spy.Date.After(live.AsOf) {
			live.AsOf = spy.Date
		}
	}
	return live
}

func (m *Monitor) buildAlerts(prev *Evaluation, signal models.MarketSignal, d allocation.Decision, change gate.Change, now time.Time) []models.Alert {
	var alerts []models.Alert
	add := func(kind models.AlertKind, barKey, title, message string) {
		alerts = append(alerts, models.Alert{
			ID:         uuid.NewString(),
			Kind:       kind,
			BarKey:     barKey,
			Title:      title,
			Message:    message,
			DetectedAt: now,
		})
	}

	if change.TrendFlipped {
		dir := "DOWN"
		if signal.WeeklyTrendUp {
			dir = "UP"
		}
		add(models.AlertTrendChange, signal.WeeklyKey(),
			"Weekly trend turned "+dir,
			fmt.Sprintf("Weekly close %.2f vs %d-week SMA %.2f", signal.WeeklyClose, m.config.SMAWeeks, signal.WeeklySMA))
	}
	if prev != nil && prev.Decision.Band.Level != d.Band.Level {
		add(models.AlertVIXLevelChange, signal.DailyKey(),
			fmt.Sprintf("VIX level %s -> %s", prev.Decision.Band.Level, d.Band.Level),
			fmt.Sprintf("VIX/VIX3M %.4f, target %s", signal.VIXRatioDaily, d.Target))
	}
	if d.RebalanceNeeded {
		add(models.AlertRebalance, signal.DailyKey()+"/"+signal.WeeklyKey(),
			fmt.Sprintf("Rebalance to %s", d.Target),
			d.Instructions())
	}
	return alerts
}

// filterSent drops alerts already delivered for their bar.
func (m *Monitor) filterSent(alerts []models.Alert) []models.Alert {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()

	var out []models.Alert
	for _, a := range alerts {
		if m.sent[a.DedupeKey()] {
			logger.Debug("Alert %s already sent", a.DedupeKey())
			continue
		}
		out = append(out, a)
	}
	return out
}

// enqueue adds fresh alerts to the undelivered queue and returns the whole
// queue. A new decision supersedes any rebalance still waiting for delivery.
func (m *Monitor) enqueue(alerts []models.Alert, filled *fill) []models.Alert {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()

	kept := m.pending[:0]
	for _, a := range m.pending {
		if a.Kind == models.AlertRebalance {
			delete(m.fills, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	m.pending = kept

	queued := make(map[string]bool, len(m.pending))
	for _, a := range m.pending {
		queued[a.DedupeKey()] = true
	}
	for _, a := range alerts {
		if queued[a.DedupeKey()] {
			continue
		}
		queued[a.DedupeKey()] = true
		m.pending = append(m.pending, a)
		if a.Kind == models.AlertRebalance && filled != nil {
			m.fills[a.ID] = *filled
		}
	}
	for m.config.DedupeBars > 0 && len(m.pending) > m.config.DedupeBars {
		delete(m.fills, m.pending[0].ID)
		m.pending = m.pending[1:]
	}
	return append([]models.Alert(nil), m.pending...)
}

func (m *Monitor) pendingAlerts() []models.Alert {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	return append([]models.Alert(nil), m.pending...)
}

// Deliver sends alerts through n and marks them as sent once delivery succeeds.
func (m *Monitor) Deliver(n Notifier, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := n.Send(alerts); err != nil {
		return fmt.Errorf("failed to deliver %d alerts: %w", len(alerts), err)
	}
	m.RecordSent(alerts)
	if m.recorder != nil {
		for _, a := range alerts {
			m.recorder.RecordAlert(string(a.Kind))
		}
	}
	return nil
}

// RecordSent marks alerts as delivered so they are not repeated for the same
// bar. A delivered rebalance applies its assumed fill unless the user recorded
// holdings after the decision was made.
func (m *Monitor) RecordSent(alerts []models.Alert) {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()

	delivered := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		delivered[a.ID] = true
		if f, ok := m.fills[a.ID]; ok {
			delete(m.fills, a.ID)
			m.applyFill(f)
		}
	}
	kept := m.pending[:0]
	for _, a := range m.pending {
		if !delivered[a.ID] {
			kept = append(kept, a)
		}
	}
	m.pending = kept

	for _, a := range alerts {
		key := a.DedupeKey()
		if m.sent[key] {
			continue
		}
		m.sent[key] = true
		m.sentOrder = append(m.sentOrder, key)
	}
	for m.config.DedupeBars > 0 && len(m.sentOrder) > m.config.DedupeBars {
		delete(m.sent, m.sentOrder[0])
		m.sentOrder = m.sentOrder[1:]
	}
}

func (m *Monitor) applyFill(f fill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holdingsRev != f.rev {
		logger.Info("Holdings changed since the rebalance decision, keeping SPY %.1f%% TQQQ %.1f%%",
			m.holdings.SPY*100, m.holdings.TQQQ*100)
		return
	}
	m.holdings = f.holdings
}
