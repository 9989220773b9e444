package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"go.uber.org/zap"
)

const notifyTimeout = 5 * time.Second

// State is everything the loop reconciles between cycles. It is owned by
// the loop goroutine; other goroutines only see the published View.
type State struct {
	Prefs     domain.Preferences
	Filter    domain.Filter
	Snapshot  domain.MarketSnapshot
	Currency  string
	Cache     *domain.CachedSnapshot
	Rows      []domain.Row
	Offline   bool
	Error     string
	UpdatedAt time.Time
	Seq       uint64
}

func (s State) View() domain.View {
	currency := s.Currency
	if currency == "" {
		currency = s.Prefs.Currency
	}
	rows := s.Rows
	if rows == nil {
		rows = []domain.Row{}
	}
	return domain.View{
		Rows:           rows,
		Alerts:         alertViews(s.Prefs.Alerts),
		TrackedCoinIDs: s.Prefs.TrackedCoinIDs.Sorted(),
		Currency:       currency,
		Language:       s.Prefs.Language,
		Theme:          s.Prefs.Theme,
		Filter:         s.Filter,
		Offline:        s.Offline,
		Error:          s.Error,
		UpdatedAt:      s.UpdatedAt,
		Seq:            s.Seq,
	}
}

func alertViews(rules map[string]domain.AlertRule) []domain.AlertView {
	out := make([]domain.AlertView, 0, len(rules))
	for id, rule := range rules {
		out = append(out, domain.AlertView{CoinID: id, Threshold: rule.Threshold, Condition: rule.Condition})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CoinID < out[j].CoinID })
	return out
}

type LoopConfig struct {
	Interval      time.Duration
	CommandBuffer int
}

type cycleResult struct {
	seq       uint64
	currency  string
	snapshot  domain.MarketSnapshot
	err       error
	fetchedAt time.Time
}

// RefreshLoop drives fetch, reconcile, alert check and render. All state
// changes happen on the goroutine running Run; everything else talks to it
// through Submit.
type RefreshLoop struct {
	client   domain.MarketDataClient
	store    *PreferenceStore
	notifier domain.Notifier
	renderer domain.Renderer
	conn     domain.Connectivity
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	commands chan Command
	results  chan cycleResult

	state       State
	seq         uint64
	inFlight    bool
	pending     bool
	cancelFetch context.CancelFunc

	viewMu sync.RWMutex
	view   domain.View
}

func NewRefreshLoop(client domain.MarketDataClient, store *PreferenceStore, notifier domain.Notifier, renderer domain.Renderer, conn domain.Connectivity, cfg LoopConfig, logger *zap.Logger) *RefreshLoop {
	buffer := cfg.CommandBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &RefreshLoop{
		client:   client,
		store:    store,
		notifier: notifier,
		renderer: renderer,
		conn:     conn,
		interval: cfg.Interval,
		logger:   logger,
		now:      time.Now,
		commands: make(chan Command, buffer),
		results:  make(chan cycleResult, 4),
		state:    State{Filter: domain.FilterAll},
	}
}

// Submit queues a command for the loop. It blocks only while the queue is full.
func (l *RefreshLoop) Submit(ctx context.Context, cmd Command) error {
	select {
	case l.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the most recently rendered view.
func (l *RefreshLoop) Current() domain.View {
	l.viewMu.RLock()
	defer l.viewMu.RUnlock()
	return l.view
}

// Run loads persisted state, refreshes immediately and then on every tick
// until ctx is done.
func (l *RefreshLoop) Run(ctx context.Context) error {
	l.state.Prefs = l.store.Load(ctx)
	l.state.Cache = l.store.LoadCache(ctx)
	l.state.Currency = l.state.Prefs.Currency
	l.logger.Info(
		"refresh loop starting",
		zap.Strings("coins", l.state.Prefs.TrackedCoinIDs.Sorted()),
		zap.String("currency", l.state.Prefs.Currency),
		zap.Duration("interval", l.interval),
		zap.Bool("cache", l.state.Cache != nil),
	)
	l.publish()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	defer l.stopFetch()

	l.trigger(ctx, "startup", false)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("refresh loop stopped")
			return nil
		case <-ticker.C:
			l.trigger(ctx, "timer", false)
		case cmd := <-l.commands:
			l.handle(ctx, cmd)
		case result := <-l.results:
			l.complete(ctx, result)
		}
	}
}

// RunCycle performs one fetch and reconciliation synchronously.
func (l *RefreshLoop) RunCycle(ctx context.Context, state State) State {
	state.Seq++
	if len(state.Prefs.TrackedCoinIDs) == 0 {
		return l.applyEmpty(state)
	}
	result := l.fetch(ctx, state.Seq, state.Prefs.TrackedCoinIDs.Sorted(), state.Prefs.Currency)
	return l.apply(ctx, state, result)
}

func (l *RefreshLoop) fetch(ctx context.Context, seq uint64, coinIDs []string, currency string) cycleResult {
	snapshot, err := l.client.FetchSnapshot(ctx, coinIDs, currency)
	return cycleResult{seq: seq, currency: currency, snapshot: snapshot, err: err, fetchedAt: l.now()}
}

// trigger starts a cycle unless one is already running. A running cycle
// for the same request absorbs the trigger; invalidate means the request
// changed, so the running cycle is abandoned and a new one started.
func (l *RefreshLoop) trigger(ctx context.Context, reason string, invalidate bool) {
	if l.inFlight && !invalidate {
		l.pending = true
		l.logger.Debug("refresh coalesced", zap.String("reason", reason), zap.Uint64("seq", l.seq))
		return
	}
	l.stopFetch()

	l.seq++
	l.state.Seq = l.seq
	if len(l.state.Prefs.TrackedCoinIDs) == 0 {
		l.state = l.applyEmpty(l.state)
		l.publish()
		return
	}

	seq := l.seq
	coinIDs := l.state.Prefs.TrackedCoinIDs.Sorted()
	currency := l.state.Prefs.Currency
	fetchCtx, cancel := context.WithCancel(ctx)
	l.cancelFetch = cancel
	l.inFlight = true
	l.pending = false

	l.logger.Debug("refresh started", zap.String("reason", reason), zap.Uint64("seq", seq), zap.String("currency", currency))
	go func() {
		result := l.fetch(fetchCtx, seq, coinIDs, currency)
		select {
		case l.results <- result:
		case <-ctx.Done():
		}
	}()
}

func (l *RefreshLoop) stopFetch() {
	if l.cancelFetch != nil {
		l.cancelFetch()
		l.cancelFetch = nil
	}
	l.inFlight = false
}

func (l *RefreshLoop) complete(ctx context.Context, result cycleResult) {
	if result.seq != l.seq {
		l.logger.Debug("stale refresh discarded", zap.Uint64("seq", result.seq), zap.Uint64("current", l.seq))
		return
	}
	l.stopFetch()

	l.state = l.apply(ctx, l.state, result)
	l.publish()

	if l.pending {
		l.pending = false
		l.trigger(ctx, "coalesced", false)
	}
}

func (l *RefreshLoop) apply(ctx context.Context, state State, result cycleResult) State {
	if result.err != nil {
		return l.applyFailure(state, result.err)
	}

	state.Snapshot = result.snapshot
	state.Currency = result.currency
	state.Offline = false
	state.Error = ""
	state.UpdatedAt = result.fetchedAt

	cached := domain.CachedSnapshot{Currency: result.currency, FetchedAt: result.fetchedAt, Coins: result.snapshot}
	state.Cache = &cached
	l.store.SaveCache(ctx, cached)

	fired, remaining := EvaluateAlerts(result.snapshot, state.Prefs.Alerts)
	if len(fired) > 0 {
		prefs := state.Prefs.Clone()
		prefs.Alerts = remaining
		state.Prefs = prefs
		l.store.Save(ctx, prefs)
		l.dispatch(ctx, fired, result.snapshot, result.currency, prefs.Language)
	}

	state.Rows = Project(state.Snapshot, state.Prefs, state.Currency, state.Filter)
	l.logger.Debug("refresh applied", zap.Uint64("seq", result.seq), zap.Int("coins", len(result.snapshot)), zap.Int("fired", len(fired)))
	return state
}

func (l *RefreshLoop) applyFailure(state State, err error) State {
	if errors.Is(err, context.Canceled) {
		return state
	}
	if domain.IsNetworkError(err) || !l.online() {
		l.logger.Warn("market data unavailable, offline", zap.Error(err))
		return l.applyOffline(state)
	}

	l.logger.Warn("market data refresh failed", zap.Error(err))
	state.Offline = false
	state.Error = errorMessage(err)
	return state
}

// applyOffline swaps the last good snapshot in for display. Without one the
// current rows stay as they are.
func (l *RefreshLoop) applyOffline(state State) State {
	state.Offline = true
	state.Error = ""
	if state.Cache == nil {
		return state
	}
	state.Snapshot = state.Cache.Coins
	state.Currency = state.Cache.Currency
	state.UpdatedAt = state.Cache.FetchedAt
	state.Rows = Project(state.Snapshot, state.Prefs, state.Currency, state.Filter)
	return state
}

func (l *RefreshLoop) applyEmpty(state State) State {
	state.Snapshot = nil
	state.Currency = state.Prefs.Currency
	state.Rows = []domain.Row{}
	state.Error = ""
	return state
}

func (l *RefreshLoop) online() bool {
	return l.conn == nil || l.conn.Online()
}

func (l *RefreshLoop) dispatch(ctx context.Context, fired []domain.FiredAlert, snapshot domain.MarketSnapshot, currency, lang string) {
	for _, alert := range fired {
		coin, _ := snapshot.Find(alert.CoinID)
		title, body := FormatAlert(alert, coin, currency, lang)
		l.logger.Info(
			"price alert fired",
			zap.String("coin", alert.CoinID),
			zap.String("condition", string(alert.Rule.Condition)),
			zap.String("threshold", alert.Rule.Threshold.String()),
			zap.String("price", alert.TriggeringPrice.String()),
		)
		notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		if err := l.notifier.Notify(notifyCtx, title, body); err != nil {
			l.logger.Warn("failed to send alert", zap.String("coin", alert.CoinID), zap.Error(err))
		}
		cancel()
	}
}

func (l *RefreshLoop) handle(ctx context.Context, cmd Command) {
	l.logger.Debug("command received", zap.String("command", cmd.CommandName()))

	switch c := cmd.(type) {
	case SetCurrency:
		code, ok := domain.NormalizeCurrency(c.Code)
		if !ok {
			l.logger.Warn("invalid currency ignored", zap.String("code", c.Code))
			return
		}
		changed := code != l.state.Prefs.Currency
		l.mutate(ctx, func(p *domain.Preferences) { p.Currency = code })
		l.trigger(ctx, "currency", changed)
	case SetTrackedCoins:
		l.mutate(ctx, func(p *domain.Preferences) { p.TrackedCoinIDs = domain.NewIDSet(c.CoinIDs...) })
		l.trigger(ctx, "coins", true)
	case ToggleFavorite:
		l.mutate(ctx, func(p *domain.Preferences) {
			if p.Favorites.Has(c.CoinID) {
				delete(p.Favorites, c.CoinID)
			} else if c.CoinID != "" {
				p.Favorites[c.CoinID] = struct{}{}
			}
		})
		l.rerender()
	case UpsertAlert:
		if c.Rule.CoinID == "" {
			return
		}
		l.mutate(ctx, func(p *domain.Preferences) { p.Alerts[c.Rule.CoinID] = c.Rule })
		l.rerender()
	case ClearAlert:
		l.mutate(ctx, func(p *domain.Preferences) { delete(p.Alerts, c.CoinID) })
		l.rerender()
	case SetTheme:
		if _, ok := domain.ParseTheme(string(c.Theme)); !ok {
			return
		}
		l.mutate(ctx, func(p *domain.Preferences) { p.Theme = c.Theme })
		l.rerender()
	case SetLanguage:
		if c.Code == "" {
			return
		}
		l.mutate(ctx, func(p *domain.Preferences) { p.Language = c.Code })
		l.rerender()
	case SetFilter:
		l.state.Filter = c.Filter
		l.rerender()
	case RefreshNow:
		l.trigger(ctx, "manual", false)
	case ConnectivityChanged:
		if c.Online {
			l.logger.Info("connectivity restored")
			l.trigger(ctx, "online", false)
			return
		}
		l.logger.Info("connectivity lost")
		l.state = l.applyOffline(l.state)
		l.publish()
	default:
		l.logger.Warn("unknown command", zap.String("command", cmd.CommandName()))
	}
}

// mutate replaces preferences with an edited copy and persists it before
// anything else reads them.
func (l *RefreshLoop) mutate(ctx context.Context, edit func(*domain.Preferences)) {
	prefs := l.state.Prefs.Clone()
	edit(&prefs)
	l.state.Prefs = prefs
	l.store.Save(ctx, prefs)
}

func (l *RefreshLoop) rerender() {
	if l.state.Snapshot != nil {
		l.state.Rows = Project(l.state.Snapshot, l.state.Prefs, l.state.Currency, l.state.Filter)
	}
	l.publish()
}

func (l *RefreshLoop) publish() {
	view := l.state.View()
	l.viewMu.Lock()
	l.view = view
	l.viewMu.Unlock()
	if l.renderer != nil {
		l.renderer.Render(view)
	}
}

func errorMessage(err error) string {
	var apiErr *domain.APIError
	var decodeErr *domain.DecodeError
	switch {
	case errors.As(err, &apiErr):
		return "Failed to fetch data: the price service answered with an error. Retrying shortly."
	case errors.As(err, &decodeErr):
		return "Failed to fetch data: received malformed market data. Retrying shortly."
	default:
		return "Failed to fetch data. Please check your internet connection."
	}
}
