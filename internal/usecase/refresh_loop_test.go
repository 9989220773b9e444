package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type loopFixture struct {
	kv       *memKV
	client   *fakeClient
	notifier *recordingNotifier
	renderer *recordingRenderer
	loop     *RefreshLoop
}

func newLoopFixture(t *testing.T, client *fakeClient, conn domain.Connectivity) *loopFixture {
	t.Helper()
	f := &loopFixture{
		kv:       newMemKV(),
		client:   client,
		notifier: &recordingNotifier{},
		renderer: &recordingRenderer{},
	}
	logger := zaptest.NewLogger(t)
	store := NewPreferenceStore(f.kv, time.Second, logger)
	f.loop = NewRefreshLoop(client, store, f.notifier, f.renderer, conn, LoopConfig{Interval: time.Hour, CommandBuffer: 8}, logger)
	return f
}

func respondWith(snapshot domain.MarketSnapshot, err error) *fakeClient {
	return &fakeClient{respond: func([]string, string) (domain.MarketSnapshot, error) {
		return snapshot, err
	}}
}

func initialState() State {
	return State{Prefs: domain.DefaultPreferences(), Filter: domain.FilterAll}
}

func TestRunCycle_SuccessFiresAlertOnce(t *testing.T) {
	snapshot := domain.MarketSnapshot{coin("bitcoin", "50000.01"), coin("ethereum", "3000")}
	f := newLoopFixture(t, respondWith(snapshot, nil), staticConnectivity{online: true})
	ctx := context.Background()

	state := initialState()
	state.Prefs.Alerts["bitcoin"] = rule("bitcoin", "50000", domain.ConditionAbove)
	state.Prefs.Alerts["ethereum"] = rule("ethereum", "1000", domain.ConditionBelow)

	state = f.loop.RunCycle(ctx, state)

	if state.Offline || state.Error != "" {
		t.Fatalf("unexpected failure state: offline=%v error=%q", state.Offline, state.Error)
	}
	if len(state.Rows) != 2 || state.Rows[0].ID != "bitcoin" {
		t.Fatalf("rows = %+v", state.Rows)
	}
	if _, ok := state.Prefs.Alerts["bitcoin"]; ok {
		t.Error("fired alert should be removed")
	}
	if _, ok := state.Prefs.Alerts["ethereum"]; !ok {
		t.Error("untriggered alert should remain")
	}
	if state.Rows[0].Alert != nil {
		t.Error("row should not show a removed alert")
	}
	persisted, _ := f.kv.value(KeyAlerts)
	if !strings.Contains(persisted, "ethereum") || strings.Contains(persisted, "bitcoin") {
		t.Errorf("persisted alerts = %s", persisted)
	}
	if _, ok := f.kv.value(KeyLastData); !ok {
		t.Error("successful fetch should be cached")
	}
	if state.Cache == nil || state.Cache.Currency != "usd" {
		t.Errorf("cache = %+v", state.Cache)
	}

	sent := f.notifier.all()
	if len(sent) != 1 || !strings.Contains(sent[0].Title, "bitcoin") {
		t.Fatalf("notifications = %+v", sent)
	}

	f.loop.RunCycle(ctx, state)
	if got := len(f.notifier.all()); got != 1 {
		t.Errorf("alert fired %d times, want once", got)
	}
}

func TestRunCycle_ThresholdEqualDoesNotFire(t *testing.T) {
	f := newLoopFixture(t, respondWith(domain.MarketSnapshot{coin("bitcoin", "50000")}, nil), nil)

	state := initialState()
	state.Prefs.Alerts["bitcoin"] = rule("bitcoin", "50000", domain.ConditionAbove)

	state = f.loop.RunCycle(context.Background(), state)

	if len(f.notifier.all()) != 0 {
		t.Error("price equal to threshold must not notify")
	}
	if _, ok := state.Prefs.Alerts["bitcoin"]; !ok {
		t.Error("rule should remain active")
	}
}

func TestRunCycle_ViewListsAlertsForHiddenCoins(t *testing.T) {
	snapshot := domain.MarketSnapshot{coin("bitcoin", "50000"), coin("ethereum", "3000")}
	f := newLoopFixture(t, respondWith(snapshot, nil), nil)

	state := initialState()
	state.Prefs.TrackedCoinIDs = domain.NewIDSet("bitcoin", "ethereum")
	state.Prefs.Favorites = domain.NewIDSet("ethereum")
	state.Filter = domain.FilterFavorites
	state.Prefs.Alerts["ripple"] = rule("ripple", "1", domain.ConditionAbove)
	state.Prefs.Alerts["bitcoin"] = rule("bitcoin", "60000", domain.ConditionAbove)

	view := f.loop.RunCycle(context.Background(), state).View()

	if len(view.Rows) != 1 || view.Rows[0].ID != "ethereum" {
		t.Fatalf("rows = %+v, want only ethereum", view.Rows)
	}
	if len(view.Alerts) != 2 {
		t.Fatalf("alerts = %+v, want 2", view.Alerts)
	}
	if view.Alerts[0].CoinID != "bitcoin" || view.Alerts[1].CoinID != "ripple" {
		t.Errorf("alerts = %+v, want bitcoin then ripple", view.Alerts)
	}
	if !view.Alerts[0].Threshold.Equal(decimal.NewFromInt(60000)) || view.Alerts[0].Condition != domain.ConditionAbove {
		t.Errorf("bitcoin alert = %+v", view.Alerts[0])
	}
	if got := strings.Join(view.TrackedCoinIDs, ","); got != "bitcoin,ethereum" {
		t.Errorf("tracked = %q", got)
	}
}

func TestRunCycle_NotificationOrderFollowsSnapshot(t *testing.T) {
	snapshot := domain.MarketSnapshot{coin("solana", "10"), coin("bitcoin", "10"), coin("cardano", "10")}
	f := newLoopFixture(t, respondWith(snapshot, nil), nil)

	state := initialState()
	for _, id := range []string{"bitcoin", "cardano", "solana"} {
		state.Prefs.Alerts[id] = rule(id, "1", domain.ConditionAbove)
	}

	f.loop.RunCycle(context.Background(), state)

	sent := f.notifier.all()
	if len(sent) != 3 {
		t.Fatalf("sent %d notifications, want 3", len(sent))
	}
	for i, id := range []string{"solana", "bitcoin", "cardano"} {
		if !strings.Contains(sent[i].Title, id) {
			t.Errorf("notification %d = %q, want %s", i, sent[i].Title, id)
		}
	}
}

func TestRunCycle_NetworkErrorUsesCache(t *testing.T) {
	f := newLoopFixture(t, respondWith(nil, &domain.NetworkError{Err: errors.New("no route to host")}), staticConnectivity{online: true})

	state := initialState()
	state.Cache = &domain.CachedSnapshot{
		Currency:  "eur",
		FetchedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Coins:     domain.MarketSnapshot{coin("bitcoin", "42")},
	}

	state = f.loop.RunCycle(context.Background(), state)

	if !state.Offline {
		t.Fatal("expected offline state")
	}
	if state.Error != "" {
		t.Errorf("offline state should not carry an error banner, got %q", state.Error)
	}
	if state.Currency != "eur" || len(state.Rows) != 1 || !state.Rows[0].Price.Equal(decimal.NewFromInt(42)) {
		t.Errorf("expected cached rows in eur, got %s %+v", state.Currency, state.Rows)
	}
	if !state.UpdatedAt.Equal(state.Cache.FetchedAt) {
		t.Errorf("updated at = %v, want cache time", state.UpdatedAt)
	}
}

func TestRunCycle_NetworkErrorWithoutCacheKeepsRows(t *testing.T) {
	f := newLoopFixture(t, respondWith(nil, &domain.NetworkError{Err: errors.New("dns")}), nil)

	state := initialState()
	state.Rows = []domain.Row{{ID: "bitcoin", PriceText: "1.00 USD"}}

	state = f.loop.RunCycle(context.Background(), state)

	if !state.Offline {
		t.Error("expected offline state")
	}
	if len(state.Rows) != 1 || state.Rows[0].PriceText != "1.00 USD" {
		t.Errorf("rows should be untouched, got %+v", state.Rows)
	}
}

func TestRunCycle_APIErrorKeepsRows(t *testing.T) {
	f := newLoopFixture(t, respondWith(nil, &domain.APIError{StatusCode: 429}), staticConnectivity{online: true})

	state := initialState()
	state.Rows = []domain.Row{{ID: "bitcoin"}}

	state = f.loop.RunCycle(context.Background(), state)

	if state.Offline {
		t.Error("api error while online is not offline")
	}
	if state.Error == "" {
		t.Error("expected an error message")
	}
	if len(state.Rows) != 1 {
		t.Errorf("rows should be kept, got %+v", state.Rows)
	}
	if _, ok := f.kv.value(KeyLastData); ok {
		t.Error("failed fetch must not overwrite the cache")
	}
}

func TestRunCycle_ErrorWhileOfflineTakesOfflinePath(t *testing.T) {
	f := newLoopFixture(t, respondWith(nil, &domain.DecodeError{Err: errors.New("truncated")}), staticConnectivity{online: false})

	state := f.loop.RunCycle(context.Background(), initialState())

	if !state.Offline || state.Error != "" {
		t.Errorf("offline=%v error=%q, want offline without banner", state.Offline, state.Error)
	}
}

func TestRunCycle_EmptyTrackedSetSkipsFetch(t *testing.T) {
	client := respondWith(domain.MarketSnapshot{coin("bitcoin", "1")}, nil)
	f := newLoopFixture(t, client, nil)

	state := initialState()
	state.Prefs.TrackedCoinIDs = domain.NewIDSet()
	state.Rows = []domain.Row{{ID: "bitcoin"}}

	state = f.loop.RunCycle(context.Background(), state)

	if client.callCount() != 0 {
		t.Errorf("client called %d times", client.callCount())
	}
	if state.Rows == nil || len(state.Rows) != 0 {
		t.Errorf("rows = %#v, want empty", state.Rows)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&domain.APIError{StatusCode: 500}, "answered with an error"},
		{&domain.DecodeError{Err: errors.New("x")}, "malformed"},
		{errors.New("other"), "check your internet connection"},
	}
	for _, tt := range tests {
		if got := errorMessage(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("errorMessage(%v) = %q", tt.err, got)
		}
	}
}

// Run loop tests below drive the loop goroutine through a blocking client.

func startLoop(t *testing.T, f *loopFixture) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("loop did not stop")
		}
	})
	return ctx
}

func nextCall(t *testing.T, client *fakeClient) *fetchCall {
	t.Helper()
	select {
	case call := <-client.started:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fetch")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// barrier returns once every command submitted before it was handled.
func barrier(t *testing.T, ctx context.Context, f *loopFixture) {
	t.Helper()
	before := len(f.renderer.all())
	if err := f.loop.Submit(ctx, SetFilter{Filter: domain.FilterAll}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "barrier render", func() bool { return len(f.renderer.all()) > before })
}

func TestRefreshLoop_StaleResultDiscarded(t *testing.T) {
	client := newBlockingClient()
	f := newLoopFixture(t, client, staticConnectivity{online: true})
	ctx := startLoop(t, f)

	first := nextCall(t, client)
	if first.Currency != "usd" {
		t.Fatalf("first fetch currency = %s", first.Currency)
	}

	if err := f.loop.Submit(ctx, SetCurrency{Code: "EUR"}); err != nil {
		t.Fatal(err)
	}
	second := nextCall(t, client)
	if second.Currency != "eur" {
		t.Fatalf("second fetch currency = %s", second.Currency)
	}

	first.release <- fetchResponse{snapshot: domain.MarketSnapshot{coin("bitcoin", "1")}}
	second.release <- fetchResponse{snapshot: domain.MarketSnapshot{coin("bitcoin", "2")}}

	waitFor(t, "eur view", func() bool {
		view := f.loop.Current()
		return view.Currency == "eur" && len(view.Rows) == 1
	})
	barrier(t, ctx, f)

	for _, view := range f.renderer.all() {
		for _, row := range view.Rows {
			if row.Price.Equal(decimal.NewFromInt(1)) {
				t.Fatalf("stale usd snapshot was rendered: %+v", view)
			}
		}
	}
	if got, _ := f.kv.value(KeyCurrency); got != "eur" {
		t.Errorf("persisted currency = %q", got)
	}
}

func TestRefreshLoop_CoalescesTriggers(t *testing.T) {
	client := newBlockingClient()
	f := newLoopFixture(t, client, staticConnectivity{online: true})
	ctx := startLoop(t, f)

	first := nextCall(t, client)
	for range 3 {
		if err := f.loop.Submit(ctx, RefreshNow{}); err != nil {
			t.Fatal(err)
		}
	}
	barrier(t, ctx, f)
	if got := client.callCount(); got != 1 {
		t.Fatalf("triggers during a fetch started %d fetches", got)
	}

	first.release <- fetchResponse{snapshot: domain.MarketSnapshot{coin("bitcoin", "1")}}
	second := nextCall(t, client)
	second.release <- fetchResponse{snapshot: domain.MarketSnapshot{coin("bitcoin", "2")}}

	waitFor(t, "second snapshot", func() bool {
		view := f.loop.Current()
		return len(view.Rows) == 1 && view.Rows[0].Price.Equal(decimal.NewFromInt(2))
	})
	barrier(t, ctx, f)
	if got := client.callCount(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestRefreshLoop_CommandsPersistAndRerender(t *testing.T) {
	client := newBlockingClient()
	f := newLoopFixture(t, client, staticConnectivity{online: true})
	ctx := startLoop(t, f)

	call := nextCall(t, client)
	call.release <- fetchResponse{snapshot: domain.MarketSnapshot{coin("bitcoin", "100"), coin("ethereum", "10")}}
	waitFor(t, "first render", func() bool { return len(f.loop.Current().Rows) == 2 })

	commands := []Command{
		ToggleFavorite{CoinID: "ethereum"},
		UpsertAlert{Rule: rule("bitcoin", "200", domain.ConditionAbove)},
		SetTheme{Theme: domain.ThemeLight},
		SetLanguage{Code: "de"},
		SetFilter{Filter: domain.FilterFavorites},
	}
	for _, cmd := range commands {
		if err := f.loop.Submit(ctx, cmd); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "favorites view", func() bool { return f.loop.Current().Filter == domain.FilterFavorites })

	view := f.loop.Current()
	if view.Theme != domain.ThemeLight || view.Language != "de" {
		t.Errorf("theme/language = %s/%s", view.Theme, view.Language)
	}
	if len(view.Rows) != 1 || view.Rows[0].ID != "ethereum" || !view.Rows[0].Favorite {
		t.Errorf("favorites filter rows = %+v", view.Rows)
	}
	if got, _ := f.kv.value(KeyFavorites); got != `["ethereum"]` {
		t.Errorf("persisted favorites = %s", got)
	}
	if got, _ := f.kv.value(KeyTheme); got != "light" {
		t.Errorf("persisted theme = %s", got)
	}
	if got, _ := f.kv.value(KeyAlerts); !strings.Contains(got, "bitcoin") {
		t.Errorf("persisted alerts = %s", got)
	}
	if client.callCount() != 1 {
		t.Errorf("display-only commands should not refetch, got %d fetches", client.callCount())
	}
}

func TestRefreshLoop_ConnectivityLostShowsCache(t *testing.T) {
	client := newBlockingClient()
	f := newLoopFixture(t, client, staticConnectivity{online: true})
	ctx := startLoop(t, f)

	call := nextCall(t, client)
	call.release <- fetchResponse{snapshot: domain.MarketSnapshot{coin("bitcoin", "7")}}
	waitFor(t, "first render", func() bool { return len(f.loop.Current().Rows) == 1 })

	if err := f.loop.Submit(ctx, ConnectivityChanged{Online: false}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "offline view", func() bool { return f.loop.Current().Offline })
	if rows := f.loop.Current().Rows; len(rows) != 1 || rows[0].ID != "bitcoin" {
		t.Errorf("offline rows = %+v", rows)
	}

	if err := f.loop.Submit(ctx, ConnectivityChanged{Online: true}); err != nil {
		t.Fatal(err)
	}
	next := nextCall(t, client)
	next.release <- fetchResponse{snapshot: domain.MarketSnapshot{coin("bitcoin", "8")}}
	waitFor(t, "online view", func() bool { return !f.loop.Current().Offline })
}

func TestRefreshLoop_EmptyTrackedSetRendersEmpty(t *testing.T) {
	client := newBlockingClient()
	f := newLoopFixture(t, client, nil)
	ctx := startLoop(t, f)

	call := nextCall(t, client)
	if err := f.loop.Submit(ctx, SetTrackedCoins{CoinIDs: nil}); err != nil {
		t.Fatal(err)
	}
	barrier(t, ctx, f)
	call.release <- fetchResponse{snapshot: domain.MarketSnapshot{coin("bitcoin", "1")}}
	barrier(t, ctx, f)

	view := f.loop.Current()
	if view.Rows == nil || len(view.Rows) != 0 {
		t.Errorf("rows = %#v, want empty", view.Rows)
	}
	if client.callCount() != 1 {
		t.Errorf("empty set should not fetch, got %d fetches", client.callCount())
	}
}

func TestRefreshLoop_LoadsPersistedState(t *testing.T) {
	client := newBlockingClient()
	f := newLoopFixture(t, client, nil)
	f.kv.data[KeyCurrency] = "gbp"
	f.kv.data[KeyCoins] = `["bitcoin"]`
	startLoop(t, f)

	call := nextCall(t, client)
	if call.Currency != "gbp" || len(call.CoinIDs) != 1 || call.CoinIDs[0] != "bitcoin" {
		t.Errorf("fetch = %s %v", call.Currency, call.CoinIDs)
	}
	call.release <- fetchResponse{}
}
