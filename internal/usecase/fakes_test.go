package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/NasaVasa/coinwatch/internal/domain"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	writes  []string
	failGet error
	failSet error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", m.failGet
	}
	value, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return value, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.data[key] = value
	m.writes = append(m.writes, key)
	return nil
}

func (m *memKV) Close() error { return nil }

func (m *memKV) value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	return value, ok
}

type sentNotification struct {
	Title string
	Body  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Title: title, Body: body})
	return n.err
}

func (n *recordingNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

type recordingRenderer struct {
	mu    sync.Mutex
	views []domain.View
}

func (r *recordingRenderer) Render(view domain.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, view)
}

func (r *recordingRenderer) all() []domain.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.View(nil), r.views...)
}

func (r *recordingRenderer) last() (domain.View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return domain.View{}, false
	}
	return r.views[len(r.views)-1], true
}

type staticConnectivity struct {
	online bool
}

func (c staticConnectivity) Online() bool { return c.online }

type fetchResponse struct {
	snapshot domain.MarketSnapshot
	err      error
}

type fetchCall struct {
	CoinIDs  []string
	Currency string
	release  chan fetchResponse
}

// fakeClient answers immediately when respond is set; otherwise every call
// blocks until the test releases it, ignoring cancellation so that late
// completions reach the loop.
type fakeClient struct {
	mu      sync.Mutex
	calls   []*fetchCall
	started chan *fetchCall
	respond func(coinIDs []string, currency string) (domain.MarketSnapshot, error)
}

func newBlockingClient() *fakeClient {
	return &fakeClient{started: make(chan *fetchCall, 16)}
}

func (c *fakeClient) FetchSnapshot(ctx context.Context, coinIDs []string, currency string) (domain.MarketSnapshot, error) {
	c.mu.Lock()
	call := &fetchCall{CoinIDs: coinIDs, Currency: currency, release: make(chan fetchResponse, 1)}
	c.calls = append(c.calls, call)
	respond := c.respond
	c.mu.Unlock()

	if respond != nil {
		return respond(coinIDs, currency)
	}
	c.started <- call
	resp := <-call.release
	return resp.snapshot, resp.err
}

func (c *fakeClient) FetchHistory(ctx context.Context, coinID, currency string, days int) ([]domain.PricePoint, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
