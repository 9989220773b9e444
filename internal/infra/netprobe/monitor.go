package netprobe

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Monitor reports whether the market data host is reachable by periodically
// opening a TCP connection to it.
type Monitor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dialer   net.Dialer
	logger   *zap.Logger

	online   atomic.Bool
	onChange func(online bool)
}

func NewMonitor(addr string, interval, timeout time.Duration, logger *zap.Logger) *Monitor {
	m := &Monitor{addr: addr, interval: interval, timeout: timeout, logger: logger}
	m.online.Store(true)
	return m
}

// OnChange registers a callback run from the probe goroutine on every transition.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.onChange = fn
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Run probes until ctx is done. The monitor starts optimistic, so the
// first failed probe counts as a transition.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	conn, err := m.dialer.DialContext(dialCtx, "tcp", m.addr)
	if ctx.Err() != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	online := err == nil
	if online {
		_ = conn.Close()
	}

	if m.online.Swap(online) == online {
		return
	}
	if online {
		m.logger.Info("connectivity restored", zap.String("addr", m.addr))
	} else {
		m.logger.Warn("connectivity lost", zap.String("addr", m.addr), zap.Error(err))
	}
	if m.onChange != nil {
		m.onChange(online)
	}
}
