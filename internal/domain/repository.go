package domain

import (
	"context"
)

type KeyValueStore interface {
	// Get returns ErrNotFound when the key was never written.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

type MarketDataClient interface {
	FetchSnapshot(ctx context.Context, coinIDs []string, currency string) (MarketSnapshot, error)
	FetchHistory(ctx context.Context, coinID, currency string, days int) ([]PricePoint, error)
}

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

type Connectivity interface {
	Online() bool
}

type Renderer interface {
	Render(view View)
}
