package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CoinSnapshot struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Symbol                string            `json:"symbol"`
	Image                 string            `json:"image"`
	CurrentPrice          decimal.Decimal   `json:"current_price"`
	MarketCap             decimal.Decimal   `json:"market_cap"`
	TotalVolume           decimal.Decimal   `json:"total_volume"`
	PriceChangePercent24h *decimal.Decimal  `json:"price_change_percentage_24h,omitempty"`
	Sparkline             []decimal.Decimal `json:"sparkline,omitempty"`
}

// MarketSnapshot keeps the order the API returned the coins in.
type MarketSnapshot []CoinSnapshot

func (s MarketSnapshot) Find(coinID string) (CoinSnapshot, bool) {
	for _, coin := range s {
		if coin.ID == coinID {
			return coin, true
		}
	}
	return CoinSnapshot{}, false
}

type CachedSnapshot struct {
	Currency  string         `json:"currency"`
	FetchedAt time.Time      `json:"fetched_at"`
	Coins     MarketSnapshot `json:"coins"`
}

type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}
