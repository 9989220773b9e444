package coingecko

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
)

type marketCoin struct {
	ID                       string          `json:"id"`
	Name                     string          `json:"name"`
	Symbol                   string          `json:"symbol"`
	Image                    string          `json:"image"`
	CurrentPrice             NullableDecimal `json:"current_price"`
	MarketCap                NullableDecimal `json:"market_cap"`
	TotalVolume              NullableDecimal `json:"total_volume"`
	PriceChangePercentage24h NullableDecimal `json:"price_change_percentage_24h"`
	SparklineIn7d            *sparkline      `json:"sparkline_in_7d"`
}

type sparkline struct {
	Price []decimal.Decimal `json:"price"`
}

type marketChartResponse struct {
	Prices [][2]json.Number `json:"prices"`
}

type NullableDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		n.Valid = false
		return nil
	}
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 {
		n.Valid = false
		return nil
	}
	if trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		trimmed = strings.Trim(trimmed, "\"")
	}
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		n.Valid = false
		return err
	}
	n.Decimal = dec
	n.Valid = true
	return nil
}

func (n NullableDecimal) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Decimal.String())
}

var errMissingField = errors.New("missing required field")

func mapMarketCoin(coin marketCoin) (domain.CoinSnapshot, error) {
	if coin.ID == "" {
		return domain.CoinSnapshot{}, fmt.Errorf("%w: id", errMissingField)
	}
	required := []struct {
		name  string
		value NullableDecimal
	}{
		{"current_price", coin.CurrentPrice},
		{"market_cap", coin.MarketCap},
		{"total_volume", coin.TotalVolume},
	}
	for _, field := range required {
		if !field.value.Valid {
			return domain.CoinSnapshot{}, fmt.Errorf("%w: %s (coin %s)", errMissingField, field.name, coin.ID)
		}
	}

	snapshot := domain.CoinSnapshot{
		ID:           coin.ID,
		Name:         coin.Name,
		Symbol:       coin.Symbol,
		Image:        coin.Image,
		CurrentPrice: coin.CurrentPrice.Decimal,
		MarketCap:    coin.MarketCap.Decimal,
		TotalVolume:  coin.TotalVolume.Decimal,
	}
	if coin.PriceChangePercentage24h.Valid {
		value := coin.PriceChangePercentage24h.Decimal
		snapshot.PriceChangePercent24h = &value
	}
	if coin.SparklineIn7d != nil && len(coin.SparklineIn7d.Price) > 0 {
		snapshot.Sparkline = coin.SparklineIn7d.Price
	}
	return snapshot, nil
}

func mapMarketChart(payload marketChartResponse) ([]domain.PricePoint, error) {
	points := make([]domain.PricePoint, 0, len(payload.Prices))
	for i, pair := range payload.Prices {
		ms, err := pair[0].Int64()
		if err != nil {
			// some responses carry fractional millisecond timestamps
			f, ferr := pair[0].Float64()
			if ferr != nil {
				return nil, fmt.Errorf("prices[%d] timestamp: %w", i, err)
			}
			ms = int64(f)
		}
		price, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			return nil, fmt.Errorf("prices[%d] price: %w", i, err)
		}
		points = append(points, domain.PricePoint{Timestamp: time.UnixMilli(ms).UTC(), Price: price})
	}
	return points, nil
}
