package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"go.uber.org/zap"
)

const apiKeyHeader = "x-cg-demo-api-key"

type Client struct {
	baseURL   string
	apiKey    string
	sparkline bool
	perPage   int
	client    *http.Client
	logger    *zap.Logger
}

type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	Sparkline bool
	PerPage   int
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		sparkline: opts.Sparkline,
		perPage:   opts.PerPage,
		client:    &http.Client{Timeout: opts.Timeout},
		logger:    logger,
	}
}

var _ domain.MarketDataClient = (*Client)(nil)

func (c *Client) FetchSnapshot(ctx context.Context, coinIDs []string, currency string) (domain.MarketSnapshot, error) {
	if len(coinIDs) == 0 {
		return nil, errors.New("fetch snapshot: no coin ids")
	}

	query := url.Values{}
	query.Set("vs_currency", currency)
	query.Set("ids", strings.Join(coinIDs, ","))
	query.Set("order", "market_cap_desc")
	perPage := c.perPage
	if perPage < len(coinIDs) {
		perPage = len(coinIDs)
	}
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("page", "1")
	query.Set("sparkline", strconv.FormatBool(c.sparkline))
	query.Set("price_change_percentage", "24h")
	endpoint := fmt.Sprintf("%s/coins/markets?%s", c.baseURL, query.Encode())

	var payload []marketCoin
	if err := c.get(ctx, "markets", endpoint, &payload); err != nil {
		return nil, err
	}

	snapshot := make(domain.MarketSnapshot, 0, len(payload))
	for _, coin := range payload {
		mapped, err := mapMarketCoin(coin)
		if err != nil {
			return nil, &domain.DecodeError{Err: err}
		}
		snapshot = append(snapshot, mapped)
	}
	return snapshot, nil
}

func (c *Client) FetchHistory(ctx context.Context, coinID, currency string, days int) ([]domain.PricePoint, error) {
	query := url.Values{}
	query.Set("vs_currency", currency)
	query.Set("days", strconv.Itoa(days))
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?%s", c.baseURL, url.PathEscape(coinID), query.Encode())

	var payload marketChartResponse
	if err := c.get(ctx, "market_chart", endpoint, &payload); err != nil {
		return nil, err
	}
	points, err := mapMarketChart(payload)
	if err != nil {
		return nil, &domain.DecodeError{Err: err}
	}
	return points, nil
}

func (c *Client) get(ctx context.Context, name, endpoint string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		request.Header.Set(apiKeyHeader, c.apiKey)
	}

	start := time.Now()
	c.logger.Debug("coingecko request start", zap.String("endpoint", name), zap.String("url", endpoint))
	response, err := c.client.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		c.logger.Warn("coingecko request failed", zap.String("endpoint", name), zap.Error(err))
		return &domain.NetworkError{Err: err}
	}
	defer response.Body.Close()

	c.logger.Debug(
		"coingecko request complete",
		zap.String("endpoint", name),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &domain.APIError{StatusCode: response.StatusCode}
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return &domain.NetworkError{Err: err}
		}
		return &domain.DecodeError{Err: err}
	}
	return nil
}
