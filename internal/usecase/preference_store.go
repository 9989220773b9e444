package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Persisted keys. The layout matches what the browser version kept in localStorage.
const (
	KeyCoins     = "coins"
	KeyFavorites = "favorites"
	KeyCurrency  = "currency"
	KeyLanguage  = "language"
	KeyTheme     = "theme"
	KeyAlerts    = "alerts"
	KeyLastData  = "lastData"
)

type PreferenceStore struct {
	kv      domain.KeyValueStore
	timeout time.Duration
	logger  *zap.Logger
}

func NewPreferenceStore(kv domain.KeyValueStore, timeout time.Duration, logger *zap.Logger) *PreferenceStore {
	return &PreferenceStore{kv: kv, timeout: timeout, logger: logger}
}

type alertWire struct {
	Price     json.Number `json:"price"`
	Condition string      `json:"condition"`
}

// Load never fails. Every key is decoded on its own and falls back to its
// default when it is missing or unreadable.
func (s *PreferenceStore) Load(ctx context.Context) domain.Preferences {
	prefs := domain.DefaultPreferences()

	if ids, ok := s.loadStrings(ctx, KeyCoins); ok {
		if tracked := domain.NewIDSet(ids...); len(tracked) > 0 {
			prefs.TrackedCoinIDs = tracked
		}
	}
	if ids, ok := s.loadStrings(ctx, KeyFavorites); ok {
		prefs.Favorites = domain.NewIDSet(ids...)
	}
	if raw, ok := s.get(ctx, KeyCurrency); ok {
		if code, valid := domain.NormalizeCurrency(raw); valid {
			prefs.Currency = code
		} else {
			s.logger.Warn("ignoring invalid persisted currency", zap.String("value", raw))
		}
	}
	if raw, ok := s.get(ctx, KeyLanguage); ok {
		if lang := strings.TrimSpace(raw); lang != "" {
			prefs.Language = lang
		}
	}
	if raw, ok := s.get(ctx, KeyTheme); ok {
		if theme, valid := domain.ParseTheme(raw); valid {
			prefs.Theme = theme
		} else {
			s.logger.Warn("ignoring invalid persisted theme", zap.String("value", raw))
		}
	}
	if raw, ok := s.get(ctx, KeyAlerts); ok {
		if alerts, err := decodeAlerts(raw); err != nil {
			s.logger.Warn("ignoring corrupt persisted alerts", zap.Error(err))
		} else {
			prefs.Alerts = alerts
		}
	}

	return prefs
}

// Save writes every field. Failures are logged and otherwise ignored.
func (s *PreferenceStore) Save(ctx context.Context, prefs domain.Preferences) {
	s.setJSON(ctx, KeyCoins, prefs.TrackedCoinIDs.Sorted())
	s.setJSON(ctx, KeyFavorites, prefs.Favorites.Sorted())
	s.set(ctx, KeyCurrency, prefs.Currency)
	s.set(ctx, KeyLanguage, prefs.Language)
	s.set(ctx, KeyTheme, string(prefs.Theme))
	s.setJSON(ctx, KeyAlerts, encodeAlerts(prefs.Alerts))
}

// LoadCache returns nil when no usable snapshot was persisted.
func (s *PreferenceStore) LoadCache(ctx context.Context) *domain.CachedSnapshot {
	raw, ok := s.get(ctx, KeyLastData)
	if !ok {
		return nil
	}
	var cached domain.CachedSnapshot
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		s.logger.Warn("ignoring corrupt cached snapshot", zap.Error(err))
		return nil
	}
	return &cached
}

func (s *PreferenceStore) SaveCache(ctx context.Context, cached domain.CachedSnapshot) {
	s.setJSON(ctx, KeyLastData, cached)
}

func (s *PreferenceStore) get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("preference read failed", zap.Error(&domain.PersistenceError{Key: key, Err: err}))
		}
		return "", false
	}
	return value, true
}

func (s *PreferenceStore) loadStrings(ctx context.Context, key string) ([]string, bool) {
	raw, ok := s.get(ctx, key)
	if !ok {
		return nil, false
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		s.logger.Warn("ignoring corrupt persisted list", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return values, true
}

func (s *PreferenceStore) set(ctx context.Context, key, value string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.kv.Set(ctx, key, value); err != nil {
		s.logger.Warn("preference write failed", zap.Error(&domain.PersistenceError{Key: key, Err: err}))
	}
}

func (s *PreferenceStore) setJSON(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("preference encode failed", zap.Error(&domain.PersistenceError{Key: key, Err: err}))
		return
	}
	s.set(ctx, key, string(data))
}

// encodeAlerts produces [[coinId, {"price": n, "condition": c}], ...] ordered by coin id.
func encodeAlerts(alerts map[string]domain.AlertRule) [][2]any {
	ids := make(domain.IDSet, len(alerts))
	for id := range alerts {
		ids[id] = struct{}{}
	}
	pairs := make([][2]any, 0, len(alerts))
	for _, id := range ids.Sorted() {
		rule := alerts[id]
		pairs = append(pairs, [2]any{id, alertWire{
			Price:     json.Number(rule.Threshold.String()),
			Condition: string(rule.Condition),
		}})
	}
	return pairs
}

func decodeAlerts(raw string) (map[string]domain.AlertRule, error) {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, err
	}

	alerts := make(map[string]domain.AlertRule, len(pairs))
	for i, pair := range pairs {
		var coinID string
		if err := json.Unmarshal(pair[0], &coinID); err != nil || coinID == "" {
			return nil, fmt.Errorf("alerts[%d]: bad coin id", i)
		}
		var wire alertWire
		if err := json.Unmarshal(pair[1], &wire); err != nil {
			return nil, fmt.Errorf("alerts[%d]: %w", i, err)
		}
		threshold, err := decimal.NewFromString(wire.Price.String())
		if err != nil {
			return nil, fmt.Errorf("alerts[%d] price: %w", i, err)
		}
		condition, err := domain.ParseAlertCondition(wire.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts[%d]: %w", i, err)
		}
		alerts[coinID] = domain.AlertRule{CoinID: coinID, Threshold: threshold, Condition: condition}
	}
	return alerts, nil
}
