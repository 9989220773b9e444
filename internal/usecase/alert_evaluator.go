package usecase

import (
	"github.com/NasaVasa/coinwatch/internal/domain"
)

// EvaluateAlerts returns the rules that fire against snapshot, in snapshot
// order, and the rules left over. Fired rules are one-shot and never appear
// in remaining; rules for coins missing from snapshot are carried over as is.
// The rules map is not modified.
func EvaluateAlerts(snapshot domain.MarketSnapshot, rules map[string]domain.AlertRule) ([]domain.FiredAlert, map[string]domain.AlertRule) {
	remaining := make(map[string]domain.AlertRule, len(rules))
	for coinID, rule := range rules {
		remaining[coinID] = rule
	}
	if len(rules) == 0 {
		return nil, remaining
	}

	var fired []domain.FiredAlert
	for _, coin := range snapshot {
		rule, ok := remaining[coin.ID]
		if !ok {
			continue
		}
		if !rule.Triggered(coin.CurrentPrice) {
			continue
		}
		fired = append(fired, domain.FiredAlert{
			CoinID:          coin.ID,
			Rule:            rule,
			TriggeringPrice: coin.CurrentPrice,
		})
		delete(remaining, coin.ID)
	}
	return fired, remaining
}
