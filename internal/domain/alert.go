package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type AlertCondition string

const (
	ConditionAbove AlertCondition = "above"
	ConditionBelow AlertCondition = "below"
)

func ParseAlertCondition(input string) (AlertCondition, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "above", ">", "up":
		return ConditionAbove, nil
	case "below", "<", "down":
		return ConditionBelow, nil
	default:
		return "", fmt.Errorf("unknown alert condition %q", input)
	}
}

type AlertRule struct {
	CoinID    string
	Threshold decimal.Decimal
	Condition AlertCondition
}

// Triggered uses strict comparison; a price equal to the threshold never fires.
func (r AlertRule) Triggered(price decimal.Decimal) bool {
	switch r.Condition {
	case ConditionAbove:
		return price.GreaterThan(r.Threshold)
	case ConditionBelow:
		return price.LessThan(r.Threshold)
	default:
		return false
	}
}

type FiredAlert struct {
	CoinID          string
	Rule            AlertRule
	TriggeringPrice decimal.Decimal
}
