package telegram

import (
	"errors"
	"strings"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
)

const HelpText = `Commands:
/start - send price alerts to this chat
/help - show this help
/prices - current prices
/currency <code> - switch quote currency, e.g. /currency eur
/coins [id ...] - show or replace the tracked coins
/fav <coin_id> - toggle a favorite
/alert <coin_id> <above|below> <price>
/unalert <coin_id>
/alerts - list active alerts
/theme <dark|light>
/lang <code>
/filter <all|favorites>
/refresh - fetch prices now

Notes:
- > and < work as aliases for above and below.
- Alerts fire once, when the price moves strictly past the target.
Example:
/alert bitcoin above 50000
`

var ErrInvalidArguments = errors.New("invalid arguments")

func ParseCurrency(args string) (string, error) {
	code, ok := domain.NormalizeCurrency(args)
	if !ok {
		return "", ErrInvalidArguments
	}
	return code, nil
}

// ParseCoinIDs accepts ids separated by spaces or commas.
func ParseCoinIDs(args string) ([]string, error) {
	fields := strings.FieldsFunc(strings.ToLower(args), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, ErrInvalidArguments
	}
	return fields, nil
}

func ParseCoinID(args string) (string, error) {
	parts := strings.Fields(strings.ToLower(args))
	if len(parts) != 1 {
		return "", ErrInvalidArguments
	}
	return parts[0], nil
}

func ParseAlertArgs(args string) (domain.AlertRule, error) {
	parts := strings.Fields(args)
	if len(parts) != 3 {
		return domain.AlertRule{}, ErrInvalidArguments
	}
	condition, err := domain.ParseAlertCondition(parts[1])
	if err != nil {
		return domain.AlertRule{}, ErrInvalidArguments
	}
	threshold, err := decimal.NewFromString(strings.ReplaceAll(parts[2], ",", ""))
	if err != nil || !threshold.IsPositive() {
		return domain.AlertRule{}, ErrInvalidArguments
	}
	return domain.AlertRule{CoinID: strings.ToLower(parts[0]), Threshold: threshold, Condition: condition}, nil
}

func ParseThemeArg(args string) (domain.Theme, error) {
	theme, ok := domain.ParseTheme(args)
	if !ok {
		return "", ErrInvalidArguments
	}
	return theme, nil
}

func ParseLanguage(args string) (string, error) {
	lang := strings.TrimSpace(args)
	if lang == "" || strings.ContainsAny(lang, " \t") {
		return "", ErrInvalidArguments
	}
	return lang, nil
}

func ParseFilterArg(args string) (domain.Filter, error) {
	if strings.TrimSpace(args) == "" {
		return "", ErrInvalidArguments
	}
	filter, ok := domain.ParseFilter(args)
	if !ok {
		return "", ErrInvalidArguments
	}
	return filter, nil
}
