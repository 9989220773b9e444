package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"go.uber.org/zap"
)

// MultiNotifier fans a notification out to every sink and joins their errors.
type MultiNotifier []domain.Notifier

func (m MultiNotifier) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, title, body string) error {
	n.logger.Info("notification", zap.String("title", title), zap.String("body", body))
	return nil
}

// FormatAlert builds the title and body shown for a fired alert.
func FormatAlert(alert domain.FiredAlert, coin domain.CoinSnapshot, currency, lang string) (string, string) {
	name := coin.Name
	if name == "" {
		name = alert.CoinID
	}
	printer := newPrinter(lang)
	title := "Price alert: " + name
	if coin.Symbol != "" {
		title += " (" + strings.ToUpper(coin.Symbol) + ")"
	}
	body := printer.Sprintf(
		"%s is now %s, %s your target of %s.",
		name,
		formatMoney(printer, alert.TriggeringPrice, currency),
		string(alert.Rule.Condition),
		formatMoney(printer, alert.Rule.Threshold, currency),
	)
	return title, body
}
