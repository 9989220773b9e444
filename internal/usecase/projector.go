package usecase

import (
	"strings"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Project turns a snapshot into display rows, keeping snapshot order.
func Project(snapshot domain.MarketSnapshot, prefs domain.Preferences, quote string, filter domain.Filter) []domain.Row {
	printer := newPrinter(prefs.Language)
	rows := make([]domain.Row, 0, len(snapshot))
	for _, coin := range snapshot {
		favorite := prefs.Favorites.Has(coin.ID)
		if filter == domain.FilterFavorites && !favorite {
			continue
		}
		row := domain.Row{
			ID:                    coin.ID,
			Name:                  coin.Name,
			Symbol:                strings.ToUpper(coin.Symbol),
			Image:                 coin.Image,
			Price:                 coin.CurrentPrice,
			PriceChangePercent24h: coin.PriceChangePercent24h,
			Sparkline:             coin.Sparkline,
			PriceText:             formatMoney(printer, coin.CurrentPrice, quote),
			MarketCapText:         formatWhole(printer, coin.MarketCap, quote),
			VolumeText:            formatWhole(printer, coin.TotalVolume, quote),
			ChangeText:            formatChange(printer, coin.PriceChangePercent24h),
			Favorite:              favorite,
		}
		if rule, ok := prefs.Alerts[coin.ID]; ok {
			row.Alert = &domain.AlertView{CoinID: row.ID, Threshold: rule.Threshold, Condition: rule.Condition}
		}
		rows = append(rows, row)
	}
	return rows
}

func newPrinter(lang string) *message.Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

// formatMoney keeps more digits for sub-unit prices so small caps stay readable.
func formatMoney(p *message.Printer, amount decimal.Decimal, code string) string {
	precision := 2
	if amount.Abs().LessThan(decimal.NewFromInt(1)) {
		precision = 6
	}
	return p.Sprintf("%.*f %s", precision, amount.InexactFloat64(), currencyLabel(code))
}

func formatWhole(p *message.Printer, amount decimal.Decimal, code string) string {
	return p.Sprintf("%.0f %s", amount.Round(0).InexactFloat64(), currencyLabel(code))
}

// currencyLabel returns the ISO 4217 code for fiat currencies. Crypto
// quote currencies such as btc are not ISO units and are upper-cased as is.
func currencyLabel(code string) string {
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String()
	}
	return strings.ToUpper(code)
}

func formatChange(p *message.Printer, change *decimal.Decimal) string {
	if change == nil {
		return "N/A"
	}
	return p.Sprintf("%+.2f%%", change.InexactFloat64())
}
