package usecase

import (
	"github.com/NasaVasa/coinwatch/internal/domain"
)

// Command is a user or environment event consumed by the refresh loop.
type Command interface {
	CommandName() string
}

type SetCurrency struct {
	Code string
}

type SetTrackedCoins struct {
	CoinIDs []string
}

type ToggleFavorite struct {
	CoinID string
}

type UpsertAlert struct {
	Rule domain.AlertRule
}

type ClearAlert struct {
	CoinID string
}

type SetTheme struct {
	Theme domain.Theme
}

type SetLanguage struct {
	Code string
}

type SetFilter struct {
	Filter domain.Filter
}

type RefreshNow struct{}

type ConnectivityChanged struct {
	Online bool
}

func (SetCurrency) CommandName() string         { return "set_currency" }
func (SetTrackedCoins) CommandName() string     { return "set_coins" }
func (ToggleFavorite) CommandName() string      { return "toggle_favorite" }
func (UpsertAlert) CommandName() string         { return "upsert_alert" }
func (ClearAlert) CommandName() string          { return "clear_alert" }
func (SetTheme) CommandName() string            { return "set_theme" }
func (SetLanguage) CommandName() string         { return "set_language" }
func (SetFilter) CommandName() string           { return "set_filter" }
func (RefreshNow) CommandName() string          { return "refresh" }
func (ConnectivityChanged) CommandName() string { return "connectivity" }
