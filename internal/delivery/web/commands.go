package web

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/NasaVasa/coinwatch/internal/usecase"
	"github.com/shopspring/decimal"
)

var errUnknownCommand = errors.New("unknown command")

// commandMessage is the JSON shape browsers send over /ws and POST /api/commands.
type commandMessage struct {
	Type      string          `json:"type"`
	Value     string          `json:"value,omitempty"`
	Coin      string          `json:"coin,omitempty"`
	Coins     []string        `json:"coins,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Condition string          `json:"condition,omitempty"`
}

func decodeCommand(data []byte) (usecase.Command, error) {
	var msg commandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch msg.Type {
	case "currency":
		code, ok := domain.NormalizeCurrency(msg.Value)
		if !ok {
			return nil, fmt.Errorf("invalid currency %q", msg.Value)
		}
		return usecase.SetCurrency{Code: code}, nil
	case "coins":
		return usecase.SetTrackedCoins{CoinIDs: msg.Coins}, nil
	case "favorite":
		if msg.Coin == "" {
			return nil, errors.New("favorite: coin is required")
		}
		return usecase.ToggleFavorite{CoinID: msg.Coin}, nil
	case "alert":
		if msg.Coin == "" {
			return nil, errors.New("alert: coin is required")
		}
		condition, err := domain.ParseAlertCondition(msg.Condition)
		if err != nil {
			return nil, err
		}
		if !msg.Price.IsPositive() {
			return nil, errors.New("alert: price must be positive")
		}
		return usecase.UpsertAlert{Rule: domain.AlertRule{CoinID: msg.Coin, Threshold: msg.Price, Condition: condition}}, nil
	case "unalert":
		return usecase.ClearAlert{CoinID: msg.Coin}, nil
	case "theme":
		theme, ok := domain.ParseTheme(msg.Value)
		if !ok {
			return nil, fmt.Errorf("invalid theme %q", msg.Value)
		}
		return usecase.SetTheme{Theme: theme}, nil
	case "language":
		if msg.Value == "" {
			return nil, errors.New("language: value is required")
		}
		return usecase.SetLanguage{Code: msg.Value}, nil
	case "filter":
		filter, ok := domain.ParseFilter(msg.Value)
		if !ok {
			return nil, fmt.Errorf("invalid filter %q", msg.Value)
		}
		return usecase.SetFilter{Filter: filter}, nil
	case "refresh":
		return usecase.RefreshNow{}, nil
	default:
		return nil, fmt.Errorf("%w %q", errUnknownCommand, msg.Type)
	}
}
