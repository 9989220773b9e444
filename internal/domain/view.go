package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Row struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Symbol                string            `json:"symbol"`
	Image                 string            `json:"image"`
	Price                 decimal.Decimal   `json:"price"`
	PriceChangePercent24h *decimal.Decimal  `json:"change_24h,omitempty"`
	Sparkline             []decimal.Decimal `json:"sparkline,omitempty"`
	PriceText             string            `json:"price_text"`
	MarketCapText         string            `json:"market_cap_text"`
	VolumeText            string            `json:"volume_text"`
	ChangeText            string            `json:"change_text"`
	Favorite              bool              `json:"favorite"`
	Alert                 *AlertView        `json:"alert,omitempty"`
}

type AlertView struct {
	CoinID    string          `json:"coin_id,omitempty"`
	Threshold decimal.Decimal `json:"threshold"`
	Condition AlertCondition  `json:"condition"`
}

// View is everything a UI needs to draw one frame. Alerts and
// TrackedCoinIDs cover all preferences, including coins hidden from Rows.
type View struct {
	Rows           []Row       `json:"rows"`
	Alerts         []AlertView `json:"alerts"`
	TrackedCoinIDs []string    `json:"tracked_coin_ids"`
	Currency       string      `json:"currency"`
	Language       string      `json:"language"`
	Theme          Theme       `json:"theme"`
	Filter         Filter      `json:"filter"`
	Offline        bool        `json:"offline"`
	Error          string      `json:"error,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Seq            uint64      `json:"seq"`
}
