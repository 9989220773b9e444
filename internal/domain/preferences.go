package domain

import (
	"regexp"
	"sort"
	"strings"
)

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

func ParseTheme(input string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(input))) {
	case ThemeDark:
		return ThemeDark, true
	case ThemeLight:
		return ThemeLight, true
	default:
		return "", false
	}
}

type Filter string

const (
	FilterAll       Filter = "all"
	FilterFavorites Filter = "favorites"
)

func ParseFilter(input string) (Filter, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "all", "":
		return FilterAll, true
	case "favorites", "favourites", "fav":
		return FilterFavorites, true
	default:
		return "", false
	}
}

const (
	DefaultCurrency = "usd"
	DefaultLanguage = "en"
	DefaultTheme    = ThemeDark
)

// DefaultCoinIDs is the tracked set used when nothing usable was persisted.
var DefaultCoinIDs = []string{"bitcoin", "ethereum", "cardano", "solana", "dogecoin"}

type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

type Preferences struct {
	TrackedCoinIDs IDSet
	Favorites      IDSet
	Currency       string
	Language       string
	Theme          Theme
	Alerts         map[string]AlertRule
}

func DefaultPreferences() Preferences {
	return Preferences{
		TrackedCoinIDs: NewIDSet(DefaultCoinIDs...),
		Favorites:      NewIDSet(),
		Currency:       DefaultCurrency,
		Language:       DefaultLanguage,
		Theme:          DefaultTheme,
		Alerts:         make(map[string]AlertRule),
	}
}

// Clone returns a copy that shares no maps with p.
func (p Preferences) Clone() Preferences {
	out := p
	out.TrackedCoinIDs = p.TrackedCoinIDs.Clone()
	out.Favorites = p.Favorites.Clone()
	out.Alerts = make(map[string]AlertRule, len(p.Alerts))
	for id, rule := range p.Alerts {
		out.Alerts[id] = rule
	}
	return out
}

var currencyPattern = regexp.MustCompile(`^[a-z]{2,10}$`)

// NormalizeCurrency lowercases a vs_currency code and rejects anything the
// markets endpoint could not accept.
func NormalizeCurrency(input string) (string, bool) {
	code := strings.ToLower(strings.TrimSpace(input))
	if !currencyPattern.MatchString(code) {
		return "", false
	}
	return code, true
}
