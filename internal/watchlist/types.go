package watchlist

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Exchange identifies the market a symbol is listed on.
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
)

// ParseExchange reports whether s names a known exchange, case-insensitively.
func ParseExchange(s string) (Exchange, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ExchangeNSE):
		return ExchangeNSE, true
	case string(ExchangeBSE):
		return ExchangeBSE, true
	}
	return "", false
}

// ExchangeForTicker infers the exchange from the ticker shape. Screener
// links carry numeric BSE scrip codes for companies without an NSE listing.
func ExchangeForTicker(ticker string) Exchange {
	if ticker == "" {
		return ExchangeNSE
	}
	for _, r := range ticker {
		if r < '0' || r > '9' {
			return ExchangeNSE
		}
	}
	return ExchangeBSE
}

// Color is a user-assigned tag on a symbol. It carries no business meaning.
type Color string

const (
	ColorNone   Color = "none"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
)

// Next advances through the fixed cycle none -> red -> yellow -> green -> none.
func (c Color) Next() Color {
	switch c {
	case ColorRed:
		return ColorYellow
	case ColorYellow:
		return ColorGreen
	case ColorGreen:
		return ColorNone
	default:
		return ColorRed
	}
}

// Symbol is one tracked ticker on one exchange. AddedAt is set once at
// insertion (milliseconds since epoch) and never mutated.
type Symbol struct {
	Ticker   string   `json:"ticker"`
	Exchange Exchange `json:"exchange"`
	Color    Color    `json:"color"`
	AddedAt  int64    `json:"addedAt"`
}

// Watchlist is a named, ordered collection of symbols. Within one watchlist
// the (ticker, exchange) pair is unique.
type Watchlist struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Symbols []Symbol `json:"symbols"`
}

// Settings is the flat persisted configuration record. Field names match the
// on-disk document, which must stay readable by older agents.
type Settings struct {
	Theme            string `json:"theme"`
	ShowColWatchlist bool   `json:"showColWatchlist"`
	ShowColChart     bool   `json:"showColTv"`
	LogLevel         string `json:"logLevel"`
}

// State is the single root document. It is persisted as one JSON unit.
type State struct {
	IsOpen            bool        `json:"isOpen"`
	Width             int         `json:"width"`
	Watchlists        []Watchlist `json:"watchlists"`
	ActiveWatchlistID string      `json:"activeWatchlistId"`
	Visited           []string    `json:"visited"`
	Settings          Settings    `json:"settings"`

	// extra holds top-level document fields this version does not model.
	// EncodeState writes them back verbatim so a document touched by a
	// newer agent survives a round trip through an older one.
	extra map[string]json.RawMessage
}

const (
	defaultWatchlistID   = "default"
	defaultWatchlistName = "My Watchlist"
	defaultWidth         = 350
)

// DefaultState returns the document created on first run.
func DefaultState() State {
	return State{
		IsOpen: false,
		Width:  defaultWidth,
		Watchlists: []Watchlist{
			{ID: defaultWatchlistID, Name: defaultWatchlistName, Symbols: []Symbol{}},
		},
		ActiveWatchlistID: defaultWatchlistID,
		Visited:           []string{},
		Settings: Settings{
			Theme:            "light",
			ShowColWatchlist: true,
			ShowColChart:     true,
			LogLevel:         "INFO",
		},
	}
}

// newListID produces a time-based watchlist token, e.g. "wl_1735689600000".
func newListID(now time.Time) string {
	return "wl_" + strconv.FormatInt(now.UnixMilli(), 10)
}

// Clone returns a deep copy so callers can read without holding store locks.
func (s State) Clone() State {
	out := s
	out.Watchlists = make([]Watchlist, len(s.Watchlists))
	for i, wl := range s.Watchlists {
		out.Watchlists[i] = wl
		out.Watchlists[i].Symbols = append([]Symbol(nil), wl.Symbols...)
	}
	out.Visited = append([]string(nil), s.Visited...)
	if s.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(s.extra))
		for k, v := range s.extra {
			out.extra[k] = v
		}
	}
	return out
}
