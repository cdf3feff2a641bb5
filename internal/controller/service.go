// Package controller implements the operations behind the local HTTP API.
// It validates input, delegates to the watchlist store and the browser
// clients, and publishes change events for SSE subscribers.
package controller

import (
	"context"
	"net/url"
	"strings"

	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/screener_agent/internal/config"
	"github.com/dgnsrekt/screener_agent/internal/events"
	"github.com/dgnsrekt/screener_agent/internal/resolve"
	"github.com/dgnsrekt/screener_agent/internal/scanner"
	"github.com/dgnsrekt/screener_agent/internal/storage"
	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

// PageLister is the CDP surface the controller needs.
type PageLister interface {
	ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error)
	OpenTab(ctx context.Context, url string) error
}

// SymbolResolver resolves raw tickers to chartable symbols.
type SymbolResolver interface {
	Resolve(ctx context.Context, raw string) resolve.Symbol
}

// Service wraps watchlist and browser operations for the API layer.
type Service struct {
	store        *watchlist.Store
	scanner      *scanner.Scanner
	resolver     SymbolResolver
	pages        PageLister
	scanLog      *storage.ScanLog
	broker       *events.Broker
	chartBaseURL string
	screens      *config.ScreensConfig
	ntfyEndpoint string

	scan scanState
}

func NewService(store *watchlist.Store, sc *scanner.Scanner, resolver SymbolResolver, pages PageLister, scanLog *storage.ScanLog, broker *events.Broker, chartBaseURL string) *Service {
	return &Service{
		store:        store,
		scanner:      sc,
		resolver:     resolver,
		pages:        pages,
		scanLog:      scanLog,
		broker:       broker,
		chartBaseURL: strings.TrimRight(chartBaseURL, "/"),
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

// GetState returns the full persisted document.
func (s *Service) GetState(ctx context.Context) (watchlist.State, error) {
	return s.store.Snapshot(), nil
}

func (s *Service) ListWatchlists(ctx context.Context) ([]watchlist.Watchlist, error) {
	return s.store.Snapshot().Watchlists, nil
}

func (s *Service) GetActiveWatchlist(ctx context.Context) (watchlist.Watchlist, error) {
	return s.store.ActiveWatchlist(), nil
}

func (s *Service) CreateWatchlist(ctx context.Context, name string) (watchlist.Watchlist, error) {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return watchlist.Watchlist{}, err
	}
	return s.store.CreateWatchlist(ctx, strings.TrimSpace(name)), nil
}

func (s *Service) RenameWatchlist(ctx context.Context, id, name string) error {
	if err := s.requireNonEmpty(id, "watchlist_id"); err != nil {
		return err
	}
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return err
	}
	return s.store.RenameWatchlist(ctx, strings.TrimSpace(id), strings.TrimSpace(name))
}

func (s *Service) DeleteWatchlist(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "watchlist_id"); err != nil {
		return err
	}
	return s.store.DeleteWatchlist(ctx, strings.TrimSpace(id))
}

func (s *Service) SetActiveWatchlist(ctx context.Context, id string) (watchlist.Watchlist, error) {
	if err := s.requireNonEmpty(id, "watchlist_id"); err != nil {
		return watchlist.Watchlist{}, err
	}
	if err := s.store.SetActiveWatchlist(ctx, strings.TrimSpace(id)); err != nil {
		return watchlist.Watchlist{}, err
	}
	return s.store.ActiveWatchlist(), nil
}

// AddSymbol adds one ticker to the active watchlist. An empty exchange is
// inferred from the ticker shape (numeric BSE scrip codes, NSE otherwise).
// Returns false without error when the pair is already present.
func (s *Service) AddSymbol(ctx context.Context, ticker, exchange string) (bool, error) {
	if err := s.requireNonEmpty(ticker, "ticker"); err != nil {
		return false, err
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	ex := watchlist.ExchangeForTicker(ticker)
	if strings.TrimSpace(exchange) != "" {
		parsed, ok := watchlist.ParseExchange(exchange)
		if !ok {
			return false, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "unknown exchange: " + exchange}
		}
		ex = parsed
	}

	added := s.store.AddSymbol(ctx, ticker, ex)
	if added {
		s.broker.Publish(events.JSONEvent(events.TypeSymbolAdded, map[string]string{"ticker": ticker}))
	}
	return added, nil
}

// RemoveSymbol drops matching records from the active watchlist. An empty
// exchange matches the ticker on any exchange.
func (s *Service) RemoveSymbol(ctx context.Context, ticker, exchange string) error {
	if err := s.requireNonEmpty(ticker, "ticker"); err != nil {
		return err
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	var ex watchlist.Exchange
	if strings.TrimSpace(exchange) != "" {
		parsed, ok := watchlist.ParseExchange(exchange)
		if !ok {
			return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "unknown exchange: " + exchange}
		}
		ex = parsed
	}

	s.store.RemoveSymbol(ctx, ticker, ex)
	s.broker.Publish(events.JSONEvent(events.TypeSymbolRemoved, map[string]string{"ticker": ticker}))
	return nil
}

// CycleColor advances the symbol's color tag one step.
func (s *Service) CycleColor(ctx context.Context, ticker string) error {
	if err := s.requireNonEmpty(ticker, "ticker"); err != nil {
		return err
	}
	s.store.CycleColor(ctx, strings.ToUpper(strings.TrimSpace(ticker)))
	return nil
}

// OpenChart resolves the ticker to an exchange-qualified symbol, opens a
// chart tab in the attached browser, and marks the ticker visited.
func (s *Service) OpenChart(ctx context.Context, ticker string) (resolve.Symbol, string, error) {
	if err := s.requireNonEmpty(ticker, "ticker"); err != nil {
		return resolve.Symbol{}, "", err
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	sym := s.resolver.Resolve(ctx, ticker)
	chartURL := s.chartBaseURL + "/?symbol=" + url.QueryEscape(string(sym.Exchange)+":"+sym.Ticker)
	if err := s.pages.OpenTab(ctx, chartURL); err != nil {
		return resolve.Symbol{}, "", err
	}
	s.store.MarkVisited(ctx, ticker)
	s.broker.Publish(events.JSONEvent(events.TypeChartOpened, map[string]string{
		"ticker":   ticker,
		"symbol":   sym.Ticker,
		"exchange": string(sym.Exchange),
	}))
	return sym, chartURL, nil
}

// ImportText parses pasted symbol text and adds the entries to the active
// watchlist, returning the count actually added.
func (s *Service) ImportText(ctx context.Context, text string) (int, error) {
	if err := s.requireNonEmpty(text, "text"); err != nil {
		return 0, err
	}
	added := s.store.Import(ctx, text)
	if added > 0 {
		s.broker.Publish(events.JSONEvent(events.TypeSymbolAdded, map[string]int{"added": added}))
	}
	return added, nil
}

// ExportText serializes every watchlist as CSV text.
func (s *Service) ExportText(ctx context.Context) (string, error) {
	return watchlist.ExportText(s.store.Snapshot().Watchlists), nil
}

func (s *Service) GetSettings(ctx context.Context) (watchlist.Settings, error) {
	return s.store.Settings(), nil
}

func (s *Service) UpdateSettings(ctx context.Context, patch watchlist.SettingsPatch) (watchlist.Settings, error) {
	settings := s.store.UpdateSettings(ctx, patch)
	s.broker.Publish(events.JSONEvent(events.TypeSettings, settings))
	return settings, nil
}

// ToggleSidebar flips the persisted sidebar flag and announces the change.
func (s *Service) ToggleSidebar(ctx context.Context) (bool, error) {
	open := s.store.ToggleSidebar(ctx)
	s.broker.Publish(events.JSONEvent(events.TypeSidebar, map[string]bool{"isOpen": open}))
	return open, nil
}

func (s *Service) SetSidebarWidth(ctx context.Context, width int) error {
	if width <= 0 {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "width must be positive"}
	}
	s.store.SetWidth(ctx, width)
	return nil
}

// ListPages reports the screener tabs currently open in the browser.
func (s *Service) ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error) {
	return s.pages.ListPages(ctx)
}
