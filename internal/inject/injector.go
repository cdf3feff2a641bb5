package inject

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/screener_agent/internal/events"
	"github.com/dgnsrekt/screener_agent/internal/resolve"
	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

// PageClient is the CDP surface the injector needs.
type PageClient interface {
	ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error)
	EvalOnPage(ctx context.Context, pageID, js string, out any) error
	RegisterBinding(name string, fn cdpcontrol.BindingHandler)
	OpenTab(ctx context.Context, url string) error
}

// SymbolResolver resolves raw tickers to chartable symbols.
type SymbolResolver interface {
	Resolve(ctx context.Context, raw string) resolve.Symbol
}

// Injector keeps every open screener results tab annotated and handles the
// in-page click bindings.
type Injector struct {
	pages    PageClient
	store    *watchlist.Store
	resolver SymbolResolver
	broker   *events.Broker

	chartBaseURL string
	resync       time.Duration
	debounceMs   int
}

// Option configures an Injector.
type Option func(*Injector)

// WithResyncInterval overrides how often the tab list is re-swept. The
// sweep is a fallback for tabs opened between mutation callbacks.
func WithResyncInterval(d time.Duration) Option {
	return func(i *Injector) {
		if d > 0 {
			i.resync = d
		}
	}
}

// WithDebounce overrides the in-page mutation debounce.
func WithDebounce(ms int) Option {
	return func(i *Injector) {
		if ms > 0 {
			i.debounceMs = ms
		}
	}
}

// New creates an Injector and registers its page bindings on the client.
func New(pages PageClient, store *watchlist.Store, resolver SymbolResolver, broker *events.Broker, chartBaseURL string, opts ...Option) *Injector {
	i := &Injector{
		pages:        pages,
		store:        store,
		resolver:     resolver,
		broker:       broker,
		chartBaseURL: strings.TrimRight(chartBaseURL, "/"),
		resync:       15 * time.Second,
		debounceMs:   250,
	}
	for _, opt := range opts {
		opt(i)
	}

	pages.RegisterBinding(BindingAdd, i.onAddClicked)
	pages.RegisterBinding(BindingChart, i.onChartClicked)
	pages.RegisterBinding(BindingMutated, i.onPageMutated)
	return i
}

// Run sweeps all screener tabs immediately and then on every resync tick
// until ctx is cancelled. Mutation callbacks re-annotate single pages in
// between sweeps.
func (i *Injector) Run(ctx context.Context) {
	i.SyncAll(ctx)
	ticker := time.NewTicker(i.resync)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.SyncAll(ctx)
		}
	}
}

// SyncAll annotates every open screener results tab.
func (i *Injector) SyncAll(ctx context.Context) {
	pages, err := i.pages.ListPages(ctx)
	if err != nil {
		slog.Warn("inject sweep: list pages failed", "error", err)
		return
	}
	for _, page := range pages {
		if !isResultsPage(page.URL) {
			continue
		}
		if err := i.Annotate(ctx, page.PageID); err != nil {
			slog.Warn("inject sweep: annotate failed", "page_id", page.PageID, "error", err)
		}
	}
}

// Annotate reconciles one page: read marker state, diff against settings,
// apply the minimal operations, and make sure the mutation observer is in
// place. Safe to call repeatedly; a correct page yields no DOM changes.
func (i *Injector) Annotate(ctx context.Context, pageID string) error {
	var scanned struct {
		Tables []TableState `json:"tables"`
	}
	if err := i.pages.EvalOnPage(ctx, pageID, jsScanTables(), &scanned); err != nil {
		return err
	}

	settings := i.store.Settings()
	want := ColumnSettings{Watchlist: settings.ShowColWatchlist, Chart: settings.ShowColChart}
	ops := Reconcile(want, scanned.Tables)
	if len(ops) > 0 {
		var applied struct {
			Applied int `json:"applied"`
		}
		if err := i.pages.EvalOnPage(ctx, pageID, jsApplyOps(ops, i.visitedTickers(ops)), &applied); err != nil {
			return err
		}
		slog.Debug("inject annotate", "page_id", pageID, "ops", len(ops), "applied", applied.Applied)
	}

	var installed struct {
		Installed bool `json:"installed"`
	}
	if err := i.pages.EvalOnPage(ctx, pageID, jsInstallObserver(i.debounceMs), &installed); err != nil {
		return err
	}
	if installed.Installed {
		slog.Debug("inject observer installed", "page_id", pageID)
	}
	return nil
}

// visitedTickers collects the visited subset of the tickers an op batch
// touches, for chart-cell styling.
func (i *Injector) visitedTickers(ops []Op) []string {
	visited := make([]string, 0, len(ops))
	seen := make(map[string]bool)
	for _, op := range ops {
		if op.Ticker == "" || seen[op.Ticker] {
			continue
		}
		seen[op.Ticker] = true
		if i.store.IsVisited(op.Ticker) {
			visited = append(visited, op.Ticker)
		}
	}
	return visited
}

func (i *Injector) onPageMutated(page cdpcontrol.PageInfo, _ string) {
	if !isResultsPage(page.URL) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := i.Annotate(ctx, page.PageID); err != nil {
			slog.Warn("inject mutation reconcile failed", "page_id", page.PageID, "error", err)
		}
	}()
}

func (i *Injector) onAddClicked(page cdpcontrol.PageInfo, payload string) {
	ticker, ok := tickerFromPayload(payload)
	if !ok {
		slog.Warn("inject add: bad payload", "page_id", page.PageID, "payload", payload)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	added := i.store.AddSymbol(ctx, ticker, watchlist.ExchangeForTicker(ticker))
	slog.Info("inject add clicked", "ticker", ticker, "added", added)
	if !added {
		return
	}
	i.broker.Publish(events.JSONEvent(events.TypeSymbolAdded, map[string]string{
		"ticker": ticker,
	}))
	if !i.store.Snapshot().IsOpen {
		i.store.SetSidebar(ctx, true)
		i.broker.Publish(events.JSONEvent(events.TypeSidebar, map[string]bool{"isOpen": true}))
	}
}

func (i *Injector) onChartClicked(page cdpcontrol.PageInfo, payload string) {
	ticker, ok := tickerFromPayload(payload)
	if !ok {
		slog.Warn("inject chart: bad payload", "page_id", page.PageID, "payload", payload)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	i.store.MarkVisited(ctx, ticker)
	cancel()

	// Resolution and tab creation happen off the event path so a slow
	// lookup never delays further binding callbacks.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sym := i.resolver.Resolve(ctx, ticker)
		chartURL := i.chartURL(sym)
		if err := i.pages.OpenTab(ctx, chartURL); err != nil {
			slog.Warn("inject chart: open tab failed", "ticker", ticker, "error", err)
			return
		}
		slog.Info("inject chart opened", "ticker", ticker, "symbol", sym.Ticker, "exchange", sym.Exchange)
		i.broker.Publish(events.JSONEvent(events.TypeChartOpened, map[string]string{
			"ticker":   ticker,
			"symbol":   sym.Ticker,
			"exchange": string(sym.Exchange),
		}))
	}()
}

func (i *Injector) chartURL(sym resolve.Symbol) string {
	return i.chartBaseURL + "/?symbol=" + url.QueryEscape(string(sym.Exchange)+":"+sym.Ticker)
}

func tickerFromPayload(payload string) (string, bool) {
	var msg struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return "", false
	}
	ticker := strings.ToUpper(strings.TrimSpace(msg.Ticker))
	if ticker == "" {
		return "", false
	}
	return ticker, true
}

func isResultsPage(pageURL string) bool {
	return strings.Contains(pageURL, "/screens/") || strings.Contains(pageURL, "/screen/")
}
