package inject

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/screener_agent/internal/events"
	"github.com/dgnsrekt/screener_agent/internal/resolve"
	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

type memPersister struct{}

func (memPersister) Load(context.Context) ([]byte, error) { return nil, nil }
func (memPersister) Save(context.Context, []byte) error   { return nil }

// fakePages simulates a single screener tab whose marker state tracks the
// ops applied to it.
type fakePages struct {
	mu         sync.Mutex
	page       cdpcontrol.PageInfo
	tables     []TableState
	scanCalls  int
	applyCalls int
	openedURLs chan string
}

func newFakePages(tables []TableState) *fakePages {
	return &fakePages{
		page: cdpcontrol.PageInfo{
			PageID:   "aaaaaaaa",
			TargetID: "aaaaaaaa1111",
			URL:      "https://www.screener.in/screens/1/demo/",
		},
		tables:     tables,
		openedURLs: make(chan string, 4),
	}
}

func (f *fakePages) ListPages(context.Context) ([]cdpcontrol.PageInfo, error) {
	return []cdpcontrol.PageInfo{f.page}, nil
}

func (f *fakePages) RegisterBinding(string, cdpcontrol.BindingHandler) {}

func (f *fakePages) OpenTab(_ context.Context, url string) error {
	f.openedURLs <- url
	return nil
}

func (f *fakePages) EvalOnPage(_ context.Context, pageID, js string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.Contains(js, "headerWatchlist:"):
		f.scanCalls++
		data, _ := json.Marshal(map[string]any{"tables": f.tables})
		return json.Unmarshal(data, out)
	case strings.Contains(js, "var ops ="):
		f.applyCalls++
		f.applyOps(js)
		data, _ := json.Marshal(map[string]int{"applied": 1})
		return json.Unmarshal(data, out)
	case strings.Contains(js, "__swlObserver"):
		data, _ := json.Marshal(map[string]bool{"installed": true})
		return json.Unmarshal(data, out)
	}
	return nil
}

// applyOps mutates the fake marker state the way the page script would.
func (f *fakePages) applyOps(js string) {
	start := strings.Index(js, "var ops = ")
	if start < 0 {
		return
	}
	rest := js[start+len("var ops = "):]
	end := strings.Index(rest, ";\n")
	if end < 0 {
		return
	}
	var ops []Op
	if json.Unmarshal([]byte(rest[:end]), &ops) != nil {
		return
	}
	for _, op := range ops {
		if op.Table >= len(f.tables) {
			continue
		}
		tbl := &f.tables[op.Table]
		present := op.Kind == OpInsert
		if op.Row == HeaderRow {
			if op.Column == ColumnWatchlist {
				tbl.HeaderWl = present
			} else {
				tbl.HeaderChart = present
			}
			continue
		}
		if op.Row >= len(tbl.Rows) {
			continue
		}
		if op.Column == ColumnWatchlist {
			tbl.Rows[op.Row].HasWatchlist = present
		} else {
			tbl.Rows[op.Row].HasChart = present
		}
	}
}

type fakeResolver struct {
	sym resolve.Symbol
}

func (f fakeResolver) Resolve(context.Context, string) resolve.Symbol { return f.sym }

func newTestInjector(t *testing.T, tables []TableState) (*Injector, *fakePages, *watchlist.Store, *events.Broker) {
	t.Helper()
	store := watchlist.NewStore(memPersister{})
	store.Load(context.Background())
	pages := newFakePages(tables)
	broker := events.NewBroker()
	inj := New(pages, store, fakeResolver{sym: resolve.Symbol{Ticker: "TCS", Exchange: watchlist.ExchangeNSE}},
		broker, "https://www.tradingview.com/chart")
	return inj, pages, store, broker
}

func bareTable() []TableState {
	return []TableState{{
		Index: 0,
		Rows:  []RowState{{Ticker: "TCS"}, {Ticker: "500325"}},
	}}
}

func TestAnnotateConvergesAndStaysIdle(t *testing.T) {
	inj, pages, _, _ := newTestInjector(t, bareTable())
	ctx := context.Background()

	if err := inj.Annotate(ctx, "aaaaaaaa"); err != nil {
		t.Fatalf("Annotate() = %v", err)
	}
	if pages.applyCalls != 1 {
		t.Fatalf("apply calls = %d; want 1", pages.applyCalls)
	}

	// The fake state now matches the settings; a second pass must not
	// touch the page again.
	if err := inj.Annotate(ctx, "aaaaaaaa"); err != nil {
		t.Fatalf("Annotate() second pass = %v", err)
	}
	if pages.applyCalls != 1 {
		t.Fatalf("apply calls after second pass = %d; want still 1", pages.applyCalls)
	}
}

func TestAnnotateRemovesColumnWhenSettingOff(t *testing.T) {
	inj, pages, store, _ := newTestInjector(t, bareTable())
	ctx := context.Background()

	if err := inj.Annotate(ctx, "aaaaaaaa"); err != nil {
		t.Fatalf("Annotate() = %v", err)
	}

	off := false
	store.UpdateSettings(ctx, watchlist.SettingsPatch{ShowColChart: &off})
	if err := inj.Annotate(ctx, "aaaaaaaa"); err != nil {
		t.Fatalf("Annotate() after toggle = %v", err)
	}

	pages.mu.Lock()
	defer pages.mu.Unlock()
	if pages.tables[0].HeaderChart {
		t.Fatal("chart header still present after disabling the column")
	}
	if pages.tables[0].Rows[0].HasChart {
		t.Fatal("chart cell still present after disabling the column")
	}
	if !pages.tables[0].Rows[0].HasWatchlist {
		t.Fatal("watchlist cell removed although its toggle stayed on")
	}
}

func TestOnAddClickedAddsSymbolAndOpensSidebar(t *testing.T) {
	inj, _, store, broker := newTestInjector(t, bareTable())
	_, ch := broker.Subscribe()

	inj.onAddClicked(cdpcontrol.PageInfo{PageID: "aaaaaaaa"}, `{"ticker":"tcs"}`)

	syms := store.ActiveWatchlist().Symbols
	if len(syms) != 1 || syms[0].Ticker != "TCS" || syms[0].Exchange != watchlist.ExchangeNSE {
		t.Fatalf("symbols = %v; want [TCS NSE]", syms)
	}
	if !store.Snapshot().IsOpen {
		t.Fatal("sidebar not opened after first add")
	}

	evt := <-ch
	if evt.Type != events.TypeSymbolAdded {
		t.Fatalf("event type = %q; want %q", evt.Type, events.TypeSymbolAdded)
	}
}

func TestOnAddClickedDuplicateStaysSilent(t *testing.T) {
	inj, _, store, broker := newTestInjector(t, bareTable())
	inj.onAddClicked(cdpcontrol.PageInfo{PageID: "aaaaaaaa"}, `{"ticker":"TCS"}`)

	_, ch := broker.Subscribe()
	inj.onAddClicked(cdpcontrol.PageInfo{PageID: "aaaaaaaa"}, `{"ticker":"TCS"}`)

	if n := len(store.ActiveWatchlist().Symbols); n != 1 {
		t.Fatalf("symbols = %d; want 1", n)
	}
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %q on duplicate add", evt.Type)
	default:
	}
}

func TestOnAddClickedNumericTickerIsBSE(t *testing.T) {
	inj, _, store, _ := newTestInjector(t, bareTable())
	inj.onAddClicked(cdpcontrol.PageInfo{PageID: "aaaaaaaa"}, `{"ticker":"500325"}`)

	syms := store.ActiveWatchlist().Symbols
	if len(syms) != 1 || syms[0].Exchange != watchlist.ExchangeBSE {
		t.Fatalf("symbols = %v; want BSE classification for numeric ticker", syms)
	}
}

func TestOnChartClickedMarksVisitedAndOpensChartTab(t *testing.T) {
	inj, pages, store, _ := newTestInjector(t, bareTable())

	inj.onChartClicked(cdpcontrol.PageInfo{PageID: "aaaaaaaa"}, `{"ticker":"TCS"}`)

	if !store.IsVisited("TCS") {
		t.Fatal("ticker not marked visited")
	}
	select {
	case url := <-pages.openedURLs:
		want := "https://www.tradingview.com/chart/?symbol=NSE%3ATCS"
		if url != want {
			t.Fatalf("opened %q; want %q", url, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chart tab never opened")
	}
}

func TestSyncAllSkipsNonResultsPages(t *testing.T) {
	inj, pages, _, _ := newTestInjector(t, bareTable())
	pages.page.URL = "https://www.screener.in/company/TCS/"

	inj.SyncAll(context.Background())
	if pages.scanCalls != 0 {
		t.Fatalf("scan calls = %d; company pages must not be annotated", pages.scanCalls)
	}
}

func TestBadPayloadIsIgnored(t *testing.T) {
	inj, _, store, _ := newTestInjector(t, bareTable())
	inj.onAddClicked(cdpcontrol.PageInfo{PageID: "aaaaaaaa"}, `not json`)
	inj.onAddClicked(cdpcontrol.PageInfo{PageID: "aaaaaaaa"}, `{"ticker":"  "}`)
	if n := len(store.ActiveWatchlist().Symbols); n != 0 {
		t.Fatalf("symbols = %d; want 0", n)
	}
}
