package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

func TestResolveNonNumericPassesThrough(t *testing.T) {
	r := New(WithBaseURL("http://127.0.0.1:1")) // must never be contacted
	got := r.Resolve(context.Background(), " tcs ")
	want := Symbol{Ticker: "TCS", Exchange: watchlist.ExchangeNSE}
	if got != want {
		t.Fatalf("Resolve() = %v; want %v", got, want)
	}
}

func TestResolveViaBSESharePriceLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="https://www.bseindia.com/stock-share-price/reliance-industries-ltd/RELIANCE/500325/">BSE</a>
</body></html>`)
	}))
	defer srv.Close()

	r := New(WithBaseURL(srv.URL))
	got := r.Resolve(context.Background(), "500325")
	want := Symbol{Ticker: "RELIANCE", Exchange: watchlist.ExchangeBSE}
	if got != want {
		t.Fatalf("Resolve() = %v; want %v", got, want)
	}
}

func TestResolveViaRedirectSlug(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/company/500180/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/company/HDFCBANK/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/company/HDFCBANK/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>no bse link here</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := New(WithBaseURL(srv.URL))
	got := r.Resolve(context.Background(), "500180")
	want := Symbol{Ticker: "HDFCBANK", Exchange: watchlist.ExchangeBSE}
	if got != want {
		t.Fatalf("Resolve() = %v; want %v", got, want)
	}
}

func TestResolveViaBodySlugFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/company/532540/">self</a>
<a href="/company/TCS/consolidated/">Consolidated</a>
</body></html>`)
	}))
	defer srv.Close()

	r := New(WithBaseURL(srv.URL))
	got := r.Resolve(context.Background(), "532540")
	want := Symbol{Ticker: "TCS", Exchange: watchlist.ExchangeBSE}
	if got != want {
		t.Fatalf("Resolve() = %v; want %v", got, want)
	}
}

func TestResolveAllStrategiesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>nothing useful</body></html>`)
	}))
	defer srv.Close()

	r := New(WithBaseURL(srv.URL))
	got := r.Resolve(context.Background(), "590001")
	want := Symbol{Ticker: "590001", Exchange: watchlist.ExchangeBSE}
	if got != want {
		t.Fatalf("Resolve() = %v; want raw code as BSE fallback %v", want, got)
	}
}

func TestResolveCachesSuccessfulLookups(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<a href="https://www.bseindia.com/stock-share-price/x/RELIANCE/500325/">b</a>`)
	}))
	defer srv.Close()

	r := New(WithBaseURL(srv.URL))
	ctx := context.Background()
	first := r.Resolve(ctx, "500325")
	second := r.Resolve(ctx, "500325")
	if first != second {
		t.Fatalf("cached result %v != first result %v", second, first)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("lookups = %d; want 1 (second resolve must hit the cache)", got)
	}
}

func TestResolveFailureIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<a href="https://www.bseindia.com/stock-share-price/x/RELIANCE/500325/">b</a>`)
	}))
	defer srv.Close()

	r := New(WithBaseURL(srv.URL))
	ctx := context.Background()
	if got := r.Resolve(ctx, "500325"); got.Ticker != "500325" {
		t.Fatalf("Resolve() during outage = %v; want raw code fallback", got)
	}

	fail.Store(false)
	got := r.Resolve(ctx, "500325")
	want := Symbol{Ticker: "RELIANCE", Exchange: watchlist.ExchangeBSE}
	if got != want {
		t.Fatalf("Resolve() after recovery = %v; want %v", got, want)
	}
}
