// Package resolve maps BSE scrip codes to tradable ticker symbols so chart
// links can be built for companies that only list on the BSE. NSE tickers
// pass through untouched.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

var (
	bseSharePriceRe = regexp.MustCompile(`stock-share-price/[^/]+/([^/]+)/`)
	consolidatedRe  = regexp.MustCompile(`company/([A-Z0-9]+)/consolidated`)
	companySlugRe   = regexp.MustCompile(`company/([A-Z0-9]+)/`)
	numericRe       = regexp.MustCompile(`^[0-9]+$`)
)

// Symbol is a resolved (ticker, exchange) pair ready for chart URLs.
type Symbol struct {
	Ticker   string
	Exchange watchlist.Exchange
}

// Resolver resolves scrip codes against the screener site. Results are
// cached for the lifetime of the process; codes do not change mid-session.
type Resolver struct {
	client  *resty.Client
	baseURL string

	mu    sync.Mutex
	cache map[string]Symbol
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBaseURL points the resolver at a different site root, mainly for tests.
func WithBaseURL(u string) Option {
	return func(r *Resolver) { r.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient substitutes the resty client.
func WithHTTPClient(c *resty.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// New creates a Resolver against the live site.
func New(opts ...Option) *Resolver {
	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	r := &Resolver{
		client:  client,
		baseURL: "https://www.screener.in",
		cache:   make(map[string]Symbol),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns a raw ticker into a chartable symbol. Non-numeric tickers
// are already NSE symbols and return immediately. Numeric scrip codes are
// looked up on the company page; when every strategy fails the raw code is
// returned as a BSE symbol so the caller can still build a URL.
func (r *Resolver) Resolve(ctx context.Context, raw string) Symbol {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if !numericRe.MatchString(ticker) {
		return Symbol{Ticker: ticker, Exchange: watchlist.ExchangeNSE}
	}

	r.mu.Lock()
	if sym, ok := r.cache[ticker]; ok {
		r.mu.Unlock()
		return sym
	}
	r.mu.Unlock()

	sym, err := r.lookup(ctx, ticker)
	if err != nil {
		slog.Warn("scrip code resolution failed, charting raw code",
			"code", ticker, "error", err)
		return Symbol{Ticker: ticker, Exchange: watchlist.ExchangeBSE}
	}

	r.mu.Lock()
	r.cache[ticker] = sym
	r.mu.Unlock()
	return sym
}

func (r *Resolver) lookup(ctx context.Context, code string) (Symbol, error) {
	pageURL := fmt.Sprintf("%s/company/%s/", r.baseURL, code)
	resp, err := r.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return Symbol{}, fmt.Errorf("fetch company page: %w", err)
	}
	if resp.StatusCode() != 200 {
		return Symbol{}, fmt.Errorf("company page status %d", resp.StatusCode())
	}
	body := resp.String()

	// A BSE India share-price link names the company's BSE symbol directly.
	if m := bseSharePriceRe.FindStringSubmatch(body); m != nil {
		return Symbol{Ticker: strings.ToUpper(m[1]), Exchange: watchlist.ExchangeBSE}, nil
	}

	// The site redirects scrip codes to the canonical ticker slug.
	if final := resp.RawResponse.Request.URL; final != nil {
		if m := companySlugRe.FindStringSubmatch(final.Path); m != nil {
			slug := strings.ToUpper(m[1])
			if slug != code && !numericRe.MatchString(slug) {
				return Symbol{Ticker: slug, Exchange: watchlist.ExchangeBSE}, nil
			}
		}
	}

	// Last resort: mine the body for a non-numeric company slug.
	for _, re := range []*regexp.Regexp{consolidatedRe, companySlugRe} {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			slug := strings.ToUpper(m[1])
			if slug != code && !numericRe.MatchString(slug) {
				return Symbol{Ticker: slug, Exchange: watchlist.ExchangeBSE}, nil
			}
		}
	}
	return Symbol{}, fmt.Errorf("no symbol found for scrip code %s", code)
}
