package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

const (
	// DefaultMaxPages bounds a scan so a broken pagination loop cannot
	// run forever.
	DefaultMaxPages = 50

	// DefaultPageDelay spaces page fetches to stay polite to the site.
	DefaultPageDelay = 500 * time.Millisecond
)

// Result is the outcome of a scan. Symbols are in page-then-row order and
// may be partial when Err is set.
type Result struct {
	Symbols []watchlist.Entry
	Pages   int
	Err     error
}

// Scanner walks a screener's paginated result tables and collects every
// company symbol it finds.
type Scanner struct {
	client    *resty.Client
	maxPages  int
	pageDelay time.Duration
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithMaxPages overrides the page cap.
func WithMaxPages(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithPageDelay overrides the pacing between page fetches.
func WithPageDelay(d time.Duration) Option {
	return func(s *Scanner) {
		if d >= 0 {
			s.pageDelay = d
		}
	}
}

// WithHTTPClient substitutes the resty client, mainly for tests.
func WithHTTPClient(c *resty.Client) Option {
	return func(s *Scanner) { s.client = c }
}

// New creates a Scanner with polite defaults.
func New(opts ...Option) *Scanner {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	s := &Scanner{
		client:    client,
		maxPages:  DefaultMaxPages,
		pageDelay: DefaultPageDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Progress receives a human-readable status line before each page fetch.
type Progress func(msg string)

// Scan fetches startURL and follows pagination until the last page, the
// page cap, a fetch error, or ctx cancellation. Symbols collected before a
// failure are returned alongside the error.
func (s *Scanner) Scan(ctx context.Context, startURL string, progress Progress) Result {
	if progress == nil {
		progress = func(string) {}
	}

	var res Result
	pageURL := strings.TrimSpace(startURL)
	for page := 1; page <= s.maxPages; page++ {
		if pageURL == "" {
			return res
		}
		if page > 1 {
			select {
			case <-time.After(s.pageDelay):
			case <-ctx.Done():
				res.Err = ctx.Err()
				return res
			}
		}

		progress(fmt.Sprintf("Scanning page %d...", page))
		doc, base, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			res.Err = err
			return res
		}
		res.Pages = page

		found := ExtractSymbols(doc)
		res.Symbols = append(res.Symbols, found...)
		slog.Debug("scanned page", "page", page, "url", pageURL, "symbols", len(found))

		pageURL = NextPageURL(doc, base)
	}
	return res
}

func (s *Scanner) fetchPage(ctx context.Context, pageURL string) (*html.Node, *url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bad page url %q: %w", pageURL, err)
	}

	resp, err := s.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if resp.StatusCode() != 200 {
		return nil, nil, fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode())
	}

	doc, err := html.Parse(strings.NewReader(resp.String()))
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, base, nil
}
