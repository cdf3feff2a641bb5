package scanner

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

var companyHrefRe = regexp.MustCompile(`/company/([^/]+)/`)

// ExtractSymbols pulls (ticker, exchange) pairs out of a screener results
// page, preserving row order. Symbols come from company links inside the
// results table; a purely numeric slug is a BSE scrip code, anything else
// an NSE ticker.
func ExtractSymbols(doc *html.Node) []watchlist.Entry {
	var entries []watchlist.Entry
	table := findNode(doc, func(n *html.Node) bool {
		return n.Data == "table" && hasClass(n, "data-table")
	})
	if table == nil {
		return entries
	}
	walk(table, func(n *html.Node) {
		if n.Data != "a" {
			return
		}
		href := attr(n, "href")
		m := companyHrefRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		ticker := strings.ToUpper(m[1])
		ex := watchlist.ExchangeNSE
		if isNumeric(ticker) {
			ex = watchlist.ExchangeBSE
		}
		entries = append(entries, watchlist.Entry{Ticker: ticker, Exchange: ex})
	})
	return entries
}

// NextPageURL finds the pagination link to the next results page, resolved
// against base. Returns "" when the current page is the last one.
func NextPageURL(doc *html.Node, base *url.URL) string {
	pagination := findNode(doc, func(n *html.Node) bool {
		return hasClass(n, "pagination")
	})
	if pagination == nil {
		return ""
	}

	var next string
	walk(pagination, func(n *html.Node) {
		if next != "" || n.Data != "a" {
			return
		}
		if attr(n, "rel") == "next" || strings.EqualFold(strings.TrimSpace(nodeText(n)), "next") {
			next = attr(n, "href")
		}
	})
	if next == "" {
		return ""
	}
	ref, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) {
		if found == nil && match(c) {
			found = c
		}
	})
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			collect(gc)
		}
	}
	collect(n)
	return b.String()
}
