package watchlist

import (
	"context"
	"strings"
)

// ExportHeader is the fixed first line of exported text.
const ExportHeader = "Ticker,Exchange,Color,Watchlist"

// ParseImportText tokenizes free-form pasted text into (ticker, exchange)
// entries. Tokens are separated by commas or newlines; a colon inside a
// token separates a two-part pair. Whichever part of a pair matches a known
// exchange is taken as the exchange and the other as the ticker; when
// neither matches, the exchange defaults to NSE and the first part is the
// ticker. Lone tokens are tickers with default exchange NSE.
//
// Lines produced by ExportText are recognized and consumed as
// ticker+exchange rows (color and watchlist grouping are dropped), so
// re-importing an export reproduces the same (ticker, exchange) set.
func ParseImportText(text string) []Entry {
	var entries []Entry
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		fields := strings.Split(line, ",")
		if isExportHeader(fields) {
			continue
		}
		if e, ok := exportRow(fields); ok {
			entries = append(entries, e)
			continue
		}
		for _, token := range fields {
			if e, ok := parseToken(token); ok {
				entries = append(entries, e)
			}
		}
	}
	return entries
}

// parseToken handles one free-form token, e.g. "TCS", "NSE:TCS" or "500325:BSE".
func parseToken(token string) (Entry, bool) {
	parts := strings.SplitN(strings.TrimSpace(token), ":", 3)
	p1 := strings.ToUpper(strings.TrimSpace(parts[0]))
	p2 := ""
	if len(parts) > 1 {
		p2 = strings.ToUpper(strings.TrimSpace(parts[1]))
	}

	if p1 != "" && p2 != "" {
		ex := ExchangeNSE
		if parsed, ok := ParseExchange(p1); ok {
			ex = parsed
		} else if parsed, ok := ParseExchange(p2); ok {
			ex = parsed
		}
		ticker := p2
		if p1 != string(ex) {
			ticker = p1
		}
		return Entry{Ticker: ticker, Exchange: ex}, true
	}
	if p1 != "" {
		return Entry{Ticker: p1, Exchange: ExchangeNSE}, true
	}
	return Entry{}, false
}

// exportRow recognizes a line written by ExportText: at least three comma
// fields with a known exchange in the second position. Anything else falls
// back to free-form token parsing.
func exportRow(fields []string) (Entry, bool) {
	if len(fields) < 3 {
		return Entry{}, false
	}
	ex, ok := ParseExchange(fields[1])
	if !ok {
		return Entry{}, false
	}
	ticker := strings.ToUpper(strings.TrimSpace(fields[0]))
	if ticker == "" || strings.Contains(ticker, ":") {
		return Entry{}, false
	}
	return Entry{Ticker: ticker, Exchange: ex}, true
}

func isExportHeader(fields []string) bool {
	return len(fields) >= 2 &&
		strings.EqualFold(strings.TrimSpace(fields[0]), "Ticker") &&
		strings.EqualFold(strings.TrimSpace(fields[1]), "Exchange")
}

// ExportText serializes every watchlist's every symbol as one CSV line of
// ticker, exchange, color and owning watchlist name, under a fixed header.
func ExportText(lists []Watchlist) string {
	var b strings.Builder
	b.WriteString(ExportHeader)
	b.WriteByte('\n')
	for _, wl := range lists {
		for _, sym := range wl.Symbols {
			b.WriteString(sym.Ticker)
			b.WriteByte(',')
			b.WriteString(string(sym.Exchange))
			b.WriteByte(',')
			b.WriteString(string(sym.Color))
			b.WriteByte(',')
			b.WriteString(wl.Name)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Import parses text and adds each entry to the active watchlist one by
// one, returning the count actually added. Duplicates are silently skipped.
func (s *Store) Import(ctx context.Context, text string) int {
	count := 0
	for _, e := range ParseImportText(text) {
		if s.AddSymbol(ctx, e.Ticker, e.Exchange) {
			count++
		}
	}
	return count
}
