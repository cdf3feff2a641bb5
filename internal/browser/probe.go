package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// ProbeResult summarizes what a CDP endpoint probe found.
type ProbeResult struct {
	PageCount    int
	MatchedCount int
	MatchedURLs  []string
}

// Probe connects to the CDP endpoint with a throwaway chromedp session,
// enumerates the open targets, and reports how many page tabs match the
// URL filter. Used at startup so a missing browser or a browser without
// any screener tab produces a clear message instead of a silent idle agent.
func Probe(ctx context.Context, cdpURL, urlFilter string) (ProbeResult, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cdpURL)
	defer allocCancel()

	probeCtx, probeCancel := chromedp.NewContext(allocCtx)
	defer probeCancel()

	if err := chromedp.Run(probeCtx); err != nil {
		return ProbeResult{}, fmt.Errorf("connect to browser at %s: %w", cdpURL, err)
	}

	targets, err := chromedp.Targets(probeCtx)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("enumerate targets: %w", err)
	}

	var res ProbeResult
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		res.PageCount++
		if urlFilter == "" || strings.Contains(t.URL, urlFilter) {
			res.MatchedCount++
			res.MatchedURLs = append(res.MatchedURLs, t.URL)
		}
	}
	return res, nil
}
