package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func withDefaultHTTPClient(t *testing.T, transport http.RoundTripper) {
	t.Helper()
	origClient := http.DefaultClient
	t.Cleanup(func() {
		http.DefaultClient = origClient
	})
	http.DefaultClient = &http.Client{
		Transport: transport,
	}
}

func serveTargetList(t *testing.T, targets []map[string]any) http.RoundTripper {
	t.Helper()
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/json/list" {
			return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(``))}, nil
		}
		payload, err := json.Marshal(targets)
		if err != nil {
			t.Fatalf("json.Marshal() = %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(string(payload))),
		}, nil
	})
}

func TestSyncTabsLockedFiltersByURL(t *testing.T) {
	withDefaultHTTPClient(t, serveTargetList(t, []map[string]any{
		{"id": "aaaaaaaa1111", "type": "page", "url": "https://www.screener.in/screens/1/demo/", "title": "Screen"},
		{"id": "bbbbbbbb2222", "type": "page", "url": "https://example.com/", "title": "Other"},
		{"id": "cccccccc3333", "type": "service_worker", "url": "https://www.screener.in/sw.js", "title": "sw"},
	}))

	c := NewClient("http://example.com", "screener.in", time.Second)
	c.cdp = newRawCDP("http://example.com")

	if err := c.syncTabsLocked(context.Background()); err != nil {
		t.Fatalf("syncTabsLocked() = %v", err)
	}
	if len(c.tabs) != 1 {
		t.Fatalf("tabs = %d; want 1 (only screener page targets)", len(c.tabs))
	}
	session := c.tabs[target.ID("aaaaaaaa1111")]
	if session == nil {
		t.Fatal("screener tab missing from tab map")
	}
	if session.info.PageID != "aaaaaaaa" {
		t.Fatalf("page id = %q; want first 8 chars of target id", session.info.PageID)
	}
	if _, ok := c.pageToTarget["aaaaaaaa"]; !ok {
		t.Fatal("pageToTarget missing screener page")
	}
}

func TestSyncTabsLockedDropsClosedTabs(t *testing.T) {
	withDefaultHTTPClient(t, serveTargetList(t, []map[string]any{
		{"id": "aaaaaaaa1111", "type": "page", "url": "https://www.screener.in/screens/1/demo/", "title": "Screen"},
	}))

	c := NewClient("http://example.com", "screener.in", time.Second)
	c.cdp = newRawCDP("http://example.com")
	c.tabs[target.ID("gone00001111")] = &tabSession{info: PageInfo{PageID: "gone0000"}}
	c.pageLocks["gone0000"] = &sync.Mutex{}

	if err := c.syncTabsLocked(context.Background()); err != nil {
		t.Fatalf("syncTabsLocked() = %v", err)
	}
	if _, ok := c.tabs[target.ID("gone00001111")]; ok {
		t.Fatal("closed tab still present after sync")
	}
	c.pageLocksMu.Lock()
	_, lockKept := c.pageLocks["gone0000"]
	c.pageLocksMu.Unlock()
	if lockKept {
		t.Fatal("page lock for closed tab not pruned")
	}
}

func TestEvalOnPageRequiresPageID(t *testing.T) {
	c := NewClient("http://example.com", "screener.in", time.Second)
	err := c.EvalOnPage(context.Background(), "  ", "1+1", nil)
	var coded *CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("EvalOnPage() returned %T; want *CodedError", err)
	}
	if coded.Code != CodePageNotFound {
		t.Fatalf("code = %s; want %s", coded.Code, CodePageNotFound)
	}
}

func TestShouldRetryClassification(t *testing.T) {
	c := NewClient("http://example.com", "", time.Second)
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"cdp unavailable", newError(CodeCDPUnavailable, "down", nil), true},
		{"page not found", newError(CodePageNotFound, "gone", nil), false},
		{"validation", newError(CodeValidation, "bad", nil), false},
		{"eval failure no cause", newError(CodeEvalFailure, "boom", nil), false},
		{"eval failure transient cause", newError(CodeEvalFailure, "boom", errors.New("websocket: close")), true},
		{"eval failure permanent cause", newError(CodeEvalFailure, "boom", errors.New("syntax error")), false},
		{"plain error", errors.New("nope"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.shouldRetry(tc.err); got != tc.want {
				t.Fatalf("shouldRetry(%v) = %v; want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestCodedErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := newError(CodeEvalFailure, "evaluation failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is() cannot see the cause")
	}
	if got := err.Error(); !strings.Contains(got, "EVAL_FAILURE") || !strings.Contains(got, "connection reset") {
		t.Fatalf("Error() = %q; want code and cause", got)
	}
}

func TestPageIDFromTarget(t *testing.T) {
	if got := pageIDFromTarget("ABCDEF1234567890"); got != "ABCDEF12" {
		t.Fatalf("pageIDFromTarget() = %q; want %q", got, "ABCDEF12")
	}
	if got := pageIDFromTarget("short"); got != "short" {
		t.Fatalf("pageIDFromTarget() = %q; want %q", got, "short")
	}
}
