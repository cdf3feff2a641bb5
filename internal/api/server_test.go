package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/screener_agent/internal/config"
	"github.com/dgnsrekt/screener_agent/internal/controller"
	"github.com/dgnsrekt/screener_agent/internal/events"
	"github.com/dgnsrekt/screener_agent/internal/resolve"
	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

type stubService struct {
	err error
}

func (s *stubService) GetState(ctx context.Context) (watchlist.State, error) {
	return watchlist.DefaultState(), s.err
}
func (s *stubService) ListWatchlists(ctx context.Context) ([]watchlist.Watchlist, error) {
	return watchlist.DefaultState().Watchlists, s.err
}
func (s *stubService) GetActiveWatchlist(ctx context.Context) (watchlist.Watchlist, error) {
	return watchlist.DefaultState().Watchlists[0], s.err
}
func (s *stubService) SetActiveWatchlist(ctx context.Context, id string) (watchlist.Watchlist, error) {
	return watchlist.Watchlist{}, s.err
}
func (s *stubService) CreateWatchlist(ctx context.Context, name string) (watchlist.Watchlist, error) {
	return watchlist.Watchlist{ID: "wl_1", Name: name}, s.err
}
func (s *stubService) RenameWatchlist(ctx context.Context, id, name string) error { return s.err }
func (s *stubService) DeleteWatchlist(ctx context.Context, id string) error       { return s.err }
func (s *stubService) AddSymbol(ctx context.Context, ticker, exchange string) (bool, error) {
	return true, s.err
}
func (s *stubService) RemoveSymbol(ctx context.Context, ticker, exchange string) error { return s.err }
func (s *stubService) CycleColor(ctx context.Context, ticker string) error             { return s.err }
func (s *stubService) OpenChart(ctx context.Context, ticker string) (resolve.Symbol, string, error) {
	return resolve.Symbol{Ticker: "TCS", Exchange: watchlist.ExchangeNSE}, "https://example.com/chart", s.err
}
func (s *stubService) ImportText(ctx context.Context, text string) (int, error) { return 2, s.err }
func (s *stubService) ExportText(ctx context.Context) (string, error) {
	return watchlist.ExportHeader + "\n", s.err
}
func (s *stubService) GetSettings(ctx context.Context) (watchlist.Settings, error) {
	return watchlist.DefaultState().Settings, s.err
}
func (s *stubService) UpdateSettings(ctx context.Context, patch watchlist.SettingsPatch) (watchlist.Settings, error) {
	return watchlist.DefaultState().Settings, s.err
}
func (s *stubService) ToggleSidebar(ctx context.Context) (bool, error)      { return true, s.err }
func (s *stubService) SetSidebarWidth(ctx context.Context, width int) error { return s.err }
func (s *stubService) CancelScan(ctx context.Context) (bool, error)         { return false, s.err }
func (s *stubService) StartScan(ctx context.Context, startURL string) (controller.ScanStatus, error) {
	return controller.ScanStatus{Running: true, RunID: "run-1"}, s.err
}
func (s *stubService) StartScanScreen(ctx context.Context, name string) (controller.ScanStatus, error) {
	return controller.ScanStatus{Running: true, RunID: "run-1"}, s.err
}
func (s *stubService) GetScanStatus(ctx context.Context) (controller.ScanStatus, error) {
	return controller.ScanStatus{}, s.err
}
func (s *stubService) ListScreens(ctx context.Context) ([]config.ScreenEntry, error) {
	return []config.ScreenEntry{{Name: "momentum", URL: "https://www.screener.in/screens/1/momentum/"}}, s.err
}
func (s *stubService) ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error) {
	return []cdpcontrol.PageInfo{}, s.err
}

func newTestServer(svc Service) http.Handler {
	return NewServer(svc, events.NewBroker())
}

func TestDocsServed(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&stubService{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/docs")
	if err != nil {
		t.Fatalf("get docs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("docs status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("docs content type = %q", ct)
	}
}

func TestOpenAPIServed(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&stubService{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/openapi.json")
	if err != nil {
		t.Fatalf("get openapi: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi status = %d", resp.StatusCode)
	}
}

func TestStateEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&stubService{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status = %d", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "bad"}, http.StatusBadRequest},
		{"page not found", &cdpcontrol.CodedError{Code: cdpcontrol.CodePageNotFound, Message: "gone"}, http.StatusNotFound},
		{"eval timeout", &cdpcontrol.CodedError{Code: cdpcontrol.CodeEvalTimeout, Message: "slow"}, http.StatusGatewayTimeout},
		{"cdp unavailable", &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "down"}, http.StatusBadGateway},
		{"watchlist not found", watchlist.ErrWatchlistNotFound, http.StatusNotFound},
		{"last watchlist", watchlist.ErrLastWatchlist, http.StatusConflict},
		{"scan in progress", controller.ErrScanInProgress, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(newTestServer(&stubService{err: tc.err}))
			defer srv.Close()

			req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/watchlist/default", nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("delete watchlist: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestScanStartAccepted(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&stubService{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/scan", "application/json", strings.NewReader(`{"url":"https://www.screener.in/screens/1/test/"}`))
	if err != nil {
		t.Fatalf("post scan: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan status = %d", resp.StatusCode)
	}
}
