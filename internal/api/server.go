// Package api exposes the agent's local HTTP surface: a REST API over the
// watchlist document and browser operations, an SSE event stream, and the
// interactive docs page.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/screener_agent/internal/config"
	"github.com/dgnsrekt/screener_agent/internal/controller"
	"github.com/dgnsrekt/screener_agent/internal/events"
	"github.com/dgnsrekt/screener_agent/internal/resolve"
	"github.com/dgnsrekt/screener_agent/internal/watchlist"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	GetState(ctx context.Context) (watchlist.State, error)
	ListWatchlists(ctx context.Context) ([]watchlist.Watchlist, error)
	GetActiveWatchlist(ctx context.Context) (watchlist.Watchlist, error)
	SetActiveWatchlist(ctx context.Context, id string) (watchlist.Watchlist, error)
	CreateWatchlist(ctx context.Context, name string) (watchlist.Watchlist, error)
	RenameWatchlist(ctx context.Context, id, name string) error
	DeleteWatchlist(ctx context.Context, id string) error
	AddSymbol(ctx context.Context, ticker, exchange string) (bool, error)
	RemoveSymbol(ctx context.Context, ticker, exchange string) error
	CycleColor(ctx context.Context, ticker string) error
	OpenChart(ctx context.Context, ticker string) (resolve.Symbol, string, error)
	ImportText(ctx context.Context, text string) (int, error)
	ExportText(ctx context.Context) (string, error)
	GetSettings(ctx context.Context) (watchlist.Settings, error)
	UpdateSettings(ctx context.Context, patch watchlist.SettingsPatch) (watchlist.Settings, error)
	ToggleSidebar(ctx context.Context) (bool, error)
	SetSidebarWidth(ctx context.Context, width int) error
	StartScan(ctx context.Context, startURL string) (controller.ScanStatus, error)
	StartScanScreen(ctx context.Context, name string) (controller.ScanStatus, error)
	CancelScan(ctx context.Context) (bool, error)
	GetScanStatus(ctx context.Context) (controller.ScanStatus, error)
	ListScreens(ctx context.Context) ([]config.ScreenEntry, error)
	ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error)
}

func NewServer(svc Service, broker *events.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Screener Agent API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/api/v1/events", events.SSEHandler(broker))

	registerWatchlistHandlers(api, svc)
	registerTransferHandlers(api, svc)
	registerScanHandlers(api, svc)
	registerSettingsHandlers(api, svc)
	registerPageHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodePageNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeAPIUnavailable, cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	switch {
	case errors.Is(err, watchlist.ErrWatchlistNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, watchlist.ErrLastWatchlist), errors.Is(err, controller.ErrScanInProgress):
		return huma.Error409Conflict(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
