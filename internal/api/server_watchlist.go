package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

func registerWatchlistHandlers(api huma.API, svc Service) {
	type stateOutput struct {
		Body watchlist.State
	}
	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/v1/state", Summary: "Get the full persisted document", Tags: []string{"State"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			state, err := svc.GetState(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &stateOutput{}
			out.Body = state
			return out, nil
		})

	type listWatchlistsOutput struct {
		Body struct {
			Watchlists []watchlist.Watchlist `json:"watchlists"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-watchlists", Method: http.MethodGet, Path: "/api/v1/watchlists", Summary: "List all watchlists", Tags: []string{"Watchlists"}},
		func(ctx context.Context, input *struct{}) (*listWatchlistsOutput, error) {
			wls, err := svc.ListWatchlists(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listWatchlistsOutput{}
			out.Body.Watchlists = wls
			return out, nil
		})

	type watchlistOutput struct {
		Body watchlist.Watchlist
	}
	huma.Register(api, huma.Operation{OperationID: "get-active-watchlist", Method: http.MethodGet, Path: "/api/v1/watchlists/active", Summary: "Get the active watchlist with symbols", Tags: []string{"Watchlists"}},
		func(ctx context.Context, input *struct{}) (*watchlistOutput, error) {
			wl, err := svc.GetActiveWatchlist(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &watchlistOutput{}
			out.Body = wl
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-active-watchlist", Method: http.MethodPut, Path: "/api/v1/watchlists/active", Summary: "Set the active watchlist by ID", Tags: []string{"Watchlists"}},
		func(ctx context.Context, input *struct {
			Body struct {
				ID string `json:"id" required:"true"`
			}
		}) (*watchlistOutput, error) {
			wl, err := svc.SetActiveWatchlist(ctx, input.Body.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &watchlistOutput{}
			out.Body = wl
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-watchlist", Method: http.MethodPost, Path: "/api/v1/watchlists", Summary: "Create a new watchlist and make it active", Tags: []string{"Watchlists"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Name string `json:"name" required:"true"`
			}
		}) (*watchlistOutput, error) {
			wl, err := svc.CreateWatchlist(ctx, input.Body.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &watchlistOutput{}
			out.Body = wl
			return out, nil
		})

	type watchlistIDInput struct {
		WatchlistID string `path:"watchlist_id"`
	}

	huma.Register(api, huma.Operation{OperationID: "rename-watchlist", Method: http.MethodPatch, Path: "/api/v1/watchlist/{watchlist_id}", Summary: "Rename a watchlist", Tags: []string{"Watchlists"}},
		func(ctx context.Context, input *struct {
			WatchlistID string `path:"watchlist_id"`
			Body        struct {
				Name string `json:"name" required:"true"`
			}
		}) (*struct{}, error) {
			if err := svc.RenameWatchlist(ctx, input.WatchlistID, input.Body.Name); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-watchlist", Method: http.MethodDelete, Path: "/api/v1/watchlist/{watchlist_id}", Summary: "Delete a watchlist", Description: "The last remaining watchlist cannot be deleted.", Tags: []string{"Watchlists"}},
		func(ctx context.Context, input *watchlistIDInput) (*struct{}, error) {
			if err := svc.DeleteWatchlist(ctx, input.WatchlistID); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})

	// --- Symbol endpoints (active watchlist) ---

	type addSymbolOutput struct {
		Body struct {
			Added bool `json:"added"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "add-symbol", Method: http.MethodPost, Path: "/api/v1/symbols", Summary: "Add a symbol to the active watchlist", Description: "Exchange is optional; numeric tickers default to BSE, everything else to NSE.", Tags: []string{"Symbols"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Ticker   string `json:"ticker" required:"true"`
				Exchange string `json:"exchange,omitempty"`
			}
		}) (*addSymbolOutput, error) {
			added, err := svc.AddSymbol(ctx, input.Body.Ticker, input.Body.Exchange)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &addSymbolOutput{}
			out.Body.Added = added
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "remove-symbol", Method: http.MethodDelete, Path: "/api/v1/symbols/{ticker}", Summary: "Remove a symbol from the active watchlist", Description: "Without an exchange query parameter the ticker is removed on every exchange.", Tags: []string{"Symbols"}},
		func(ctx context.Context, input *struct {
			Ticker   string `path:"ticker"`
			Exchange string `query:"exchange"`
		}) (*struct{}, error) {
			if err := svc.RemoveSymbol(ctx, input.Ticker, input.Exchange); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "cycle-symbol-color", Method: http.MethodPost, Path: "/api/v1/symbols/{ticker}/color", Summary: "Cycle a symbol's color tag", Tags: []string{"Symbols"}},
		func(ctx context.Context, input *struct {
			Ticker string `path:"ticker"`
		}) (*struct{}, error) {
			if err := svc.CycleColor(ctx, input.Ticker); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})

	type openChartOutput struct {
		Body struct {
			Ticker   string `json:"ticker"`
			Exchange string `json:"exchange"`
			URL      string `json:"url"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "open-chart", Method: http.MethodPost, Path: "/api/v1/symbols/{ticker}/chart", Summary: "Open a chart tab for a symbol", Description: "Resolves BSE scrip codes to NSE tickers when a listing exists, opens a chart tab in the attached browser, and marks the ticker visited.", Tags: []string{"Symbols"}},
		func(ctx context.Context, input *struct {
			Ticker string `path:"ticker"`
		}) (*openChartOutput, error) {
			sym, chartURL, err := svc.OpenChart(ctx, input.Ticker)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &openChartOutput{}
			out.Body.Ticker = sym.Ticker
			out.Body.Exchange = string(sym.Exchange)
			out.Body.URL = chartURL
			return out, nil
		})
}
