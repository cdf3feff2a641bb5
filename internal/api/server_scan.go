package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/screener_agent/internal/config"
	"github.com/dgnsrekt/screener_agent/internal/controller"
)

func registerScanHandlers(api huma.API, svc Service) {
	type scanStatusOutput struct {
		Body controller.ScanStatus
	}

	huma.Register(api, huma.Operation{OperationID: "start-scan", Method: http.MethodPost, Path: "/api/v1/scan", Summary: "Scan a screener results URL", Description: "Walks the paginated results in the background and adds every found symbol to the active watchlist. Only one scan runs at a time; progress streams over /api/v1/events.", Tags: []string{"Scan"}},
		func(ctx context.Context, input *struct {
			Body struct {
				URL string `json:"url" required:"true"`
			}
		}) (*scanStatusOutput, error) {
			status, err := svc.StartScan(ctx, input.Body.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &scanStatusOutput{}
			out.Body = status
			return out, nil
		})

	type cancelScanOutput struct {
		Body struct {
			Cancelled bool `json:"cancelled"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "cancel-scan", Method: http.MethodDelete, Path: "/api/v1/scan", Summary: "Cancel the running scan", Description: "Symbols collected before cancellation are still added.", Tags: []string{"Scan"}},
		func(ctx context.Context, input *struct{}) (*cancelScanOutput, error) {
			cancelled, err := svc.CancelScan(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &cancelScanOutput{}
			out.Body.Cancelled = cancelled
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-scan-status", Method: http.MethodGet, Path: "/api/v1/scan", Summary: "Get the current or last scan status", Tags: []string{"Scan"}},
		func(ctx context.Context, input *struct{}) (*scanStatusOutput, error) {
			status, err := svc.GetScanStatus(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &scanStatusOutput{}
			out.Body = status
			return out, nil
		})

	type listScreensOutput struct {
		Body struct {
			Screens []config.ScreenEntry `json:"screens"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-screens", Method: http.MethodGet, Path: "/api/v1/screens", Summary: "List saved screen presets", Tags: []string{"Scan"}},
		func(ctx context.Context, input *struct{}) (*listScreensOutput, error) {
			screens, err := svc.ListScreens(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listScreensOutput{}
			out.Body.Screens = screens
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "scan-screen", Method: http.MethodPost, Path: "/api/v1/screens/{name}/scan", Summary: "Scan a saved screen preset by name", Tags: []string{"Scan"}},
		func(ctx context.Context, input *struct {
			Name string `path:"name"`
		}) (*scanStatusOutput, error) {
			status, err := svc.StartScanScreen(ctx, input.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &scanStatusOutput{}
			out.Body = status
			return out, nil
		})
}
