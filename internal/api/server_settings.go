package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/screener_agent/internal/watchlist"
)

func registerSettingsHandlers(api huma.API, svc Service) {
	type settingsOutput struct {
		Body watchlist.Settings
	}

	huma.Register(api, huma.Operation{OperationID: "get-settings", Method: http.MethodGet, Path: "/api/v1/settings", Summary: "Get current settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			settings, err := svc.GetSettings(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &settingsOutput{}
			out.Body = settings
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "update-settings", Method: http.MethodPatch, Path: "/api/v1/settings", Summary: "Update settings", Description: "Omitted fields are left untouched. Column visibility changes reconcile open tabs on the next sweep.", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Theme            *string `json:"theme,omitempty" enum:"light,dark"`
				ShowColWatchlist *bool   `json:"showColWatchlist,omitempty"`
				ShowColChart     *bool   `json:"showColTv,omitempty"`
				LogLevel         *string `json:"logLevel,omitempty" enum:"DEBUG,INFO,WARN,ERROR"`
			}
		}) (*settingsOutput, error) {
			settings, err := svc.UpdateSettings(ctx, watchlist.SettingsPatch{
				Theme:            input.Body.Theme,
				ShowColWatchlist: input.Body.ShowColWatchlist,
				ShowColChart:     input.Body.ShowColChart,
				LogLevel:         input.Body.LogLevel,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &settingsOutput{}
			out.Body = settings
			return out, nil
		})

	type sidebarOutput struct {
		Body struct {
			IsOpen bool `json:"isOpen"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "toggle-sidebar", Method: http.MethodPost, Path: "/api/v1/sidebar/toggle", Summary: "Toggle the sidebar open flag", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*sidebarOutput, error) {
			open, err := svc.ToggleSidebar(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &sidebarOutput{}
			out.Body.IsOpen = open
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-sidebar-width", Method: http.MethodPut, Path: "/api/v1/sidebar/width", Summary: "Persist the sidebar width", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Width int `json:"width" required:"true" minimum:"1"`
			}
		}) (*struct{}, error) {
			if err := svc.SetSidebarWidth(ctx, input.Body.Width); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})
}
