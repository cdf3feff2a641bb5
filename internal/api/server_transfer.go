package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerTransferHandlers(api huma.API, svc Service) {
	type importOutput struct {
		Body struct {
			Added int `json:"added"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "import-symbols", Method: http.MethodPost, Path: "/api/v1/import", Summary: "Import symbols from pasted text", Description: "Accepts free-form ticker text (comma or newline separated, optional NSE:/BSE: prefixes) and previously exported CSV. Duplicates are skipped.", Tags: []string{"Transfer"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Text string `json:"text" required:"true"`
			}
		}) (*importOutput, error) {
			added, err := svc.ImportText(ctx, input.Body.Text)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &importOutput{}
			out.Body.Added = added
			return out, nil
		})

	type exportOutput struct {
		Body struct {
			Text string `json:"text"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "export-symbols", Method: http.MethodGet, Path: "/api/v1/export", Summary: "Export every watchlist as CSV text", Tags: []string{"Transfer"}},
		func(ctx context.Context, input *struct{}) (*exportOutput, error) {
			text, err := svc.ExportText(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &exportOutput{}
			out.Body.Text = text
			return out, nil
		})
}
