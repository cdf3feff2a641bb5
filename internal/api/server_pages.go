package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
)

func registerPageHandlers(api huma.API, svc Service) {
	type listPagesOutput struct {
		Body struct {
			Pages []cdpcontrol.PageInfo `json:"pages"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-pages", Method: http.MethodGet, Path: "/api/v1/pages", Summary: "List screener tabs open in the attached browser", Tags: []string{"Pages"}},
		func(ctx context.Context, input *struct{}) (*listPagesOutput, error) {
			pages, err := svc.ListPages(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listPagesOutput{}
			out.Body.Pages = pages
			return out, nil
		})
}
