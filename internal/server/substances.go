package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"asylum/internal/domain"
	"asylum/internal/engine"
	"asylum/internal/query"
	"asylum/internal/repo"
)

func registerSubstances(humaAPI huma.API, cfg Config) {
	e, q, log := cfg.Engine, cfg.Query, cfg.logger()

	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-substances",
		Method:      http.MethodGet,
		Path:        "/substances",
		Summary:     "List substances",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PageParams
		Name      string `query:"substanceName"`
		Level     string `query:"substanceLevel"`
		Contained string `query:"contained"`
		Include   string `query:"include" doc:"relatedTask"`
	}) (*envelopeOutput[query.SubstanceView], error) {
		pg, perr := input.pagination()
		if perr != nil {
			return nil, perr
		}
		f := repo.SubstanceFilters{Name: optString(input.Name)}
		if f.Level, perr = optEnum("substanceLevel", input.Level, domain.DifficultyLevels); perr != nil {
			return nil, perr
		}
		if f.Contained, perr = optBool("contained", input.Contained); perr != nil {
			return nil, perr
		}
		inc := query.SubstanceIncludes{RelatedTask: includes(input.Include)["relatedTask"]}
		items, err := q.ListSubstances(ctx, f, pg, inc)
		return respondList(ctx, log, "substance.list", items, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "get-substance",
		Method:      http.MethodGet,
		Path:        "/substances/{id}",
		Summary:     "Get substance",
	}, func(ctx context.Context, input *struct {
		ID      int64  `path:"id"`
		Include string `query:"include" doc:"relatedTask"`
	}) (*envelopeOutput[query.SubstanceView], error) {
		inc := query.SubstanceIncludes{RelatedTask: includes(input.Include)["relatedTask"]}
		view, err := q.GetSubstance(ctx, input.ID, inc)
		return respond(ctx, log, "substance.get", view, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "create-substance",
		Method:      http.MethodPost,
		Path:        "/substances",
		Summary:     "Record a discovered substance",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateSubstanceRequest `json:"body"`
	}) (*envelopeOutput[domain.Substance], error) {
		s, err := e.CreateSubstance(ctx, engine.SubstanceCreateOptions{
			Name:      input.Body.Name,
			Desc:      input.Body.Desc,
			Issues:    input.Body.Issues,
			Level:     input.Body.Level,
			Contained: input.Body.Contained,
		})
		return respond(ctx, log, "substance.create", s, err)
	})
}
