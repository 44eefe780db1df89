package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"asylum/internal/descriptor"
	"asylum/internal/domain"
	"asylum/internal/engine"
	"asylum/internal/query"
	"asylum/internal/repo"
)

type ExecutorIncludeParams struct {
	Include string `query:"include" doc:"Comma separated: tasks,record"`
	Years   string `query:"years" doc:"Years ahead for projectedAge"`
}

func (p ExecutorIncludeParams) includes() (query.ExecutorIncludes, huma.StatusError) {
	inc := includes(p.Include)
	years, err := optInt("years", p.Years)
	if err != nil {
		return query.ExecutorIncludes{}, err
	}
	return query.ExecutorIncludes{Tasks: inc["tasks"], Record: inc["record"], Years: years}, nil
}

type UIDPath struct {
	UID int64 `path:"uid"`
}

func registerExecutors(humaAPI huma.API, cfg Config) {
	e, q, log := cfg.Engine, cfg.Query, cfg.logger()

	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-executors",
		Method:      http.MethodGet,
		Path:        "/executors",
		Summary:     "List executors",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PageParams
		ExecutorIncludeParams
		Name      string `query:"name"`
		Age       string `query:"age"`
		Job       string `query:"job"`
		Impaired  string `query:"impaired"`
		Available string `query:"available"`
		Region    string `query:"region"`
	}) (*envelopeOutput[query.ExecutorView], error) {
		pg, perr := input.pagination()
		if perr != nil {
			return nil, perr
		}
		inc, perr := input.includes()
		if perr != nil {
			return nil, perr
		}
		f := repo.ExecutorFilters{Name: optString(input.Name)}
		if f.Age, perr = optInt("age", input.Age); perr != nil {
			return nil, perr
		}
		if f.Job, perr = optEnum("job", input.Job, domain.Jobs); perr != nil {
			return nil, perr
		}
		if f.Impaired, perr = optBool("impaired", input.Impaired); perr != nil {
			return nil, perr
		}
		if f.Available, perr = optBool("available", input.Available); perr != nil {
			return nil, perr
		}
		if f.Region, perr = optEnum("region", input.Region, domain.Regions); perr != nil {
			return nil, perr
		}
		items, err := q.ListExecutors(ctx, f, pg, inc)
		return respondList(ctx, log, "executor.list", items, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-executors-by-descriptor",
		Method:      http.MethodGet,
		Path:        "/executors/by-descriptor",
		Summary:     "List executors matching descriptor fields",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PageParams
		ExecutorIncludeParams
		Level        string `query:"level"`
		SuccessRate  string `query:"successRate"`
		Satisfaction string `query:"satisfaction"`
	}) (*envelopeOutput[query.ExecutorView], error) {
		pg, perr := input.pagination()
		if perr != nil {
			return nil, perr
		}
		inc, perr := input.includes()
		if perr != nil {
			return nil, perr
		}
		var f query.DescriptorFilter
		if f.Level, perr = optEnum("level", input.Level, domain.DifficultyLevels); perr != nil {
			return nil, perr
		}
		if f.SuccessRate, perr = optInt("successRate", input.SuccessRate); perr != nil {
			return nil, perr
		}
		if f.Satisfaction, perr = optInt("satisfaction", input.Satisfaction); perr != nil {
			return nil, perr
		}
		items, err := q.ListExecutorsByDescriptor(ctx, f, pg, inc)
		return respondList(ctx, log, "executor.by_descriptor", items, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "get-executor",
		Method:      http.MethodGet,
		Path:        "/executors/{uid}",
		Summary:     "Get executor",
	}, func(ctx context.Context, input *struct {
		UIDPath
		ExecutorIncludeParams
	}) (*envelopeOutput[query.ExecutorView], error) {
		inc, perr := input.includes()
		if perr != nil {
			return nil, perr
		}
		view, err := q.GetExecutor(ctx, input.UID, inc)
		return respond(ctx, log, "executor.get", view, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-executor-tasks",
		Method:      http.MethodGet,
		Path:        "/executors/{uid}/tasks",
		Summary:     "List tasks assigned to an executor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UIDPath
		PageParams
		TaskIncludeParams
	}) (*envelopeOutput[query.TaskView], error) {
		pg, perr := input.pagination()
		if perr != nil {
			return nil, perr
		}
		items, err := q.ListExecutorTasks(ctx, input.UID, pg, input.includes())
		return respondList(ctx, log, "executor.tasks", items, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "create-executor",
		Method:      http.MethodPost,
		Path:        "/executors",
		Summary:     "Create executor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateExecutorRequest `json:"body"`
	}) (*envelopeOutput[domain.Executor], error) {
		ex, err := e.CreateExecutor(ctx, engine.ExecutorCreateOptions{
			Name:       input.Body.Name,
			Age:        input.Body.Age,
			Job:        input.Body.Job,
			Impaired:   input.Body.Impaired,
			Available:  input.Body.Available,
			Region:     input.Body.Region,
			Descriptor: input.Body.Descriptor,
		})
		return respond(ctx, log, "executor.create", ex, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "update-executor",
		Method:      http.MethodPatch,
		Path:        "/executors/{uid}",
		Summary:     "Update executor info",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UIDPath
		Body UpdateExecutorRequest `json:"body"`
	}) (*envelopeOutput[domain.Executor], error) {
		ex, err := e.UpdateExecutorInfo(ctx, input.UID, engine.ExecutorInfoUpdate{
			Name:      input.Body.Name,
			Age:       input.Body.Age,
			Job:       input.Body.Job,
			Impaired:  input.Body.Impaired,
			Available: input.Body.Available,
			Region:    input.Body.Region,
		})
		return respond(ctx, log, "executor.update_info", ex, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "update-executor-descriptor",
		Method:      http.MethodPatch,
		Path:        "/executors/{uid}/descriptor",
		Summary:     "Merge executor descriptor fields",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UIDPath
		Body descriptor.Patch `json:"body"`
	}) (*envelopeOutput[domain.Executor], error) {
		ex, err := e.UpdateExecutorDescriptor(ctx, input.UID, input.Body)
		return respond(ctx, log, "executor.update_descriptor", ex, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "delete-executor",
		Method:      http.MethodDelete,
		Path:        "/executors/{uid}",
		Summary:     "Delete executor and detach its tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *UIDPath) (*envelopeOutput[domain.Executor], error) {
		ex, err := e.DeleteExecutor(ctx, input.UID)
		return respond(ctx, log, "executor.delete", ex, err)
	})
}

func registerLevels(humaAPI huma.API, cfg Config) {
	q, log := cfg.Query, cfg.logger()
	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-by-level",
		Method:      http.MethodGet,
		Path:        "/levels",
		Summary:     "Executors and tasks sharing a difficulty level",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PageParams
		Level string `query:"level"`
	}) (*envelopeOutput[query.LevelView], error) {
		pg, perr := input.pagination()
		if perr != nil {
			return nil, perr
		}
		level, perr := optEnum("level", input.Level, domain.DifficultyLevels)
		if perr != nil {
			return nil, perr
		}
		view, err := q.ListByLevel(ctx, level, pg)
		return respond(ctx, log, "level.list", view, err)
	})
}
