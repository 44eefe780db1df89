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

type TaskIncludeParams struct {
	Include string `query:"include" doc:"Comma separated: assignee,substance,records"`
}

func (p TaskIncludeParams) includes() query.TaskIncludes {
	inc := includes(p.Include)
	return query.TaskIncludes{Assignee: inc["assignee"], Substance: inc["substance"], Records: inc["records"]}
}

type TaskPath struct {
	ID int64 `path:"id"`
}

func registerTasks(humaAPI huma.API, cfg Config) {
	e, q, log := cfg.Engine, cfg.Query, cfg.logger()

	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PageParams
		TaskIncludeParams
		Title        string `query:"taskTitle"`
		Priority     string `query:"taskPriority"`
		Level        string `query:"taskLevel"`
		Source       string `query:"taskSource"`
		Target       string `query:"taskTarget"`
		Reward       string `query:"taskReward"`
		AllowAbort   string `query:"allowAbort"`
		Accomplished string `query:"taskAccomplished"`
		Available    string `query:"taskAvailable"`
		AssigneeUID  string `query:"assigneeUid"`
		SubstanceID  string `query:"substanceId"`
	}) (*envelopeOutput[query.TaskView], error) {
		pg, perr := input.pagination()
		if perr != nil {
			return nil, perr
		}
		f := repo.TaskFilters{Title: optString(input.Title)}
		if f.Priority, perr = optEnum("taskPriority", input.Priority, domain.TaskPriorities); perr != nil {
			return nil, perr
		}
		if f.Level, perr = optEnum("taskLevel", input.Level, domain.DifficultyLevels); perr != nil {
			return nil, perr
		}
		if f.Source, perr = optEnum("taskSource", input.Source, domain.TaskSources); perr != nil {
			return nil, perr
		}
		if f.Target, perr = optEnum("taskTarget", input.Target, domain.TaskTargets); perr != nil {
			return nil, perr
		}
		if f.Reward, perr = optInt64("taskReward", input.Reward); perr != nil {
			return nil, perr
		}
		if f.AllowAbort, perr = optBool("allowAbort", input.AllowAbort); perr != nil {
			return nil, perr
		}
		if f.Accomplished, perr = optBool("taskAccomplished", input.Accomplished); perr != nil {
			return nil, perr
		}
		if f.Available, perr = optBool("taskAvailable", input.Available); perr != nil {
			return nil, perr
		}
		if f.AssigneeUID, perr = optInt64("assigneeUid", input.AssigneeUID); perr != nil {
			return nil, perr
		}
		if f.SubstanceID, perr = optInt64("substanceId", input.SubstanceID); perr != nil {
			return nil, perr
		}
		items, err := q.ListTasks(ctx, f, pg, input.includes())
		return respondList(ctx, log, "task.list", items, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
	}, func(ctx context.Context, input *struct {
		TaskPath
		TaskIncludeParams
	}) (*envelopeOutput[query.TaskView], error) {
		view, err := q.GetTask(ctx, input.ID, input.includes())
		return respond(ctx, log, "task.get", view, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "create-task",
		Method:      http.MethodPost,
		Path:        "/tasks",
		Summary:     "Create task bound to a substance",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*envelopeOutput[domain.Task], error) {
		b := input.Body
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:               b.Title,
			SubstanceID:         b.SubstanceID,
			Content:             b.Content,
			Priority:            b.Priority,
			Level:               b.Level,
			Source:              b.Source,
			Target:              b.Target,
			Reward:              b.Reward,
			Rate:                b.Rate,
			RequireCleaner:      b.RequireCleaner,
			RequireIntervention: b.RequireIntervention,
			AllowAbort:          b.AllowAbort,
		})
		return respond(ctx, log, "task.create", t, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task info",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body UpdateTaskRequest `json:"body"`
	}) (*envelopeOutput[domain.Task], error) {
		b := input.Body
		t, err := e.UpdateTaskInfo(ctx, input.ID, engine.TaskInfoUpdate{
			Title:               b.Title,
			Content:             b.Content,
			Priority:            b.Priority,
			Source:              b.Source,
			Target:              b.Target,
			Reward:              b.Reward,
			Rate:                b.Rate,
			RequireCleaner:      b.RequireCleaner,
			RequireIntervention: b.RequireIntervention,
			AllowAbort:          b.AllowAbort,
		})
		return respond(ctx, log, "task.update_info", t, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "assign-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/assign",
		Summary:     "Assign task to an executor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body AssignTaskRequest `json:"body"`
	}) (*envelopeOutput[domain.Task], error) {
		t, err := e.AssignTask(ctx, input.ID, input.Body.ExecutorUID)
		return respond(ctx, log, "task.assign", t, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "unassign-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/unassign",
		Summary:     "Release a task from its executor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *TaskPath) (*envelopeOutput[domain.Task], error) {
		t, err := e.UnassignTask(ctx, input.ID)
		return respond(ctx, log, "task.unassign", t, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "toggle-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/toggle",
		Summary:     "Flip task accomplished status",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *TaskPath) (*envelopeOutput[domain.Task], error) {
		t, err := e.ToggleTaskStatus(ctx, input.ID)
		return respond(ctx, log, "task.toggle", t, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "mutate-task-level",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/level",
		Summary:     "Set task difficulty level",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body TaskLevelRequest `json:"body"`
	}) (*envelopeOutput[domain.Task], error) {
		t, err := e.MutateTaskLevel(ctx, input.ID, input.Body.Level)
		return respond(ctx, log, "task.level", t, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "freeze-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/freeze",
		Summary:     "Mark task unavailable",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *TaskPath) (*envelopeOutput[domain.Task], error) {
		t, err := e.FreezeTask(ctx, input.ID)
		return respond(ctx, log, "task.freeze", t, err)
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete an unassigned task",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *TaskPath) (*envelopeOutput[domain.Task], error) {
		t, err := e.DeleteTask(ctx, input.ID)
		return respond(ctx, log, "task.delete", t, err)
	})
}
