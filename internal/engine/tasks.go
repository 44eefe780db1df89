package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"asylum/internal/domain"
	"asylum/internal/events"
	"asylum/internal/repo"
)

// TaskCreateOptions are parameters for creating a task. Nil fields take the
// entity defaults.
type TaskCreateOptions struct {
	Title               string
	SubstanceID         int64
	Content             *string
	Priority            *domain.TaskPriority
	Level               *domain.DifficultyLevel
	Source              *domain.TaskSource
	Target              *domain.TaskTarget
	Reward              *int64
	Rate                *int
	RequireCleaner      *bool
	RequireIntervention *bool
	AllowAbort          *bool
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	t := domain.NewTask(opts.Title, opts.SubstanceID, e.now())
	if opts.Content != nil {
		t.Content = *opts.Content
	}
	if opts.Priority != nil {
		t.Priority = *opts.Priority
	}
	if opts.Level != nil {
		t.Level = *opts.Level
	}
	if opts.Source != nil {
		t.Source = *opts.Source
	}
	if opts.Target != nil {
		t.Target = *opts.Target
	}
	if opts.Reward != nil {
		t.Reward = *opts.Reward
	}
	if opts.Rate != nil {
		t.Rate = opts.Rate
	}
	if opts.RequireCleaner != nil {
		t.RequireCleaner = *opts.RequireCleaner
	}
	if opts.RequireIntervention != nil {
		t.RequireIntervention = *opts.RequireIntervention
	}
	if opts.AllowAbort != nil {
		t.AllowAbort = *opts.AllowAbort
	}
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}
	err := e.inTx(ctx, "task.create", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := e.Repo.GetSubstanceTx(ctx, tx, t.SubstanceID); err != nil {
			return err
		}
		linked, err := e.Repo.GetTaskBySubstanceTx(ctx, tx, t.SubstanceID)
		if err == nil {
			return conflict("substanceId", linked)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		sameTitle, err := e.Repo.GetTaskByTitleTx(ctx, tx, t.Title)
		if err == nil {
			return conflict("taskTitle", sameTitle)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		id, err := e.Repo.InsertTaskTx(ctx, tx, t)
		if err != nil {
			return err
		}
		t.ID = id
		return e.events().Append(ctx, tx, "task.create", "task", taskEntityID(id), ActorFromContext(ctx),
			events.EventPayload{"title": t.Title, "substance_id": t.SubstanceID})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskInfoUpdate lists the fields updateTaskInfo may overwrite. Availability
// and completion have dedicated operations and cannot be set here.
type TaskInfoUpdate struct {
	Title               *string
	Content             *string
	Priority            *domain.TaskPriority
	Source              *domain.TaskSource
	Target              *domain.TaskTarget
	Reward              *int64
	Rate                *int
	RequireCleaner      *bool
	RequireIntervention *bool
	AllowAbort          *bool
}

func (u TaskInfoUpdate) validate() error {
	if u.Title != nil {
		if err := domain.ValidateTaskTitle(*u.Title); err != nil {
			return err
		}
	}
	if u.Priority != nil {
		if err := domain.ValidatePriority(*u.Priority); err != nil {
			return err
		}
	}
	if u.Source != nil {
		if err := domain.ValidateSource(*u.Source); err != nil {
			return err
		}
	}
	if u.Target != nil {
		if err := domain.ValidateTarget(*u.Target); err != nil {
			return err
		}
	}
	if u.Reward != nil {
		if err := domain.ValidateReward(*u.Reward); err != nil {
			return err
		}
	}
	if u.Rate != nil {
		return domain.ValidateRate(*u.Rate)
	}
	return nil
}

func (e Engine) UpdateTaskInfo(ctx context.Context, id int64, u TaskInfoUpdate) (domain.Task, error) {
	if err := domain.ValidateID("taskId", id); err != nil {
		return domain.Task{}, err
	}
	if err := u.validate(); err != nil {
		return domain.Task{}, err
	}
	return e.updateTask(ctx, "task.update", id, func(ctx context.Context, tx *sql.Tx, current domain.Task) (repo.TaskUpdate, error) {
		if u.Title != nil && *u.Title != current.Title {
			other, err := e.Repo.GetTaskByTitleTx(ctx, tx, *u.Title)
			if err == nil {
				return repo.TaskUpdate{}, conflict("taskTitle", other)
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return repo.TaskUpdate{}, err
			}
		}
		return repo.TaskUpdate{
			Title:               u.Title,
			Content:             u.Content,
			Priority:            u.Priority,
			Source:              u.Source,
			Target:              u.Target,
			Reward:              u.Reward,
			Rate:                u.Rate,
			RequireCleaner:      u.RequireCleaner,
			RequireIntervention: u.RequireIntervention,
			AllowAbort:          u.AllowAbort,
		}, nil
	})
}

// ToggleTaskStatus flips the accomplished flag.
func (e Engine) ToggleTaskStatus(ctx context.Context, id int64) (domain.Task, error) {
	if err := domain.ValidateID("taskId", id); err != nil {
		return domain.Task{}, err
	}
	return e.updateTask(ctx, "task.toggle", id, func(_ context.Context, _ *sql.Tx, current domain.Task) (repo.TaskUpdate, error) {
		flipped := !current.Accomplished
		return repo.TaskUpdate{Accomplished: &flipped}, nil
	})
}

func (e Engine) MutateTaskLevel(ctx context.Context, id int64, level domain.DifficultyLevel) (domain.Task, error) {
	if err := domain.ValidateID("taskId", id); err != nil {
		return domain.Task{}, err
	}
	if err := domain.ValidateLevel("taskLevel", level); err != nil {
		return domain.Task{}, err
	}
	return e.updateTask(ctx, "task.level", id, func(context.Context, *sql.Tx, domain.Task) (repo.TaskUpdate, error) {
		return repo.TaskUpdate{Level: &level}, nil
	})
}

// FreezeTask marks the task unavailable. Nothing sets it back.
func (e Engine) FreezeTask(ctx context.Context, id int64) (domain.Task, error) {
	if err := domain.ValidateID("taskId", id); err != nil {
		return domain.Task{}, err
	}
	return e.updateTask(ctx, "task.freeze", id, func(context.Context, *sql.Tx, domain.Task) (repo.TaskUpdate, error) {
		frozen := false
		return repo.TaskUpdate{Available: &frozen}, nil
	})
}

func (e Engine) updateTask(ctx context.Context, op string, id int64, build func(context.Context, *sql.Tx, domain.Task) (repo.TaskUpdate, error)) (domain.Task, error) {
	var updated domain.Task
	err := e.inTx(ctx, op, func(ctx context.Context, tx *sql.Tx) error {
		current, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}
		u, err := build(ctx, tx, current)
		if err != nil {
			return err
		}
		if err := e.Repo.UpdateTaskTx(ctx, tx, id, u, e.timestamp()); err != nil {
			return err
		}
		updated, err = e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, op, "task", taskEntityID(id), ActorFromContext(ctx), nil)
	})
	return updated, err
}

// AssignTask binds an unassigned task to an executor and records the
// assignment. An assigned task is reported as ErrAlreadyAssigned and left as is.
func (e Engine) AssignTask(ctx context.Context, taskID, uid int64) (domain.Task, error) {
	if err := domain.ValidateID("taskId", taskID); err != nil {
		return domain.Task{}, err
	}
	if err := domain.ValidateID("uid", uid); err != nil {
		return domain.Task{}, err
	}
	var updated domain.Task
	err := e.inTx(ctx, "task.assign", func(ctx context.Context, tx *sql.Tx) error {
		current, err := e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		executor, err := e.Repo.GetExecutorTx(ctx, tx, uid)
		if err != nil {
			return err
		}
		if current.AssigneeUID != nil {
			return alreadyAssigned(current)
		}
		now := e.timestamp()
		ok, err := e.Repo.AssignTaskTx(ctx, tx, taskID, uid, now)
		if err != nil {
			return err
		}
		if !ok {
			latest, err := e.Repo.GetTaskTx(ctx, tx, taskID)
			if err != nil {
				return err
			}
			return alreadyAssigned(latest)
		}
		if err := e.appendRecord(ctx, tx, domain.RecordAssigned, current, executor, now); err != nil {
			return err
		}
		updated, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, "task.assign", "task", taskEntityID(taskID), ActorFromContext(ctx),
			events.EventPayload{"executor_uid": uid})
	})
	return updated, err
}

// UnassignTask clears the assignee so the task can be reassigned or deleted.
func (e Engine) UnassignTask(ctx context.Context, taskID int64) (domain.Task, error) {
	if err := domain.ValidateID("taskId", taskID); err != nil {
		return domain.Task{}, err
	}
	var updated domain.Task
	err := e.inTx(ctx, "task.unassign", func(ctx context.Context, tx *sql.Tx) error {
		current, err := e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if current.AssigneeUID == nil {
			return notAllowed("task is not assigned")
		}
		executor, err := e.Repo.GetExecutorTx(ctx, tx, *current.AssigneeUID)
		if err != nil {
			return err
		}
		now := e.timestamp()
		ok, err := e.Repo.UnassignTaskTx(ctx, tx, taskID, now)
		if err != nil {
			return err
		}
		if !ok {
			return notAllowed("task is not assigned")
		}
		if err := e.appendRecord(ctx, tx, domain.RecordUnassigned, current, executor, now); err != nil {
			return err
		}
		updated, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, "task.unassign", "task", taskEntityID(taskID), ActorFromContext(ctx),
			events.EventPayload{"executor_uid": executor.UID})
	})
	return updated, err
}

// DeleteTask removes an unassigned task and returns the removed row.
func (e Engine) DeleteTask(ctx context.Context, id int64) (domain.Task, error) {
	if err := domain.ValidateID("taskId", id); err != nil {
		return domain.Task{}, err
	}
	var removed domain.Task
	err := e.inTx(ctx, "task.delete", func(ctx context.Context, tx *sql.Tx) error {
		current, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.AssigneeUID != nil {
			return notAllowed("task is assigned; unassign it first")
		}
		ok, err := e.Repo.DeleteTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return notAllowed("task is assigned; unassign it first")
		}
		removed = current
		return e.events().Append(ctx, tx, "task.delete", "task", taskEntityID(id), ActorFromContext(ctx),
			events.EventPayload{"title": current.Title})
	})
	return removed, err
}

func (e Engine) appendRecord(ctx context.Context, tx *sql.Tx, kind domain.RecordKind, t domain.Task, ex domain.Executor, now string) error {
	content, err := json.Marshal(map[string]any{
		"taskTitle":    t.Title,
		"executorName": ex.Name,
		"substanceId":  t.SubstanceID,
	})
	if err != nil {
		return err
	}
	_, err = e.Repo.InsertRecordTx(ctx, tx, domain.AssignmentRecord{
		TaskID:      t.ID,
		ExecutorUID: ex.UID,
		Kind:        kind,
		Ref:         uuid.NewString(),
		Content:     string(content),
		CreatedAt:   now,
	})
	return err
}

func taskEntityID(id int64) string {
	return strconv.FormatInt(id, 10)
}
