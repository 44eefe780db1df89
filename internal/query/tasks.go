package query

import (
	"context"

	"asylum/internal/domain"
	"asylum/internal/repo"
)

// ListTasks returns one page of tasks in id order.
func (s Service) ListTasks(ctx context.Context, f repo.TaskFilters, p Pagination, inc TaskIncludes) ([]TaskView, error) {
	if p.Offset == 0 {
		return []TaskView{}, nil
	}
	f.Limit = s.limit(p)
	f.Offset = p.Cursor
	items, err := s.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.resolveTasks(ctx, items, inc)
}

func (s Service) GetTask(ctx context.Context, id int64, inc TaskIncludes) (TaskView, error) {
	if err := domain.ValidateID("taskId", id); err != nil {
		return TaskView{}, err
	}
	t, err := s.Repo.GetTask(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	views, err := s.resolveTasks(ctx, []domain.Task{t}, inc)
	if err != nil {
		return TaskView{}, err
	}
	return views[0], nil
}

func (s Service) resolveTasks(ctx context.Context, items []domain.Task, inc TaskIncludes) ([]TaskView, error) {
	views := make([]TaskView, len(items))
	for i, t := range items {
		views[i] = TaskView{Task: t, State: t.State()}
	}
	if len(items) == 0 || (!inc.Assignee && !inc.Substance && !inc.Records) {
		return views, nil
	}
	l := s.loaderFor(ctx)
	if inc.Assignee {
		var uids []int64
		var at []int
		for i, t := range items {
			if t.AssigneeUID != nil {
				uids = append(uids, *t.AssigneeUID)
				at = append(at, i)
			}
		}
		if len(uids) > 0 {
			executors, err := l.Assignees(ctx, uids)
			if err != nil {
				return nil, err
			}
			for j, idx := range at {
				views[idx].Assignee = executors[j]
			}
		}
	}
	if inc.Substance {
		ids := make([]int64, len(items))
		for i, t := range items {
			ids[i] = t.SubstanceID
		}
		substances, err := l.Substances(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range views {
			views[i].Substance = substances[i]
		}
	}
	if inc.Records {
		ids := make([]int64, len(items))
		for i, t := range items {
			ids[i] = t.ID
		}
		recs, err := l.RecordsOf(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range views {
			views[i].Records = recs[i]
		}
	}
	return views, nil
}
