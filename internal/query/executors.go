package query

import (
	"context"

	"asylum/internal/domain"
	"asylum/internal/repo"
)

// ListExecutors returns one page of executors in uid order.
func (s Service) ListExecutors(ctx context.Context, f repo.ExecutorFilters, p Pagination, inc ExecutorIncludes) ([]ExecutorView, error) {
	if p.Offset == 0 {
		return []ExecutorView{}, nil
	}
	f.Limit = s.limit(p)
	f.Offset = p.Cursor
	items, err := s.Repo.ListExecutors(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.resolveExecutors(ctx, items, inc)
}

func (s Service) GetExecutor(ctx context.Context, uid int64, inc ExecutorIncludes) (ExecutorView, error) {
	if err := domain.ValidateID("uid", uid); err != nil {
		return ExecutorView{}, err
	}
	e, err := s.Repo.GetExecutor(ctx, uid)
	if err != nil {
		return ExecutorView{}, err
	}
	views, err := s.resolveExecutors(ctx, []domain.Executor{e}, inc)
	if err != nil {
		return ExecutorView{}, err
	}
	return views[0], nil
}

// ListExecutorTasks pages the tasks assigned to uid. It reports repo.ErrNotFound
// when the executor does not exist.
func (s Service) ListExecutorTasks(ctx context.Context, uid int64, p Pagination, inc TaskIncludes) ([]TaskView, error) {
	if err := domain.ValidateID("uid", uid); err != nil {
		return nil, err
	}
	if _, err := s.Repo.GetExecutor(ctx, uid); err != nil {
		return nil, err
	}
	return s.ListTasks(ctx, repo.TaskFilters{AssigneeUID: &uid}, p, inc)
}

// ListExecutorsByDescriptor filters on the decoded descriptor. Executors whose
// stored descriptor cannot be decoded never match.
func (s Service) ListExecutorsByDescriptor(ctx context.Context, f DescriptorFilter, p Pagination, inc ExecutorIncludes) ([]ExecutorView, error) {
	if p.Offset == 0 {
		return []ExecutorView{}, nil
	}
	all, err := s.Repo.ListExecutors(ctx, repo.ExecutorFilters{})
	if err != nil {
		return nil, err
	}
	var matched []domain.Executor
	for _, e := range all {
		d, ok := e.Descriptor()
		if !ok || !f.matches(d) {
			continue
		}
		matched = append(matched, e)
	}
	return s.resolveExecutors(ctx, pageSlice(matched, p.Cursor, s.limit(p)), inc)
}

// ListByLevel pages executors whose descriptor level matches and tasks at that
// level. A nil level matches everything.
func (s Service) ListByLevel(ctx context.Context, level *domain.DifficultyLevel, p Pagination) (LevelView, error) {
	if level != nil {
		if err := domain.ValidateLevel("level", *level); err != nil {
			return LevelView{}, err
		}
	}
	executors, err := s.ListExecutorsByDescriptor(ctx, DescriptorFilter{Level: level}, p, ExecutorIncludes{})
	if err != nil {
		return LevelView{}, err
	}
	tasks, err := s.ListTasks(ctx, repo.TaskFilters{Level: level}, p, TaskIncludes{})
	if err != nil {
		return LevelView{}, err
	}
	return LevelView{Executors: executors, Tasks: tasks}, nil
}

func (s Service) resolveExecutors(ctx context.Context, items []domain.Executor, inc ExecutorIncludes) ([]ExecutorView, error) {
	views := make([]ExecutorView, len(items))
	uids := make([]int64, len(items))
	for i, e := range items {
		views[i] = ExecutorView{Executor: e, ProjectedAge: domain.ProjectedAge(e, inc.Years)}
		if d, ok := e.Descriptor(); ok {
			views[i].Descriptor = &d
		}
		uids[i] = e.UID
	}
	if len(items) == 0 || (!inc.Tasks && !inc.Record) {
		return views, nil
	}
	l := s.loaderFor(ctx)
	if inc.Tasks {
		lists, err := l.TasksOf(ctx, uids)
		if err != nil {
			return nil, err
		}
		for i := range views {
			views[i].Tasks = lists[i]
		}
	}
	if inc.Record {
		recs, err := l.LatestRecords(ctx, uids)
		if err != nil {
			return nil, err
		}
		for i := range views {
			views[i].Record = recs[i]
		}
	}
	return views, nil
}
