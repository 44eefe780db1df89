// Package loader resolves entity relations in bulk. A Loader lives for one
// inbound request: every (relation, key) pair is fetched at most once and
// concurrent lookups of the same pair share a single storage round trip.
package loader

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"asylum/internal/domain"
)

const tracerName = "asylum/internal/loader"

type Relation string

const (
	// TaskAssignee maps an executor uid to the executor.
	TaskAssignee Relation = "task.assignee"
	// ExecutorTasks maps an executor uid to every task assigned to it.
	ExecutorTasks Relation = "executor.tasks"
	// TaskSubstance maps a substance id to the substance.
	TaskSubstance Relation = "task.substance"
	// SubstanceTask maps a substance id to the task bound to it.
	SubstanceTask Relation = "substance.task"
	// TaskRecords maps a task id to its assignment history.
	TaskRecords Relation = "task.records"
	// ExecutorRecord maps an executor uid to its latest assignment record.
	ExecutorRecord Relation = "executor.record"
)

// Source is the bulk storage surface the loader draws from. Each method gets the
// full set of missing keys and returns whatever rows exist for them.
type Source interface {
	ExecutorsByUIDs(ctx context.Context, uids []int64) ([]domain.Executor, error)
	TasksByAssignees(ctx context.Context, uids []int64) ([]domain.Task, error)
	SubstancesByIDs(ctx context.Context, ids []int64) ([]domain.Substance, error)
	TasksBySubstances(ctx context.Context, substanceIDs []int64) ([]domain.Task, error)
	RecordsByTasks(ctx context.Context, taskIDs []int64) ([]domain.AssignmentRecord, error)
	LatestRecordsByExecutors(ctx context.Context, uids []int64) ([]domain.AssignmentRecord, error)
}

type fetchFunc func(ctx context.Context, keys []int64) (map[int64]any, error)

type cacheKey struct {
	rel Relation
	key int64
}

type entry struct {
	done chan struct{}
	val  any
	err  error
}

type Loader struct {
	mu       sync.Mutex
	cache    map[cacheKey]*entry
	fetchers map[Relation]fetchFunc
	tracer   trace.Tracer
}

func New(src Source) *Loader {
	l := &Loader{
		cache:  make(map[cacheKey]*entry),
		tracer: otel.Tracer(tracerName),
	}
	l.fetchers = map[Relation]fetchFunc{
		TaskAssignee: func(ctx context.Context, keys []int64) (map[int64]any, error) {
			items, err := src.ExecutorsByUIDs(ctx, keys)
			if err != nil {
				return nil, err
			}
			out := make(map[int64]any, len(items))
			for i := range items {
				out[items[i].UID] = &items[i]
			}
			return out, nil
		},
		ExecutorTasks: func(ctx context.Context, keys []int64) (map[int64]any, error) {
			items, err := src.TasksByAssignees(ctx, keys)
			if err != nil {
				return nil, err
			}
			grouped := make(map[int64][]domain.Task)
			for _, t := range items {
				if t.AssigneeUID != nil {
					grouped[*t.AssigneeUID] = append(grouped[*t.AssigneeUID], t)
				}
			}
			out := make(map[int64]any, len(grouped))
			for k, v := range grouped {
				out[k] = v
			}
			return out, nil
		},
		TaskSubstance: func(ctx context.Context, keys []int64) (map[int64]any, error) {
			items, err := src.SubstancesByIDs(ctx, keys)
			if err != nil {
				return nil, err
			}
			out := make(map[int64]any, len(items))
			for i := range items {
				out[items[i].ID] = &items[i]
			}
			return out, nil
		},
		SubstanceTask: func(ctx context.Context, keys []int64) (map[int64]any, error) {
			items, err := src.TasksBySubstances(ctx, keys)
			if err != nil {
				return nil, err
			}
			out := make(map[int64]any, len(items))
			for i := range items {
				out[items[i].SubstanceID] = &items[i]
			}
			return out, nil
		},
		TaskRecords: func(ctx context.Context, keys []int64) (map[int64]any, error) {
			items, err := src.RecordsByTasks(ctx, keys)
			if err != nil {
				return nil, err
			}
			grouped := make(map[int64][]domain.AssignmentRecord)
			for _, rec := range items {
				grouped[rec.TaskID] = append(grouped[rec.TaskID], rec)
			}
			out := make(map[int64]any, len(grouped))
			for k, v := range grouped {
				out[k] = v
			}
			return out, nil
		},
		ExecutorRecord: func(ctx context.Context, keys []int64) (map[int64]any, error) {
			items, err := src.LatestRecordsByExecutors(ctx, keys)
			if err != nil {
				return nil, err
			}
			out := make(map[int64]any, len(items))
			for i := range items {
				out[items[i].ExecutorUID] = &items[i]
			}
			return out, nil
		},
	}
	return l
}

// Load resolves a single key. A missing row yields a nil value, not an error.
func (l *Loader) Load(ctx context.Context, rel Relation, key int64) (any, error) {
	vals, err := l.LoadMany(ctx, rel, []int64{key})
	if err != nil {
		return nil, err
	}
	return vals[0], nil
}

// LoadMany resolves keys in order. Keys not yet cached are fetched together in a
// single call to the source. It panics when rel is not a known relation.
func (l *Loader) LoadMany(ctx context.Context, rel Relation, keys []int64) ([]any, error) {
	fetch, ok := l.fetchers[rel]
	if !ok {
		panic(fmt.Sprintf("loader: unknown relation %q", rel))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	entries := make([]*entry, len(keys))
	var missing []int64
	var owned []*entry
	l.mu.Lock()
	for i, k := range keys {
		ck := cacheKey{rel: rel, key: k}
		e, hit := l.cache[ck]
		if !hit {
			e = &entry{done: make(chan struct{})}
			l.cache[ck] = e
			missing = append(missing, k)
			owned = append(owned, e)
		}
		entries[i] = e
	}
	l.mu.Unlock()

	if len(missing) > 0 {
		vals, err := l.fetch(ctx, rel, fetch, missing)
		l.mu.Lock()
		for i, e := range owned {
			if err != nil {
				e.err = err
				delete(l.cache, cacheKey{rel: rel, key: missing[i]})
			} else {
				e.val = vals[missing[i]]
			}
		}
		l.mu.Unlock()
		for _, e := range owned {
			close(e.done)
		}
	}

	out := make([]any, len(keys))
	for i, e := range entries {
		select {
		case <-e.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		out[i] = e.val
	}
	return out, nil
}

func (l *Loader) fetch(ctx context.Context, rel Relation, fn fetchFunc, keys []int64) (map[int64]any, error) {
	ctx, span := l.tracer.Start(ctx, "loader.fetch", trace.WithAttributes(
		attribute.String("loader.relation", string(rel)),
		attribute.Int("loader.keys", len(keys)),
	))
	defer span.End()
	vals, err := fn(ctx, keys)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return vals, nil
}

func loadAs[T any](ctx context.Context, l *Loader, rel Relation, keys []int64) ([]T, error) {
	raw, err := l.LoadMany(ctx, rel, keys)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(raw))
	for i, v := range raw {
		if typed, ok := v.(T); ok {
			out[i] = typed
		}
	}
	return out, nil
}

func (l *Loader) Assignees(ctx context.Context, uids []int64) ([]*domain.Executor, error) {
	return loadAs[*domain.Executor](ctx, l, TaskAssignee, uids)
}

func (l *Loader) TasksOf(ctx context.Context, uids []int64) ([][]domain.Task, error) {
	return loadAs[[]domain.Task](ctx, l, ExecutorTasks, uids)
}

func (l *Loader) Substances(ctx context.Context, ids []int64) ([]*domain.Substance, error) {
	return loadAs[*domain.Substance](ctx, l, TaskSubstance, ids)
}

func (l *Loader) RelatedTasks(ctx context.Context, substanceIDs []int64) ([]*domain.Task, error) {
	return loadAs[*domain.Task](ctx, l, SubstanceTask, substanceIDs)
}

func (l *Loader) RecordsOf(ctx context.Context, taskIDs []int64) ([][]domain.AssignmentRecord, error) {
	return loadAs[[]domain.AssignmentRecord](ctx, l, TaskRecords, taskIDs)
}

func (l *Loader) LatestRecords(ctx context.Context, uids []int64) ([]*domain.AssignmentRecord, error) {
	return loadAs[*domain.AssignmentRecord](ctx, l, ExecutorRecord, uids)
}

type loaderKey struct{}

// NewContext scopes l to ctx for the lifetime of one request.
func NewContext(ctx context.Context, l *Loader) context.Context {
	return context.WithValue(ctx, loaderKey{}, l)
}

func FromContext(ctx context.Context) (*Loader, bool) {
	l, ok := ctx.Value(loaderKey{}).(*Loader)
	return l, ok && l != nil
}
