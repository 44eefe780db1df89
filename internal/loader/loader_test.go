package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asylum/internal/domain"
)

const (
	timeoutForTest = time.Second
	tick           = 5 * time.Millisecond
)

type fakeSource struct {
	calls     map[string]*atomic.Int64
	executors map[int64]domain.Executor
	tasks     []domain.Task
	gate      chan struct{}
	failOnce  atomic.Bool
}

func newFakeSource() *fakeSource {
	s := &fakeSource{
		calls:     map[string]*atomic.Int64{},
		executors: map[int64]domain.Executor{},
	}
	for _, name := range []string{"executors", "tasksByAssignee", "substances", "tasksBySubstance", "records", "latest"} {
		s.calls[name] = &atomic.Int64{}
	}
	return s
}

func (s *fakeSource) count(name string) int64 { return s.calls[name].Load() }

func (s *fakeSource) ExecutorsByUIDs(_ context.Context, uids []int64) ([]domain.Executor, error) {
	s.calls["executors"].Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.failOnce.CompareAndSwap(true, false) {
		return nil, errors.New("store unavailable")
	}
	var out []domain.Executor
	for _, uid := range uids {
		if e, ok := s.executors[uid]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeSource) TasksByAssignees(_ context.Context, uids []int64) ([]domain.Task, error) {
	s.calls["tasksByAssignee"].Add(1)
	want := map[int64]bool{}
	for _, uid := range uids {
		want[uid] = true
	}
	var out []domain.Task
	for _, t := range s.tasks {
		if t.AssigneeUID != nil && want[*t.AssigneeUID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeSource) SubstancesByIDs(_ context.Context, ids []int64) ([]domain.Substance, error) {
	s.calls["substances"].Add(1)
	var out []domain.Substance
	for _, id := range ids {
		out = append(out, domain.Substance{ID: id, Name: "S"})
	}
	return out, nil
}

func (s *fakeSource) TasksBySubstances(_ context.Context, ids []int64) ([]domain.Task, error) {
	s.calls["tasksBySubstance"].Add(1)
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Task
	for _, t := range s.tasks {
		if want[t.SubstanceID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeSource) RecordsByTasks(_ context.Context, ids []int64) ([]domain.AssignmentRecord, error) {
	s.calls["records"].Add(1)
	return nil, nil
}

func (s *fakeSource) LatestRecordsByExecutors(_ context.Context, uids []int64) ([]domain.AssignmentRecord, error) {
	s.calls["latest"].Add(1)
	var out []domain.AssignmentRecord
	for _, uid := range uids {
		out = append(out, domain.AssignmentRecord{ID: uid * 10, ExecutorUID: uid})
	}
	return out, nil
}

func seedTasks(s *fakeSource, n int) []int64 {
	uids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		uid := int64(i)
		s.executors[uid] = domain.Executor{UID: uid, Name: "e"}
		s.tasks = append(s.tasks, domain.Task{ID: uid, SubstanceID: uid, AssigneeUID: &uid})
		uids = append(uids, uid)
	}
	return uids
}

func TestBatchingIsIndependentOfPageSize(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 10, 1000} {
		src := newFakeSource()
		uids := seedTasks(src, n)
		l := New(src)
		ctx := context.Background()

		assignees, err := l.Assignees(ctx, uids)
		require.NoError(t, err)
		require.Len(t, assignees, n)
		for i, e := range assignees {
			require.NotNil(t, e)
			assert.Equal(t, uids[i], e.UID)
		}
		_, err = l.Substances(ctx, uids)
		require.NoError(t, err)
		_, err = l.TasksOf(ctx, uids)
		require.NoError(t, err)

		assert.EqualValues(t, 1, src.count("executors"), "n=%d", n)
		assert.EqualValues(t, 1, src.count("substances"), "n=%d", n)
		assert.EqualValues(t, 1, src.count("tasksByAssignee"), "n=%d", n)
	}
}

func TestCacheHitsDoNotRefetch(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	uids := seedTasks(src, 5)
	l := New(src)
	ctx := context.Background()

	_, err := l.Assignees(ctx, uids[:3])
	require.NoError(t, err)
	_, err = l.Assignees(ctx, uids[:3])
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.count("executors"))

	// only the two unseen keys go to the source
	got, err := l.Assignees(ctx, uids)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.EqualValues(t, 2, src.count("executors"))
}

func TestDuplicateKeysInOneCall(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	seedTasks(src, 2)
	l := New(src)
	got, err := l.Assignees(context.Background(), []int64{1, 1, 2, 1})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, int64(1), got[3].UID)
	assert.EqualValues(t, 1, src.count("executors"))
}

func TestMissingRowsYieldEmptyResults(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	l := New(src)
	ctx := context.Background()

	got, err := l.Assignees(ctx, []int64{42})
	require.NoError(t, err)
	assert.Nil(t, got[0])

	tasks, err := l.TasksOf(ctx, []int64{42})
	require.NoError(t, err)
	assert.Empty(t, tasks[0])

	v, err := l.Load(ctx, SubstanceTask, 42)
	require.NoError(t, err)
	assert.Nil(t, v)

	recs, err := l.RecordsOf(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUnknownRelationPanics(t *testing.T) {
	t.Parallel()
	l := New(newFakeSource())
	assert.Panics(t, func() {
		_, _ = l.LoadMany(context.Background(), Relation("task.owner"), []int64{1})
	})
}

func TestMutualReferencesTerminate(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	seedTasks(src, 3)
	l := New(src)
	ctx := context.Background()

	// executor -> tasks -> assignee -> tasks ... resolves from cache after the first hop
	for i := 0; i < 5; i++ {
		lists, err := l.TasksOf(ctx, []int64{1, 2, 3})
		require.NoError(t, err)
		var assigneeIDs []int64
		for _, list := range lists {
			for _, task := range list {
				assigneeIDs = append(assigneeIDs, *task.AssigneeUID)
			}
		}
		_, err = l.Assignees(ctx, assigneeIDs)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, src.count("tasksByAssignee"))
	assert.EqualValues(t, 1, src.count("executors"))
}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	seedTasks(src, 1)
	src.gate = make(chan struct{})
	l := New(src)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := l.Assignees(ctx, []int64{1})
		first <- err
	}()
	// wait until the first caller has registered its in-flight entry
	require.Eventually(t, func() bool { return src.count("executors") == 1 }, timeoutForTest, tick)

	var wg sync.WaitGroup
	results := make([]*domain.Executor, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := l.Assignees(ctx, []int64{1})
			if err == nil {
				results[i] = got[0]
			}
		}(i)
	}
	close(src.gate)
	wg.Wait()
	require.NoError(t, <-first)
	for _, r := range results {
		require.NotNil(t, r)
	}
	assert.EqualValues(t, 1, src.count("executors"))
}

func TestFailedFetchIsNotCached(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	seedTasks(src, 1)
	src.failOnce.Store(true)
	l := New(src)
	ctx := context.Background()

	_, err := l.Assignees(ctx, []int64{1})
	require.Error(t, err)
	got, err := l.Assignees(ctx, []int64{1})
	require.NoError(t, err)
	require.NotNil(t, got[0])
	assert.EqualValues(t, 2, src.count("executors"))
}

func TestLatestRecordsAndContext(t *testing.T) {
	t.Parallel()
	l := New(newFakeSource())
	ctx := NewContext(context.Background(), l)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	recs, err := got.LatestRecords(ctx, []int64{3})
	require.NoError(t, err)
	require.NotNil(t, recs[0])
	assert.Equal(t, int64(30), recs[0].ID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
