package repo_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/sqlite"

	"asylum/internal/db"
	"asylum/internal/domain"
	"asylum/internal/engine"
	"asylum/internal/migrate"
	"asylum/internal/repo"
)

type fixture struct {
	Repo   repo.Repo
	Engine engine.Engine
	Ctx    context.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	eng := engine.New(conn, dialect)
	eng.Now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	return fixture{Repo: eng.Repo, Engine: eng, Ctx: context.Background()}
}

func (f fixture) seedTasks(t *testing.T, n int) []domain.Task {
	t.Helper()
	var tasks []domain.Task
	for i := 0; i < n; i++ {
		s, err := f.Engine.CreateSubstance(f.Ctx, engine.SubstanceCreateOptions{Name: fmt.Sprintf("sub-%d", i)})
		require.NoError(t, err)
		task, err := f.Engine.CreateTask(f.Ctx, engine.TaskCreateOptions{Title: fmt.Sprintf("task-%d", i), SubstanceID: s.ID})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	return tasks
}

func (f fixture) withTx(t *testing.T, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := f.Repo.DB.BeginTx(f.Ctx, nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TestListTasksPaging(t *testing.T) {
	f := newFixture(t)
	f.seedTasks(t, 5)

	page, err := f.Repo.ListTasks(f.Ctx, repo.TaskFilters{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "task-1", page[0].Title)
	assert.Equal(t, "task-2", page[1].Title)

	page, err = f.Repo.ListTasks(f.Ctx, repo.TaskFilters{Limit: 10, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, err = f.Repo.ListTasks(f.Ctx, repo.TaskFilters{Limit: 10, Offset: 9})
	require.NoError(t, err)
	assert.Empty(t, page)

	all, err := f.Repo.ListTasks(f.Ctx, repo.TaskFilters{Offset: 3})
	require.NoError(t, err)
	assert.Len(t, all, 2, "zero limit with offset returns the tail")
}

func TestListFiltersCombine(t *testing.T) {
	f := newFixture(t)
	tasks := f.seedTasks(t, 3)
	ex, err := f.Engine.CreateExecutor(f.Ctx, engine.ExecutorCreateOptions{Name: "ada", Age: 40})
	require.NoError(t, err)
	_, err = f.Engine.AssignTask(f.Ctx, tasks[1].ID, ex.UID)
	require.NoError(t, err)
	high := domain.PriorityHigh
	_, err = f.Engine.UpdateTaskInfo(f.Ctx, tasks[2].ID, engine.TaskInfoUpdate{Priority: &high})
	require.NoError(t, err)

	assigned, err := f.Repo.ListTasks(f.Ctx, repo.TaskFilters{AssigneeUID: &ex.UID})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, tasks[1].ID, assigned[0].ID)

	available := true
	got, err := f.Repo.ListTasks(f.Ctx, repo.TaskFilters{Priority: &high, Available: &available})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tasks[2].ID, got[0].ID)

	name := "ada"
	executors, err := f.Repo.ListExecutors(f.Ctx, repo.ExecutorFilters{Name: &name})
	require.NoError(t, err)
	require.Len(t, executors, 1)
	other := "bob"
	executors, err = f.Repo.ListExecutors(f.Ctx, repo.ExecutorFilters{Name: &other})
	require.NoError(t, err)
	assert.Empty(t, executors)

	contained := true
	subs, err := f.Repo.ListSubstances(f.Ctx, repo.SubstanceFilters{Contained: &contained})
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestBulkFetchesSkipMissingKeys(t *testing.T) {
	f := newFixture(t)
	tasks := f.seedTasks(t, 2)

	subs, err := f.Repo.SubstancesByIDs(f.Ctx, []int64{tasks[1].SubstanceID, 999, tasks[0].SubstanceID})
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	related, err := f.Repo.TasksBySubstances(f.Ctx, []int64{tasks[0].SubstanceID})
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, tasks[0].ID, related[0].ID)

	none, err := f.Repo.ExecutorsByUIDs(f.Ctx, []int64{42})
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := f.Repo.TasksByAssignees(f.Ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetMissingIsErrNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.Repo.GetExecutor(f.Ctx, 7)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
	_, err = f.Repo.GetTask(f.Ctx, 7)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
	_, err = f.Repo.GetSubstance(f.Ctx, 7)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestUniqueViolationDetected(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.withTx(t, func(tx *sql.Tx) error {
		_, err := f.Repo.InsertExecutorTx(f.Ctx, tx, domain.NewExecutor("twin", 30, now))
		return err
	}))
	err := f.withTx(t, func(tx *sql.Tx) error {
		_, err := f.Repo.InsertExecutorTx(f.Ctx, tx, domain.NewExecutor("twin", 31, now))
		return err
	})
	require.Error(t, err)
	assert.True(t, repo.IsUniqueViolation(err))
	assert.False(t, repo.IsUniqueViolation(errors.New("boom")))
	assert.False(t, repo.IsUniqueViolation(nil))
}

func TestConditionalAssignIsExclusive(t *testing.T) {
	f := newFixture(t)
	task := f.seedTasks(t, 1)[0]
	a, err := f.Engine.CreateExecutor(f.Ctx, engine.ExecutorCreateOptions{Name: "a", Age: 20})
	require.NoError(t, err)
	b, err := f.Engine.CreateExecutor(f.Ctx, engine.ExecutorCreateOptions{Name: "b", Age: 20})
	require.NoError(t, err)

	var first, second bool
	require.NoError(t, f.withTx(t, func(tx *sql.Tx) error {
		var err error
		first, err = f.Repo.AssignTaskTx(f.Ctx, tx, task.ID, a.UID, "2024-02-01T00:00:00Z")
		return err
	}))
	require.NoError(t, f.withTx(t, func(tx *sql.Tx) error {
		var err error
		second, err = f.Repo.AssignTaskTx(f.Ctx, tx, task.ID, b.UID, "2024-02-01T00:00:00Z")
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)

	got, err := f.Repo.GetTask(f.Ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssigneeUID)
	assert.Equal(t, a.UID, *got.AssigneeUID)
}

func TestLatestRecordsByExecutors(t *testing.T) {
	f := newFixture(t)
	tasks := f.seedTasks(t, 2)
	ex, err := f.Engine.CreateExecutor(f.Ctx, engine.ExecutorCreateOptions{Name: "rec", Age: 33})
	require.NoError(t, err)
	idle, err := f.Engine.CreateExecutor(f.Ctx, engine.ExecutorCreateOptions{Name: "idle", Age: 33})
	require.NoError(t, err)

	_, err = f.Engine.AssignTask(f.Ctx, tasks[0].ID, ex.UID)
	require.NoError(t, err)
	_, err = f.Engine.UnassignTask(f.Ctx, tasks[0].ID)
	require.NoError(t, err)
	_, err = f.Engine.AssignTask(f.Ctx, tasks[1].ID, ex.UID)
	require.NoError(t, err)

	latest, err := f.Repo.LatestRecordsByExecutors(f.Ctx, []int64{ex.UID, idle.UID})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, tasks[1].ID, latest[0].TaskID)
	assert.Equal(t, domain.RecordAssigned, latest[0].Kind)

	history, err := f.Repo.RecordsByTasks(f.Ctx, []int64{tasks[0].ID})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RecordAssigned, history[0].Kind)
	assert.Equal(t, domain.RecordUnassigned, history[1].Kind)
}

func TestListEventsCursor(t *testing.T) {
	f := newFixture(t)
	f.seedTasks(t, 2)

	all, err := f.Repo.ListEvents(f.Ctx, 0, 0, "", "", "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Greater(t, all[0].ID, all[1].ID, "newest first")

	page, err := f.Repo.ListEvents(f.Ctx, 2, all[1].ID, "", "", "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[2].ID, page[0].ID)

	tasks, err := f.Repo.ListEvents(f.Ctx, 10, 0, "task.create", "task", "")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Equal(t, "system", tasks[0].ActorID)
}

// countingConn counts every statement the store actually receives.
type countingConn struct {
	driver.Conn
	queries *atomic.Int32
}

func (c countingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.queries.Add(1)
	return c.Conn.(driver.QueryerContext).QueryContext(ctx, query, args)
}

func (c countingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return c.Conn.(driver.ExecerContext).ExecContext(ctx, query, args)
}

func (c countingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return c.Conn.(driver.ConnBeginTx).BeginTx(ctx, opts)
}

type countingDriver struct {
	queries *atomic.Int32
}

func (d countingDriver) Open(name string) (driver.Conn, error) {
	conn, err := (&sqlite.Driver{}).Open(name)
	if err != nil {
		return nil, err
	}
	return countingConn{Conn: conn, queries: d.queries}, nil
}

var (
	storeQueries     atomic.Int32
	registerCounting sync.Once
)

func openCounting(t *testing.T) repo.Repo {
	t.Helper()
	registerCounting.Do(func() { sql.Register("sqlite-counting", countingDriver{queries: &storeQueries}) })
	conn, err := sql.Open("sqlite-counting", "file:"+filepath.Join(t.TempDir(), "count.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetMaxOpenConns(1)
	dialect := db.Dialect{Driver: db.DriverSQLite}
	require.NoError(t, migrate.Migrate(conn, dialect))
	return repo.Repo{DB: conn, Dialect: dialect}
}

func TestBulkFetchIsOneStoreQuery(t *testing.T) {
	r := openCounting(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	var uids []int64
	for i := 0; i < 1000; i++ {
		uid, err := r.InsertExecutorTx(ctx, tx, domain.NewExecutor(fmt.Sprintf("ex-%d", i), 30, now))
		require.NoError(t, err)
		uids = append(uids, uid)
	}
	require.NoError(t, tx.Commit())

	fetches := map[string]func(keys []int64) (int, error){
		"executors": func(keys []int64) (int, error) {
			items, err := r.ExecutorsByUIDs(ctx, keys)
			return len(items), err
		},
		"tasks": func(keys []int64) (int, error) {
			items, err := r.TasksByAssignees(ctx, keys)
			return len(items), err
		},
		"records": func(keys []int64) (int, error) {
			items, err := r.LatestRecordsByExecutors(ctx, keys)
			return len(items), err
		},
	}
	for _, n := range []int{1, 10, 1000} {
		for name, fetch := range fetches {
			storeQueries.Store(0)
			got, err := fetch(uids[:n])
			require.NoError(t, err)
			assert.Equal(t, int32(1), storeQueries.Load(), "%s with %d keys", name, n)
			if name == "executors" {
				assert.Equal(t, n, got)
			}
		}
	}

	storeQueries.Store(0)
	items, err := r.ExecutorsByUIDs(ctx, []int64{uids[0], uids[0], uids[1]})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(1), storeQueries.Load())

	storeQueries.Store(0)
	none, err := r.ExecutorsByUIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, int32(0), storeQueries.Load())
}
