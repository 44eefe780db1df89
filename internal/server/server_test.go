package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asylum/internal/db"
	"asylum/internal/engine"
	"asylum/internal/logging"
	"asylum/internal/migrate"
	"asylum/internal/query"
	asylumsdk "asylum/sdk/go"
)

var startedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) SDK() *asylumsdk.Client {
	c := asylumsdk.New(s.URL)
	c.HTTPClient = s.client
	return c
}

func newTestServer(t *testing.T, mutate ...func(*Config)) (*testServer, func()) {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn, dialect))
	e := engine.New(conn, dialect)
	e.Logger = logging.Discard()
	cfg := Config{
		Engine:    e,
		Query:     query.New(e.Repo),
		BasePath:  "/v1",
		Logger:    logging.Discard(),
		StartedAt: startedAt,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	handler, err := New(cfg)
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &body), string(data))
	return body.Error.Code
}

func TestHealthReportsStartTime(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	h, err := srv.SDK().Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "2024-03-01T12:00:00Z", h.StartedAt)
}

func TestAssignmentLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()

	alice, err := c.CreateExecutor(ctx, "Alice", 30, nil)
	require.NoError(t, err)
	require.Equal(t, asylumsdk.Success, alice.Indicator, alice.Message)
	bob, err := c.CreateExecutor(ctx, "Bob", 41, map[string]any{"job": "BACKEND_ENGINEER"})
	require.NoError(t, err)
	require.True(t, bob.Success)
	assert.Equal(t, "BACKEND_ENGINEER", bob.Payload[0].Job)

	s1, err := c.CreateSubstance(ctx, "S-1", map[string]any{"substanceLevel": "ELITE"})
	require.NoError(t, err)
	require.True(t, s1.Success, s1.Message)

	task, err := c.CreateTask(ctx, "T", s1.Payload[0].ID, nil)
	require.NoError(t, err)
	require.True(t, task.Success, task.Message)
	taskID := task.Payload[0].ID
	assert.Equal(t, "Task content pending", task.Payload[0].Content)
	assert.EqualValues(t, 1000, task.Payload[0].Reward)

	assigned, err := c.AssignTask(ctx, taskID, alice.Payload[0].UID)
	require.NoError(t, err)
	require.Equal(t, asylumsdk.Success, assigned.Indicator, assigned.Message)

	got, err := c.GetTask(ctx, taskID, "assignee", "substance", "records")
	require.NoError(t, err)
	require.True(t, got.Success)
	assert.Equal(t, "ASSIGNED", got.Payload[0].State)
	require.NotNil(t, got.Payload[0].Assignee)
	assert.Equal(t, "Alice", got.Payload[0].Assignee.Name)
	require.NotNil(t, got.Payload[0].Substance)
	assert.Equal(t, "S-1", got.Payload[0].Substance.Name)
	require.Len(t, got.Payload[0].Records, 1)
	assert.Equal(t, "ASSIGNED", got.Payload[0].Records[0].Kind)

	ex, err := c.GetExecutor(ctx, alice.Payload[0].UID, "tasks", "record")
	require.NoError(t, err)
	require.True(t, ex.Success)
	require.Len(t, ex.Payload[0].Tasks, 1)
	assert.Equal(t, taskID, ex.Payload[0].Tasks[0].ID)
	require.NotNil(t, ex.Payload[0].Record)
	assert.Equal(t, taskID, ex.Payload[0].Record.TaskID)

	again, err := c.AssignTask(ctx, taskID, bob.Payload[0].UID)
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, asylumsdk.Existed, again.Indicator)
	holder, ok := again.First()
	require.True(t, ok, "conflicting task is returned in the payload")
	require.NotNil(t, holder.AssigneeUID)
	assert.Equal(t, alice.Payload[0].UID, *holder.AssigneeUID)

	blocked, err := c.DeleteTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, asylumsdk.MutationNotAllowed, blocked.Indicator)

	released, err := c.UnassignTask(ctx, taskID)
	require.NoError(t, err)
	require.True(t, released.Success, released.Message)
	assert.Nil(t, released.Payload[0].AssigneeUID)

	deleted, err := c.DeleteTask(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, deleted.Success)

	gone, err := c.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, asylumsdk.NotFound, gone.Indicator)
	assert.Empty(t, gone.Payload)

	res, data := doJSON(t, srv.Client(), http.MethodGet, fmt.Sprintf("%s/v1/tasks/%d", srv.URL, taskID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `[]`, string(raw["payload"]))
	assert.JSONEq(t, `"NOT_FOUND"`, string(raw["indicator"]))
}

func TestSubstanceExclusivityOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()

	s, err := c.CreateSubstance(ctx, "S-2", nil)
	require.NoError(t, err)
	first, err := c.CreateTask(ctx, "first", s.Payload[0].ID, nil)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := c.CreateTask(ctx, "second", s.Payload[0].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, asylumsdk.Existed, second.Indicator)
	require.Len(t, second.Payload, 1)
	assert.Equal(t, "first", second.Payload[0].Title)

	related, err := c.GetSubstance(ctx, s.Payload[0].ID, "relatedTask")
	require.NoError(t, err)
	require.NotNil(t, related.Payload[0].RelatedTask)
	assert.Equal(t, "first", related.Payload[0].RelatedTask.Title)

	missing, err := c.CreateTask(ctx, "orphan", 9999, nil)
	require.NoError(t, err)
	assert.Equal(t, asylumsdk.NotFound, missing.Indicator)
}

func TestValidationIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/substances", map[string]any{"substanceName": "S"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var sub struct {
		Payload []struct {
			ID int64 `json:"substanceId"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &sub))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"taskTitle":   strings.Repeat("x", 61),
		"substanceId": sub.Payload[0].ID,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "bad_request", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/executors", map[string]any{"name": "Old", "age": 200}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/executors?cursor=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/executors?impaired=maybe", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks?taskPriority=SOMEDAY", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestPaginationBoundariesOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()

	for _, name := range []string{"A", "B", "C"} {
		env, err := c.CreateExecutor(ctx, name, 25, nil)
		require.NoError(t, err)
		require.True(t, env.Success, env.Message)
	}
	intp := func(v int) *int { return &v }

	page, err := c.ListExecutors(ctx, asylumsdk.ListOptions{Cursor: intp(1), Offset: intp(1)})
	require.NoError(t, err)
	require.True(t, page.Success)
	require.Len(t, page.Payload, 1)
	assert.Equal(t, "B", page.Payload[0].Name)

	empty, err := c.ListExecutors(ctx, asylumsdk.ListOptions{Offset: intp(0)})
	require.NoError(t, err)
	assert.True(t, empty.Success)
	assert.Empty(t, empty.Payload)

	past, err := c.ListExecutors(ctx, asylumsdk.ListOptions{Cursor: intp(10)})
	require.NoError(t, err)
	assert.True(t, past.Success)
	assert.Empty(t, past.Payload)

	filtered, err := c.ListExecutors(ctx, asylumsdk.ListOptions{Filters: map[string]string{"name": "C"}})
	require.NoError(t, err)
	require.Len(t, filtered.Payload, 1)
}

func TestDescriptorAndLevelRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()

	a, err := c.CreateExecutor(ctx, "Vet", 50, nil)
	require.NoError(t, err)
	_, err = c.CreateExecutor(ctx, "Rook", 20, nil)
	require.NoError(t, err)

	veteran := "VETERAN"
	rate := 70
	merged, err := c.UpdateExecutorDescriptor(ctx, a.Payload[0].UID, asylumsdk.DescriptorPatch{Level: &veteran, SuccessRate: &rate})
	require.NoError(t, err)
	require.True(t, merged.Success, merged.Message)
	assert.JSONEq(t, `{"level":"VETERAN","successRate":70,"satisfaction":0}`, merged.Payload[0].Desc)

	byDesc, err := c.ExecutorsByDescriptor(ctx, asylumsdk.ListOptions{Filters: map[string]string{"level": "VETERAN"}})
	require.NoError(t, err)
	require.Len(t, byDesc.Payload, 1)
	assert.Equal(t, "Vet", byDesc.Payload[0].Name)

	s, err := c.CreateSubstance(ctx, "S-3", nil)
	require.NoError(t, err)
	task, err := c.CreateTask(ctx, "vet work", s.Payload[0].ID, nil)
	require.NoError(t, err)
	leveled, err := c.SetTaskLevel(ctx, task.Payload[0].ID, "VETERAN")
	require.NoError(t, err)
	require.True(t, leveled.Success)

	lv, err := c.ByLevel(ctx, "VETERAN", asylumsdk.ListOptions{})
	require.NoError(t, err)
	require.True(t, lv.Success)
	require.Len(t, lv.Payload[0].Executors, 1)
	require.Len(t, lv.Payload[0].Tasks, 1)
	assert.Equal(t, "vet work", lv.Payload[0].Tasks[0].Title)

	tasks, err := c.ExecutorTasks(ctx, 424242, asylumsdk.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, asylumsdk.NotFound, tasks.Indicator)
}

func TestTaskStateMutationsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()

	s, err := c.CreateSubstance(ctx, "S-4", nil)
	require.NoError(t, err)
	task, err := c.CreateTask(ctx, "mutable", s.Payload[0].ID, nil)
	require.NoError(t, err)
	id := task.Payload[0].ID

	toggled, err := c.ToggleTask(ctx, id)
	require.NoError(t, err)
	assert.True(t, toggled.Payload[0].Accomplished)

	frozen, err := c.FreezeTask(ctx, id)
	require.NoError(t, err)
	assert.False(t, frozen.Payload[0].Available)

	updated, err := c.UpdateTask(ctx, id, map[string]any{"taskReward": 5})
	require.NoError(t, err)
	require.True(t, updated.Success, updated.Message)
	assert.EqualValues(t, 5, updated.Payload[0].Reward)
	assert.False(t, updated.Payload[0].Available)

	// Availability is not an info field; a freeze cannot be undone here.
	_, err = c.UpdateTask(ctx, id, map[string]any{"taskAvailable": true})
	var apiErr *asylumsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	unassign, err := c.UnassignTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, asylumsdk.MutationNotAllowed, unassign.Indicator)
}

func TestDeleteExecutorDetachesTasksOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()

	ex, err := c.CreateExecutor(ctx, "Leaving", 33, nil)
	require.NoError(t, err)
	var ids []int64
	for _, name := range []string{"S-5", "S-6"} {
		s, err := c.CreateSubstance(ctx, name, nil)
		require.NoError(t, err)
		task, err := c.CreateTask(ctx, "task "+name, s.Payload[0].ID, nil)
		require.NoError(t, err)
		_, err = c.AssignTask(ctx, task.Payload[0].ID, ex.Payload[0].UID)
		require.NoError(t, err)
		ids = append(ids, task.Payload[0].ID)
	}

	deleted, err := c.DeleteExecutor(ctx, ex.Payload[0].UID)
	require.NoError(t, err)
	require.True(t, deleted.Success, deleted.Message)

	for _, id := range ids {
		got, err := c.GetTask(ctx, id)
		require.NoError(t, err)
		require.True(t, got.Success)
		assert.Nil(t, got.Payload[0].AssigneeUID)
		assert.Equal(t, "UNASSIGNED", got.Payload[0].State)
	}
}

func TestActorHeaderRecordedInEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()
	c.ActorID = "ops"

	_, err := c.CreateExecutor(ctx, "Tracked", 30, nil)
	require.NoError(t, err)

	page, err := c.EventsPage(ctx, 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	assert.Equal(t, "executor.create", page.Items[0].Type)
	assert.Equal(t, "ops", page.Items[0].ActorID)
	assert.Equal(t, "Tracked", page.Items[0].Payload["name"])
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"
	srv, cleanup := newTestServer(t, func(cfg *Config) {
		cfg.Auth = AuthConfig{JWTSecret: secret}
	})
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/executors", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, data))

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/executors", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "warden",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	c := srv.SDK()
	c.BearerToken = token
	env, err := c.CreateExecutor(context.Background(), "Guarded", 30, nil)
	require.NoError(t, err)
	require.True(t, env.Success)

	page, err := c.EventsPage(context.Background(), 1, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "warden", page.Items[0].ActorID)
}

func TestCORSPreflight(t *testing.T) {
	srv, cleanup := newTestServer(t, func(cfg *Config) {
		cfg.CORSOrigins = []string{"https://console.example"}
	})
	defer cleanup()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/executors", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://console.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "https://console.example", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEchoed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, map[string]string{"X-Request-Id": "req-1"})
	assert.Equal(t, "req-1", res.Header.Get("X-Request-Id"))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v1/tasks/{id}/assign")
	assert.Contains(t, paths, "/v1/executors/by-descriptor")
}
