package asylumsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal asylum HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Indicator values mirrored from the server envelope.
const (
	Success            = "SUCCESS"
	NotFound           = "NOT_FOUND"
	Existed            = "EXISTED"
	MutationNotAllowed = "MUTATION_NOT_ALLOWED"
	Error              = "ERROR"
)

// Envelope is the uniform result of every operation. Payload is always a
// list; on EXISTED it holds the conflicting entity when the server knows it.
type Envelope[T any] struct {
	Success   bool   `json:"success"`
	Indicator string `json:"indicator"`
	Message   string `json:"message,omitempty"`
	Payload   []T    `json:"payload"`
}

// First returns the first payload entity, if any.
func (e Envelope[T]) First() (T, bool) {
	if len(e.Payload) == 0 {
		var zero T
		return zero, false
	}
	return e.Payload[0], true
}

// Executor represents the API executor model.
type Executor struct {
	UID            int64  `json:"uid"`
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Job            string `json:"job"`
	Impaired       bool   `json:"impaired"`
	Available      bool   `json:"available"`
	Region         string `json:"region"`
	Desc           string `json:"desc"`
	JoinDate       string `json:"joinDate"`
	LastUpdateDate string `json:"lastUpdateDate"`

	ProjectedAge int               `json:"projectedAge,omitempty"`
	Descriptor   *Descriptor       `json:"descriptor,omitempty"`
	Tasks        []Task            `json:"tasks,omitempty"`
	Record       *AssignmentRecord `json:"record,omitempty"`
}

type Descriptor struct {
	Level        string `json:"level"`
	SuccessRate  int    `json:"successRate"`
	Satisfaction int    `json:"satisfaction"`
}

// DescriptorPatch sends only the fields that are set.
type DescriptorPatch struct {
	Level        *string `json:"level,omitempty"`
	SuccessRate  *int    `json:"successRate,omitempty"`
	Satisfaction *int    `json:"satisfaction,omitempty"`
}

// Task represents the API task model.
type Task struct {
	ID                  int64  `json:"taskId"`
	Title               string `json:"taskTitle"`
	Content             string `json:"taskContent"`
	Priority            string `json:"taskPriority"`
	Level               string `json:"taskLevel"`
	Source              string `json:"taskSource"`
	Target              string `json:"taskTarget"`
	Reward              int64  `json:"taskReward"`
	Rate                *int   `json:"taskRate"`
	RequireCleaner      bool   `json:"requireCleaner"`
	RequireIntervention bool   `json:"requireIntervention"`
	AllowAbort          bool   `json:"allowAbort"`
	Accomplished        bool   `json:"taskAccomplished"`
	Available           bool   `json:"taskAvailable"`
	PublishDate         string `json:"publishDate"`
	LastUpdateDate      string `json:"lastUpdateDate"`
	SubstanceID         int64  `json:"substanceId"`
	AssigneeUID         *int64 `json:"assigneeUid"`

	State     string             `json:"state,omitempty"`
	Assignee  *Executor          `json:"assignee,omitempty"`
	Substance *Substance         `json:"substance,omitempty"`
	Records   []AssignmentRecord `json:"records,omitempty"`
}

// Substance represents an externally discovered substance.
type Substance struct {
	ID             int64  `json:"substanceId"`
	Name           string `json:"substanceName"`
	Desc           string `json:"substanceDesc"`
	Issues         string `json:"substanceIssues"`
	Level          string `json:"substanceLevel"`
	Contained      bool   `json:"contained"`
	AppearDate     string `json:"appearDate"`
	LastActiveDate string `json:"lastActiveDate"`

	RelatedTask *Task `json:"relatedTask,omitempty"`
}

type AssignmentRecord struct {
	ID          int64  `json:"recordId"`
	TaskID      int64  `json:"taskId"`
	ExecutorUID int64  `json:"executorUid"`
	Kind        string `json:"kind"`
	Ref         string `json:"ref"`
	Content     string `json:"content_json"`
	CreatedAt   string `json:"createdAt"`
}

// LevelView groups executors and tasks sharing a level.
type LevelView struct {
	Executors []Executor `json:"executors"`
	Tasks     []Task     `json:"tasks"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type Health struct {
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListOptions carries pagination, include and filter parameters.
type ListOptions struct {
	Cursor  *int
	Offset  *int
	Include []string
	Filters map[string]string
}

func (o ListOptions) query() url.Values {
	v := url.Values{}
	if o.Cursor != nil {
		v.Set("cursor", strconv.Itoa(*o.Cursor))
	}
	if o.Offset != nil {
		v.Set("offset", strconv.Itoa(*o.Offset))
	}
	if len(o.Include) > 0 {
		v.Set("include", strings.Join(o.Include, ","))
	}
	for k, val := range o.Filters {
		v.Set(k, val)
	}
	return v
}

// Health reports liveness and process start time.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

// CreateExecutor registers an executor. Optional fields go in extra using
// the API field names.
func (c *Client) CreateExecutor(ctx context.Context, name string, age int, extra map[string]any) (Envelope[Executor], error) {
	body := map[string]any{"name": name, "age": age}
	for k, v := range extra {
		body[k] = v
	}
	return call[Executor](ctx, c, http.MethodPost, "executors", body)
}

func (c *Client) GetExecutor(ctx context.Context, uid int64, include ...string) (Envelope[Executor], error) {
	return call[Executor](ctx, c, http.MethodGet, withQuery(fmt.Sprintf("executors/%d", uid), ListOptions{Include: include}), nil)
}

func (c *Client) ListExecutors(ctx context.Context, opts ListOptions) (Envelope[Executor], error) {
	return call[Executor](ctx, c, http.MethodGet, withQuery("executors", opts), nil)
}

func (c *Client) ExecutorTasks(ctx context.Context, uid int64, opts ListOptions) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodGet, withQuery(fmt.Sprintf("executors/%d/tasks", uid), opts), nil)
}

func (c *Client) ExecutorsByDescriptor(ctx context.Context, opts ListOptions) (Envelope[Executor], error) {
	return call[Executor](ctx, c, http.MethodGet, withQuery("executors/by-descriptor", opts), nil)
}

func (c *Client) UpdateExecutor(ctx context.Context, uid int64, fields map[string]any) (Envelope[Executor], error) {
	return call[Executor](ctx, c, http.MethodPatch, fmt.Sprintf("executors/%d", uid), fields)
}

func (c *Client) UpdateExecutorDescriptor(ctx context.Context, uid int64, patch DescriptorPatch) (Envelope[Executor], error) {
	return call[Executor](ctx, c, http.MethodPatch, fmt.Sprintf("executors/%d/descriptor", uid), patch)
}

func (c *Client) DeleteExecutor(ctx context.Context, uid int64) (Envelope[Executor], error) {
	return call[Executor](ctx, c, http.MethodDelete, fmt.Sprintf("executors/%d", uid), nil)
}

// CreateSubstance records a discovered substance.
func (c *Client) CreateSubstance(ctx context.Context, name string, extra map[string]any) (Envelope[Substance], error) {
	body := map[string]any{"substanceName": name}
	for k, v := range extra {
		body[k] = v
	}
	return call[Substance](ctx, c, http.MethodPost, "substances", body)
}

func (c *Client) GetSubstance(ctx context.Context, id int64, include ...string) (Envelope[Substance], error) {
	return call[Substance](ctx, c, http.MethodGet, withQuery(fmt.Sprintf("substances/%d", id), ListOptions{Include: include}), nil)
}

func (c *Client) ListSubstances(ctx context.Context, opts ListOptions) (Envelope[Substance], error) {
	return call[Substance](ctx, c, http.MethodGet, withQuery("substances", opts), nil)
}

// CreateTask creates a task bound to a substance.
func (c *Client) CreateTask(ctx context.Context, title string, substanceID int64, extra map[string]any) (Envelope[Task], error) {
	body := map[string]any{"taskTitle": title, "substanceId": substanceID}
	for k, v := range extra {
		body[k] = v
	}
	return call[Task](ctx, c, http.MethodPost, "tasks", body)
}

func (c *Client) GetTask(ctx context.Context, id int64, include ...string) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodGet, withQuery(fmt.Sprintf("tasks/%d", id), ListOptions{Include: include}), nil)
}

func (c *Client) ListTasks(ctx context.Context, opts ListOptions) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodGet, withQuery("tasks", opts), nil)
}

func (c *Client) UpdateTask(ctx context.Context, id int64, fields map[string]any) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodPatch, fmt.Sprintf("tasks/%d", id), fields)
}

func (c *Client) AssignTask(ctx context.Context, taskID, uid int64) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodPost, fmt.Sprintf("tasks/%d/assign", taskID), map[string]any{"uid": uid})
}

func (c *Client) UnassignTask(ctx context.Context, taskID int64) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodPost, fmt.Sprintf("tasks/%d/unassign", taskID), nil)
}

func (c *Client) ToggleTask(ctx context.Context, taskID int64) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodPost, fmt.Sprintf("tasks/%d/toggle", taskID), nil)
}

func (c *Client) SetTaskLevel(ctx context.Context, taskID int64, level string) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodPost, fmt.Sprintf("tasks/%d/level", taskID), map[string]any{"level": level})
}

func (c *Client) FreezeTask(ctx context.Context, taskID int64) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodPost, fmt.Sprintf("tasks/%d/freeze", taskID), nil)
}

func (c *Client) DeleteTask(ctx context.Context, taskID int64) (Envelope[Task], error) {
	return call[Task](ctx, c, http.MethodDelete, fmt.Sprintf("tasks/%d", taskID), nil)
}

// ByLevel lists executors and tasks at level; an empty level lists all.
func (c *Client) ByLevel(ctx context.Context, level string, opts ListOptions) (Envelope[LevelView], error) {
	if level != "" {
		if opts.Filters == nil {
			opts.Filters = map[string]string{}
		}
		opts.Filters["level"] = level
	}
	return call[LevelView](ctx, c, http.MethodGet, withQuery("levels", opts), nil)
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(v) > 0 {
		endpoint += "?" + v.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func call[T any](ctx context.Context, c *Client, method, endpoint string, body any) (Envelope[T], error) {
	var env Envelope[T]
	err := c.do(ctx, method, endpoint, body, &env)
	return env, err
}

func withQuery(endpoint string, opts ListOptions) string {
	if q := opts.query(); len(q) > 0 {
		return endpoint + "?" + q.Encode()
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
