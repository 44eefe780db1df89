package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"asylum/internal/descriptor"
	"asylum/internal/domain"
	"asylum/internal/query"
)

// Request payloads

type CreateExecutorRequest struct {
	Name       string           `json:"name" minLength:"1" maxLength:"20"`
	Age        int              `json:"age" minimum:"1" maximum:"80"`
	Job        *domain.Job      `json:"job,omitempty" enum:"FRONTEND_ENGINEER,BACKEND_ENGINEER"`
	Impaired   *bool            `json:"impaired,omitempty"`
	Available  *bool            `json:"available,omitempty"`
	Region     *domain.Region   `json:"region,omitempty" enum:"CENTRAL,ABANDONED,SOUTH,NORTH,PACIFIC_OCEAN,OTHER"`
	Descriptor descriptor.Patch `json:"desc,omitempty"`
}

type UpdateExecutorRequest struct {
	Name      *string        `json:"name,omitempty"`
	Age       *int           `json:"age,omitempty"`
	Job       *domain.Job    `json:"job,omitempty" enum:"FRONTEND_ENGINEER,BACKEND_ENGINEER"`
	Impaired  *bool          `json:"impaired,omitempty"`
	Available *bool          `json:"available,omitempty"`
	Region    *domain.Region `json:"region,omitempty" enum:"CENTRAL,ABANDONED,SOUTH,NORTH,PACIFIC_OCEAN,OTHER"`
}

type CreateTaskRequest struct {
	Title               string                  `json:"taskTitle"`
	SubstanceID         int64                   `json:"substanceId"`
	Content             *string                 `json:"taskContent,omitempty"`
	Priority            *domain.TaskPriority    `json:"taskPriority,omitempty" enum:"LOW,MIDDLE,HIGH,URGENT"`
	Level               *domain.DifficultyLevel `json:"taskLevel,omitempty" enum:"ROOKIE,SKILLED,VETERAN,ELITE,LEGEND"`
	Source              *domain.TaskSource      `json:"taskSource,omitempty" enum:"FOUNDATION,GOVERNMENT,CIVILIAN,OTHER"`
	Target              *domain.TaskTarget      `json:"taskTarget,omitempty" enum:"INVESTIGATE,CONTAIN,CAPTURE,DESTROY,OTHER"`
	Reward              *int64                  `json:"taskReward,omitempty"`
	Rate                *int                    `json:"taskRate,omitempty"`
	RequireCleaner      *bool                   `json:"requireCleaner,omitempty"`
	RequireIntervention *bool                   `json:"requireIntervention,omitempty"`
	AllowAbort          *bool                   `json:"allowAbort,omitempty"`
}

type UpdateTaskRequest struct {
	Title               *string              `json:"taskTitle,omitempty"`
	Content             *string              `json:"taskContent,omitempty"`
	Priority            *domain.TaskPriority `json:"taskPriority,omitempty" enum:"LOW,MIDDLE,HIGH,URGENT"`
	Source              *domain.TaskSource   `json:"taskSource,omitempty" enum:"FOUNDATION,GOVERNMENT,CIVILIAN,OTHER"`
	Target              *domain.TaskTarget   `json:"taskTarget,omitempty" enum:"INVESTIGATE,CONTAIN,CAPTURE,DESTROY,OTHER"`
	Reward              *int64               `json:"taskReward,omitempty"`
	Rate                *int                 `json:"taskRate,omitempty"`
	RequireCleaner      *bool                `json:"requireCleaner,omitempty"`
	RequireIntervention *bool                `json:"requireIntervention,omitempty"`
	AllowAbort          *bool                `json:"allowAbort,omitempty"`
}

type AssignTaskRequest struct {
	ExecutorUID int64 `json:"uid"`
}

type TaskLevelRequest struct {
	Level domain.DifficultyLevel `json:"level" enum:"ROOKIE,SKILLED,VETERAN,ELITE,LEGEND"`
}

type CreateSubstanceRequest struct {
	Name      string                  `json:"substanceName"`
	Desc      string                  `json:"substanceDesc,omitempty"`
	Issues    string                  `json:"substanceIssues,omitempty"`
	Level     *domain.DifficultyLevel `json:"substanceLevel,omitempty" enum:"ROOKIE,SKILLED,VETERAN,ELITE,LEGEND"`
	Contained bool                    `json:"contained,omitempty"`
}

// Response payloads

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// Query parameter helpers. Optional filters arrive as strings so an absent
// value stays distinguishable from a zero value.

type PageParams struct {
	Cursor string `query:"cursor" doc:"Zero-based start position"`
	Offset string `query:"offset" doc:"Page size"`
}

func (p PageParams) pagination() (query.Pagination, huma.StatusError) {
	cursor, err := optInt("cursor", p.Cursor)
	if err != nil {
		return query.Pagination{}, err
	}
	offset, err := optInt("offset", p.Offset)
	if err != nil {
		return query.Pagination{}, err
	}
	pg, verr := query.NewPagination(cursor, offset)
	if verr != nil {
		return query.Pagination{}, handleError(verr)
	}
	return pg, nil
}

func badParam(name, raw, reason string) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("%s: %s", name, reason), map[string]any{"field": name, "value": raw})
}

func optString(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}

func optInt(name, raw string) (*int, huma.StatusError) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badParam(name, raw, "must be an integer")
	}
	return &v, nil
}

func optInt64(name, raw string) (*int64, huma.StatusError) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, badParam(name, raw, "must be an integer")
	}
	return &v, nil
}

func optBool(name, raw string) (*bool, huma.StatusError) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badParam(name, raw, "must be true or false")
	}
	return &v, nil
}

func optEnum[T ~string](name, raw string, allowed []T) (*T, huma.StatusError) {
	if raw == "" {
		return nil, nil
	}
	for _, a := range allowed {
		if string(a) == raw {
			v := a
			return &v, nil
		}
	}
	return nil, badParam(name, raw, "unknown value")
}

// includes parses a comma separated include list.
func includes(raw string) map[string]bool {
	out := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out[p] = true
		}
	}
	return out
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}
