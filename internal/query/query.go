// Package query serves paginated, filtered reads with optional relation
// includes resolved through the per-request loader.
package query

import (
	"context"

	"asylum/internal/domain"
	"asylum/internal/loader"
	"asylum/internal/repo"
)

const (
	DefaultCursor   = 0
	DefaultPageSize = 20
)

// Pagination: Cursor is the zero-based start position, Offset the page size.
type Pagination struct {
	Cursor int `json:"cursor"`
	Offset int `json:"offset"`
}

func DefaultPagination() Pagination {
	return Pagination{Cursor: DefaultCursor, Offset: DefaultPageSize}
}

// NewPagination applies defaults for absent values and rejects negatives.
func NewPagination(cursor, offset *int) (Pagination, error) {
	p := DefaultPagination()
	if cursor != nil {
		if *cursor < 0 {
			return p, &domain.ValidationError{Field: "cursor", Reason: "must not be negative"}
		}
		p.Cursor = *cursor
	}
	if offset != nil {
		if *offset < 0 {
			return p, &domain.ValidationError{Field: "offset", Reason: "must not be negative"}
		}
		p.Offset = *offset
	}
	return p, nil
}

type Service struct {
	Repo   repo.Repo
	Source loader.Source
	// MaxPageSize caps Offset when positive.
	MaxPageSize int
}

func New(r repo.Repo) Service {
	return Service{Repo: r, Source: r}
}

func (s Service) loaderFor(ctx context.Context) *loader.Loader {
	if l, ok := loader.FromContext(ctx); ok {
		return l
	}
	src := s.Source
	if src == nil {
		src = s.Repo
	}
	return loader.New(src)
}

func (s Service) limit(p Pagination) int {
	if s.MaxPageSize > 0 && p.Offset > s.MaxPageSize {
		return s.MaxPageSize
	}
	return p.Offset
}

func pageSlice[T any](items []T, start, size int) []T {
	if size <= 0 || start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

type ExecutorIncludes struct {
	Tasks  bool
	Record bool
	// Years feeds the projected age field; nil reports the current age.
	Years *int
}

type TaskIncludes struct {
	Assignee  bool
	Substance bool
	Records   bool
}

type SubstanceIncludes struct {
	RelatedTask bool
}

type ExecutorView struct {
	domain.Executor
	ProjectedAge int                      `json:"projectedAge"`
	Descriptor   *domain.Descriptor       `json:"descriptor,omitempty"`
	Tasks        []domain.Task            `json:"tasks,omitempty"`
	Record       *domain.AssignmentRecord `json:"record,omitempty"`
}

type TaskView struct {
	domain.Task
	State     domain.TaskState          `json:"state" enum:"ASSIGNED,UNASSIGNED"`
	Assignee  *domain.Executor          `json:"assignee,omitempty"`
	Substance *domain.Substance         `json:"substance,omitempty"`
	Records   []domain.AssignmentRecord `json:"records,omitempty"`
}

type SubstanceView struct {
	domain.Substance
	RelatedTask *domain.Task `json:"relatedTask,omitempty"`
}

// LevelView groups executors and tasks sharing a difficulty level.
type LevelView struct {
	Executors []ExecutorView `json:"executors"`
	Tasks     []TaskView     `json:"tasks"`
}

// DescriptorFilter matches executors by decoded descriptor fields.
type DescriptorFilter struct {
	Level        *domain.DifficultyLevel
	SuccessRate  *int
	Satisfaction *int
}

func (f DescriptorFilter) matches(d domain.Descriptor) bool {
	if f.Level != nil && d.Level != *f.Level {
		return false
	}
	if f.SuccessRate != nil && d.SuccessRate != *f.SuccessRate {
		return false
	}
	if f.Satisfaction != nil && d.Satisfaction != *f.Satisfaction {
		return false
	}
	return true
}
