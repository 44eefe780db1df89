package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type DifficultyLevel string

const (
	LevelRookie  DifficultyLevel = "ROOKIE"
	LevelSkilled DifficultyLevel = "SKILLED"
	LevelVeteran DifficultyLevel = "VETERAN"
	LevelElite   DifficultyLevel = "ELITE"
	LevelLegend  DifficultyLevel = "LEGEND"
)

var DifficultyLevels = []DifficultyLevel{LevelRookie, LevelSkilled, LevelVeteran, LevelElite, LevelLegend}

type Job string

const (
	JobFrontend Job = "FRONTEND_ENGINEER"
	JobBackend  Job = "BACKEND_ENGINEER"
)

var Jobs = []Job{JobFrontend, JobBackend}

type Region string

const (
	RegionCentral   Region = "CENTRAL"
	RegionAbandoned Region = "ABANDONED"
	RegionSouth     Region = "SOUTH"
	RegionNorth     Region = "NORTH"
	RegionPacific   Region = "PACIFIC_OCEAN"
	RegionOther     Region = "OTHER"
)

var Regions = []Region{RegionCentral, RegionAbandoned, RegionSouth, RegionNorth, RegionPacific, RegionOther}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMiddle TaskPriority = "MIDDLE"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

var TaskPriorities = []TaskPriority{PriorityLow, PriorityMiddle, PriorityHigh, PriorityUrgent}

type TaskSource string

const (
	SourceFoundation TaskSource = "FOUNDATION"
	SourceGovernment TaskSource = "GOVERNMENT"
	SourceCivilian   TaskSource = "CIVILIAN"
	SourceOther      TaskSource = "OTHER"
)

var TaskSources = []TaskSource{SourceFoundation, SourceGovernment, SourceCivilian, SourceOther}

type TaskTarget string

const (
	TargetInvestigate TaskTarget = "INVESTIGATE"
	TargetContain     TaskTarget = "CONTAIN"
	TargetCapture     TaskTarget = "CAPTURE"
	TargetDestroy     TaskTarget = "DESTROY"
	TargetOther       TaskTarget = "OTHER"
)

var TaskTargets = []TaskTarget{TargetInvestigate, TargetContain, TargetCapture, TargetDestroy, TargetOther}

// TaskState is derived from the assignment edge and never stored.
type TaskState string

const (
	StateUnassigned TaskState = "UNASSIGNED"
	StateAssigned   TaskState = "ASSIGNED"
)

type RecordKind string

const (
	RecordAssigned   RecordKind = "ASSIGNED"
	RecordUnassigned RecordKind = "UNASSIGNED"
)

const (
	DefaultTaskContent = "Task content pending"
	DefaultTaskReward  = 1000
)

// Descriptor is the structured sub-document stored on every executor.
type Descriptor struct {
	Level        DifficultyLevel `json:"level"`
	SuccessRate  int             `json:"successRate"`
	Satisfaction int             `json:"satisfaction"`
}

// DefaultDescriptorJSON is the stored form of DefaultDescriptor.
const DefaultDescriptorJSON = `{"level":"ROOKIE","successRate":0,"satisfaction":0}`

func DefaultDescriptor() Descriptor {
	return Descriptor{Level: LevelRookie}
}

type Executor struct {
	UID            int64  `json:"uid"`
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Job            Job    `json:"job" enum:"FRONTEND_ENGINEER,BACKEND_ENGINEER"`
	Impaired       bool   `json:"impaired"`
	Available      bool   `json:"available"`
	Region         Region `json:"region" enum:"CENTRAL,ABANDONED,SOUTH,NORTH,PACIFIC_OCEAN,OTHER"`
	Desc           string `json:"desc"`
	JoinDate       string `json:"joinDate" format:"date-time"`
	LastUpdateDate string `json:"lastUpdateDate" format:"date-time"`
}

// Descriptor decodes Desc, reporting false when the stored value is not a valid object.
func (e Executor) Descriptor() (Descriptor, bool) {
	var d Descriptor
	if err := json.Unmarshal([]byte(e.Desc), &d); err != nil {
		return Descriptor{}, false
	}
	return d, true
}

type Task struct {
	ID                  int64           `json:"taskId"`
	Title               string          `json:"taskTitle"`
	Content             string          `json:"taskContent"`
	Priority            TaskPriority    `json:"taskPriority" enum:"LOW,MIDDLE,HIGH,URGENT"`
	Level               DifficultyLevel `json:"taskLevel" enum:"ROOKIE,SKILLED,VETERAN,ELITE,LEGEND"`
	Source              TaskSource      `json:"taskSource" enum:"FOUNDATION,GOVERNMENT,CIVILIAN,OTHER"`
	Target              TaskTarget      `json:"taskTarget" enum:"INVESTIGATE,CONTAIN,CAPTURE,DESTROY,OTHER"`
	Reward              int64           `json:"taskReward"`
	Rate                *int            `json:"taskRate,omitempty"`
	RequireCleaner      bool            `json:"requireCleaner"`
	RequireIntervention bool            `json:"requireIntervention"`
	AllowAbort          bool            `json:"allowAbort"`
	Accomplished        bool            `json:"taskAccomplished"`
	Available           bool            `json:"taskAvailable"`
	PublishDate         string          `json:"publishDate" format:"date-time"`
	LastUpdateDate      string          `json:"lastUpdateDate" format:"date-time"`
	SubstanceID         int64           `json:"substanceId"`
	AssigneeUID         *int64          `json:"assigneeUid,omitempty"`
}

func (t Task) State() TaskState {
	if t.AssigneeUID != nil {
		return StateAssigned
	}
	return StateUnassigned
}

type Substance struct {
	ID             int64           `json:"substanceId"`
	Name           string          `json:"substanceName"`
	Desc           string          `json:"substanceDesc"`
	Issues         string          `json:"substanceIssues"`
	Level          DifficultyLevel `json:"substanceLevel" enum:"ROOKIE,SKILLED,VETERAN,ELITE,LEGEND"`
	Contained      bool            `json:"contained"`
	AppearDate     string          `json:"appearDate" format:"date-time"`
	LastActiveDate string          `json:"lastActiveDate" format:"date-time"`
}

type AssignmentRecord struct {
	ID          int64      `json:"recordId"`
	TaskID      int64      `json:"taskId"`
	ExecutorUID int64      `json:"executorUid"`
	Kind        RecordKind `json:"kind" enum:"ASSIGNED,UNASSIGNED"`
	Ref         string     `json:"ref"`
	Content     string     `json:"content_json"`
	CreatedAt   string     `json:"createdAt" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// NewExecutor returns an executor with every default applied. The name is
// stored trimmed, the same form ValidateExecutorName measures.
func NewExecutor(name string, age int, now time.Time) Executor {
	ts := now.UTC().Format(time.RFC3339)
	return Executor{
		Name:           strings.TrimSpace(name),
		Age:            age,
		Job:            JobFrontend,
		Available:      true,
		Region:         RegionOther,
		Desc:           DefaultDescriptorJSON,
		JoinDate:       ts,
		LastUpdateDate: ts,
	}
}

// NewTask returns a task with every default applied.
func NewTask(title string, substanceID int64, now time.Time) Task {
	ts := now.UTC().Format(time.RFC3339)
	rate := 0
	return Task{
		Title:          title,
		Content:        DefaultTaskContent,
		Priority:       PriorityMiddle,
		Level:          LevelRookie,
		Source:         SourceOther,
		Target:         TargetOther,
		Reward:         DefaultTaskReward,
		Rate:           &rate,
		AllowAbort:     true,
		Available:      true,
		PublishDate:    ts,
		LastUpdateDate: ts,
		SubstanceID:    substanceID,
	}
}

func NewSubstance(name string, now time.Time) Substance {
	ts := now.UTC().Format(time.RFC3339)
	return Substance{
		Name:           name,
		Level:          LevelRookie,
		AppearDate:     ts,
		LastActiveDate: ts,
	}
}

// ProjectedAge is the computed age field exposed on executor reads: the age the
// executor will have after the given number of years (zero when nil).
func ProjectedAge(e Executor, years *int) int {
	if years == nil {
		return e.Age
	}
	return e.Age + *years
}
