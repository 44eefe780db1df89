package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError reports a field that failed its constraint. It is raised
// before any storage access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func ValidateExecutorName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 {
		return invalid("name", "required")
	}
	if n > 20 {
		return invalid("name", "must be at most 20 characters")
	}
	return nil
}

func ValidateAge(age int) error {
	if age < 1 || age > 80 {
		return invalid("age", "must be between 1 and 80")
	}
	return nil
}

func ValidateTaskTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n == 0 {
		return invalid("taskTitle", "required")
	}
	if n > 60 {
		return invalid("taskTitle", "must be at most 60 characters")
	}
	return nil
}

func ValidateReward(reward int64) error {
	if reward < 0 {
		return invalid("taskReward", "must not be negative")
	}
	return nil
}

func ValidateRate(rate int) error {
	if rate < 0 || rate > 100 {
		return invalid("taskRate", "must be between 0 and 100")
	}
	return nil
}

func ValidateSuccessRate(v int) error {
	if v < 0 || v > 100 {
		return invalid("successRate", "must be between 0 and 100")
	}
	return nil
}

func ValidateSatisfaction(v int) error {
	if v < 0 || v > 10 {
		return invalid("satisfaction", "must be between 0 and 10")
	}
	return nil
}

func ValidateLevel(field string, l DifficultyLevel) error {
	for _, v := range DifficultyLevels {
		if v == l {
			return nil
		}
	}
	return invalid(field, "unknown level %q", l)
}

func ValidateJob(j Job) error {
	for _, v := range Jobs {
		if v == j {
			return nil
		}
	}
	return invalid("job", "unknown job %q", j)
}

func ValidateRegion(r Region) error {
	for _, v := range Regions {
		if v == r {
			return nil
		}
	}
	return invalid("region", "unknown region %q", r)
}

func ValidatePriority(p TaskPriority) error {
	for _, v := range TaskPriorities {
		if v == p {
			return nil
		}
	}
	return invalid("taskPriority", "unknown priority %q", p)
}

func ValidateSource(s TaskSource) error {
	for _, v := range TaskSources {
		if v == s {
			return nil
		}
	}
	return invalid("taskSource", "unknown source %q", s)
}

func ValidateTarget(t TaskTarget) error {
	for _, v := range TaskTargets {
		if v == t {
			return nil
		}
	}
	return invalid("taskTarget", "unknown target %q", t)
}

// ValidateID rejects non-positive identifiers.
func ValidateID(field string, id int64) error {
	if id <= 0 {
		return invalid(field, "must be a positive integer")
	}
	return nil
}

func (e Executor) Validate() error {
	if err := ValidateExecutorName(e.Name); err != nil {
		return err
	}
	if err := ValidateAge(e.Age); err != nil {
		return err
	}
	if err := ValidateJob(e.Job); err != nil {
		return err
	}
	return ValidateRegion(e.Region)
}

func (t Task) Validate() error {
	if err := ValidateTaskTitle(t.Title); err != nil {
		return err
	}
	if err := ValidatePriority(t.Priority); err != nil {
		return err
	}
	if err := ValidateLevel("taskLevel", t.Level); err != nil {
		return err
	}
	if err := ValidateSource(t.Source); err != nil {
		return err
	}
	if err := ValidateTarget(t.Target); err != nil {
		return err
	}
	if err := ValidateReward(t.Reward); err != nil {
		return err
	}
	if t.Rate != nil {
		if err := ValidateRate(*t.Rate); err != nil {
			return err
		}
	}
	return ValidateID("substanceId", t.SubstanceID)
}

func (s Substance) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("substanceName", "required")
	}
	return ValidateLevel("substanceLevel", s.Level)
}
