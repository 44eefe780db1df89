// Package descriptor merges partial updates into the executor's stored
// descriptor sub-document.
package descriptor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"asylum/internal/domain"
)

//go:embed descriptor.schema.json
var schemaJSON []byte

const schemaURL = "mem://asylum/descriptor.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// ErrCorrupt is returned in strict mode when the stored value cannot be decoded
// or does not satisfy the descriptor schema.
var ErrCorrupt = errors.New("stored descriptor is not a valid object")

// Patch carries the descriptor fields to overwrite. Nil fields are left as stored.
type Patch struct {
	Level        *domain.DifficultyLevel `json:"level,omitempty" enum:"ROOKIE,SKILLED,VETERAN,ELITE,LEGEND"`
	SuccessRate  *int                    `json:"successRate,omitempty"`
	Satisfaction *int                    `json:"satisfaction,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Level == nil && p.SuccessRate == nil && p.Satisfaction == nil
}

// Validate checks the patch's own fields before any storage access.
func (p Patch) Validate() error {
	if p.Level != nil {
		if err := domain.ValidateLevel("level", *p.Level); err != nil {
			return err
		}
	}
	if p.SuccessRate != nil {
		if err := domain.ValidateSuccessRate(*p.SuccessRate); err != nil {
			return err
		}
	}
	if p.Satisfaction != nil {
		if err := domain.ValidateSatisfaction(*p.Satisfaction); err != nil {
			return err
		}
	}
	return nil
}

type Options struct {
	// Strict fails the merge when the stored value is undecodable or
	// schema-invalid instead of repairing it from the default descriptor.
	Strict bool
	Logger *slog.Logger
}

// Merge overlays the patch onto the stored descriptor and returns the new stored form.
// Keys present in the stored object but unknown to Patch are preserved. Only the
// patch can produce a validation error; problems in the stored value are either
// repaired (lenient) or reported as ErrCorrupt (strict).
func Merge(existing string, p Patch, opts Options) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	base, err := decode(existing)
	if err != nil {
		if opts.Strict {
			return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if opts.Logger != nil {
			opts.Logger.Warn("descriptor undecodable, merging onto default", "error", err)
		}
		base = defaults()
	} else if err := check(base); err != nil {
		if opts.Strict {
			return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		fixed := repair(base)
		if opts.Logger != nil {
			opts.Logger.Warn("descriptor invalid, restored defaults", "keys", fixed, "error", err)
		}
	}
	if p.Level != nil {
		base["level"] = string(*p.Level)
	}
	if p.SuccessRate != nil {
		base["successRate"] = *p.SuccessRate
	}
	if p.Satisfaction != nil {
		base["satisfaction"] = *p.Satisfaction
	}
	out, err := json.Marshal(base)
	if err != nil {
		return "", err
	}
	if err := check(out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(out), nil
}

// Validate checks a caller-supplied descriptor against the descriptor schema.
func Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &domain.ValidationError{Field: "desc", Reason: err.Error()}
	}
	if err := check(v); err != nil {
		return &domain.ValidationError{Field: "desc", Reason: err.Error()}
	}
	return nil
}

// check validates a decoded value, or raw JSON bytes, against the schema.
func check(v any) error {
	s, err := compiled()
	if err != nil {
		return err
	}
	if raw, ok := v.([]byte); ok {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return err
		}
	}
	if m, ok := v.(map[string]any); ok {
		v = numbered(m)
	}
	return s.Validate(v)
}

// numbered converts Go ints set by the merge into json.Number, the form the
// schema validator expects.
func numbered(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if n, ok := v.(int); ok {
			v = json.Number(strconv.Itoa(n))
		}
		out[k] = v
	}
	return out
}

func defaults() map[string]any {
	base, _ := decode(domain.DefaultDescriptorJSON)
	return base
}

// repair replaces every missing or invalid known key with its default value
// and returns the keys it replaced.
func repair(base map[string]any) []string {
	def := defaults()
	var fixed []string
	for _, key := range []string{"level", "successRate", "satisfaction"} {
		if !validKey(key, base[key]) {
			base[key] = def[key]
			fixed = append(fixed, key)
		}
	}
	return fixed
}

func validKey(key string, v any) bool {
	switch key {
	case "level":
		s, ok := v.(string)
		return ok && domain.ValidateLevel("level", domain.DifficultyLevel(s)) == nil
	case "successRate":
		n, ok := intValue(v)
		return ok && domain.ValidateSuccessRate(n) == nil
	case "satisfaction":
		n, ok := intValue(v)
		return ok && domain.ValidateSatisfaction(n) == nil
	}
	return true
}

func intValue(v any) (int, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(num.String())
	return n, err == nil
}

func decode(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("descriptor is null")
	}
	return m, nil
}

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add descriptor schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}
