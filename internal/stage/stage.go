// Package stage defines the ordered pipeline every operation walks through
// and the rule that decides how far a session may navigate.
package stage

import (
	"fmt"
	"strings"
)

// Stage is one step of the operation pipeline.
type Stage int

const (
	Configure Stage = iota
	Upload
	Process
	Result
)

var names = [...]string{"configure", "upload", "process", "result"}

// All lists the stages in pipeline order.
func All() []Stage {
	return []Stage{Configure, Upload, Process, Result}
}

func (s Stage) String() string {
	if s.Valid() {
		return names[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText encodes s by name.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(names[s]), nil
}

// UnmarshalText accepts anything Parse does.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s >= Configure && s <= Result
}

// Parse accepts a stage name or its ordinal.
func Parse(value string) (Stage, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for i, name := range names {
		if value == name || value == fmt.Sprint(i) {
			return Stage(i), nil
		}
	}
	return Configure, fmt.Errorf("unknown stage %q", value)
}

// Facts are the three observations reachability depends on.
type Facts struct {
	HasOperation bool
	HasDocuments bool
	HasResult    bool
}

// Max returns the furthest stage reachable given facts.
func Max(f Facts) Stage {
	switch {
	case !f.HasOperation:
		return Configure
	case !f.HasDocuments:
		return Upload
	case !f.HasResult:
		return Process
	default:
		return Result
	}
}

// Clamp limits s to max. Once an operation exists the result is never
// Configure.
func Clamp(s Stage, f Facts) Stage {
	limit := Max(f)
	if !s.Valid() || s > limit {
		s = limit
	}
	if f.HasOperation && s == Configure {
		s = Upload
	}
	return s
}
