package models

import (
	"fmt"
	"strings"
	"time"
)

// RecordLimit is one of the permitted maximum recording durations
type RecordLimit struct {
	Name string        `json:"name" yaml:"name"`
	Max  time.Duration `json:"max" yaml:"max"`
}

var (
	RecordLimitShort = RecordLimit{Name: "short", Max: 15 * time.Second}
	RecordLimitLong  = RecordLimit{Name: "long", Max: 60 * time.Second}
)

// DefaultRecordLimits returns the limits offered when no configuration overrides them
func DefaultRecordLimits() []RecordLimit {
	return []RecordLimit{RecordLimitShort, RecordLimitLong}
}

// Remaining returns how much of the budget is left after recorded has been used
func (r RecordLimit) Remaining(recorded time.Duration) time.Duration {
	if recorded >= r.Max {
		return 0
	}
	return r.Max - recorded
}

// Reached reports whether recorded has used the whole budget
func (r RecordLimit) Reached(recorded time.Duration) bool {
	return recorded >= r.Max
}

func (r RecordLimit) String() string {
	return fmt.Sprintf("%s (%s)", r.Name, r.Max)
}

// ParseRecordLimit looks up a limit by name among allowed
func ParseRecordLimit(name string, allowed []RecordLimit) (RecordLimit, error) {
	for _, limit := range allowed {
		if strings.EqualFold(limit.Name, name) {
			return limit, nil
		}
	}
	return RecordLimit{}, &ValidationError{Field: "record_limit", Message: fmt.Sprintf("unknown record limit %q", name)}
}

// NextRecordLimit returns the limit that follows current in allowed, wrapping around.
// An unknown current yields the first allowed limit.
func NextRecordLimit(current RecordLimit, allowed []RecordLimit) RecordLimit {
	if len(allowed) == 0 {
		return current
	}
	for i, limit := range allowed {
		if limit == current {
			return allowed[(i+1)%len(allowed)]
		}
	}
	return allowed[0]
}
