// Package run defines the run request, the execution outcome and the
// persisted result shared by the executor, normalizer and run service.
package run

import (
	"math"
	"time"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Timeout bounds applied to every request.
const (
	MinTimeout     = 1000 * time.Millisecond
	MaxTimeout     = 30000 * time.Millisecond
	DefaultTimeout = 10000 * time.Millisecond
)

// Output ceilings.
const (
	MaxOutputChars  = 200000
	MaxLogEntries   = 100
	TruncatedMarker = "\n[truncated]"
	TruncatedNotice = "Output truncated to 200k characters."
)

// Request is a validated run request.
type Request struct {
	Language string
	Code     string
	Stdin    string
	Timeout  time.Duration
}

// Outcome is what one execution attempt produced, before it is wrapped into
// a Result. For StatusError the message lives in Stderr.
type Outcome struct {
	Status     Status
	Stdout     string
	Stderr     string
	ExitCode   *int
	DurationMs *int64
	Logs       []string
	Failure    FailureKind
}

// Result is the persisted and returned record of a run.
type Result struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	ExitCode   *int      `json:"exitCode"`
	DurationMs *int64    `json:"durationMs"`
	Logs       []string  `json:"logs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewResult wraps an outcome under the given id.
func NewResult(id string, o Outcome, createdAt time.Time) Result {
	logs := o.Logs
	if logs == nil {
		logs = []string{}
	}
	return Result{
		ID:         id,
		Status:     o.Status,
		Stdout:     o.Stdout,
		Stderr:     o.Stderr,
		ExitCode:   o.ExitCode,
		DurationMs: o.DurationMs,
		Logs:       logs,
		CreatedAt:  createdAt,
	}
}

// Clone returns a copy that shares no mutable state with r.
func (r Result) Clone() Result {
	out := r
	if r.Logs != nil {
		out.Logs = append(make([]string, 0, len(r.Logs)), r.Logs...)
	}
	if r.ExitCode != nil {
		v := *r.ExitCode
		out.ExitCode = &v
	}
	if r.DurationMs != nil {
		v := *r.DurationMs
		out.DurationMs = &v
	}
	return out
}

// TimeoutPolicy bounds client supplied timeouts.
type TimeoutPolicy struct {
	Min     time.Duration
	Max     time.Duration
	Default time.Duration
}

// DefaultTimeoutPolicy is 1s..30s with a 10s default.
var DefaultTimeoutPolicy = TimeoutPolicy{Min: MinTimeout, Max: MaxTimeout, Default: DefaultTimeout}

// Clamp converts a client supplied millisecond value into the effective
// timeout. A nil value selects the default.
func (p TimeoutPolicy) Clamp(ms *float64) time.Duration {
	if ms == nil || math.IsNaN(*ms) {
		return p.Default
	}
	switch {
	case *ms < float64(p.Min/time.Millisecond):
		return p.Min
	case *ms > float64(p.Max/time.Millisecond):
		return p.Max
	}
	return time.Duration(math.Round(*ms)) * time.Millisecond
}

// ClampTimeout applies DefaultTimeoutPolicy.
func ClampTimeout(ms *float64) time.Duration {
	return DefaultTimeoutPolicy.Clamp(ms)
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
