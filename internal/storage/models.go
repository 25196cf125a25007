package storage

import "time"

// RunRecord is the audit row written for every finished run. Source code and
// program output are not stored, only their hash and sizes.
type RunRecord struct {
	ID          string     `json:"id" db:"id"`
	Language    string     `json:"language" db:"language"`
	CodeHash    string     `json:"code_hash" db:"code_hash"`
	Status      string     `json:"status" db:"status"` // success, error, timeout
	Failure     string     `json:"failure,omitempty" db:"failure"`
	ExitCode    *int       `json:"exit_code" db:"exit_code"`
	DurationMS  *int64     `json:"duration_ms" db:"duration_ms"`
	TimeoutMS   int64      `json:"timeout_ms" db:"timeout_ms"`
	Attempts    int        `json:"attempts" db:"attempts"`
	StdoutBytes int        `json:"stdout_bytes" db:"stdout_bytes"`
	StderrBytes int        `json:"stderr_bytes" db:"stderr_bytes"`
	RequestIP   string     `json:"request_ip" db:"request_ip"`
	RequestID   string     `json:"request_id,omitempty" db:"request_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunFilter provides criteria for querying runs.
type RunFilter struct {
	Language string
	Status   string
	Since    *time.Time
	Limit    int
	Offset   int
}
