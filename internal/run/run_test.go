package run

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestClampTimeout(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		in   *float64
		want time.Duration
	}{
		{"omitted", nil, 10 * time.Second},
		{"below minimum", f(999), time.Second},
		{"zero", f(0), time.Second},
		{"negative", f(-5), time.Second},
		{"minimum", f(1000), time.Second},
		{"in range", f(5000), 5 * time.Second},
		{"fractional", f(2500.4), 2500 * time.Millisecond},
		{"maximum", f(30000), 30 * time.Second},
		{"above maximum", f(999999), 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampTimeout(tt.in); got != tt.want {
				t.Errorf("ClampTimeout() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFailureKind_Transient(t *testing.T) {
	tests := []struct {
		kind FailureKind
		want bool
	}{
		{FailureNone, false},
		{FailureRateLimited, true},
		{FailureUnavailable, true},
		{FailureNetwork, true},
		{FailureUpstreamTimeout, true},
		{FailureOther, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Transient(); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutcome_Retryable(t *testing.T) {
	if (Outcome{Status: StatusTimeout, Failure: FailureUpstreamTimeout}).Retryable() {
		t.Error("timeout outcome must not be retryable")
	}
	if (Outcome{Status: StatusSuccess}).Retryable() {
		t.Error("success outcome must not be retryable")
	}
	if !(Outcome{Status: StatusError, Failure: FailureRateLimited}).Retryable() {
		t.Error("rate limited error should be retryable")
	}
	if (Outcome{Status: StatusError, Failure: FailureOther}).Retryable() {
		t.Error("other error must not be retryable")
	}
}

func TestNewResult_NilLogs(t *testing.T) {
	res := NewResult("id-1", Outcome{Status: StatusError, Stderr: "boom"}, time.Unix(0, 0))
	if res.Logs == nil || len(res.Logs) != 0 {
		t.Errorf("Logs = %#v, want empty non-nil slice", res.Logs)
	}
}

func TestResult_Clone(t *testing.T) {
	orig := Result{
		ID:         "x",
		Status:     StatusSuccess,
		ExitCode:   Int(0),
		DurationMs: Int64(12),
		Logs:       []string{"a"},
		CreatedAt:  time.Unix(100, 0),
	}
	c := orig.Clone()
	if diff := cmp.Diff(orig, c); diff != "" {
		t.Fatalf("Clone() mismatch (-want +got):\n%s", diff)
	}
	c.Logs[0] = "changed"
	*c.ExitCode = 9
	if orig.Logs[0] != "a" || *orig.ExitCode != 0 {
		t.Error("Clone() shares state with the original")
	}
}

func TestResult_CloneEmptyLogs(t *testing.T) {
	orig := NewResult("id-2", Outcome{Status: StatusSuccess, ExitCode: Int(0)}, time.Unix(0, 0))
	c := orig.Clone()
	if c.Logs == nil || len(c.Logs) != 0 {
		t.Fatalf("Logs = %#v, want empty non-nil slice", c.Logs)
	}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(b), `"logs":[]`) {
		t.Errorf("Marshal() = %s, want logs encoded as []", b)
	}
}

func TestTimeoutPolicy_Custom(t *testing.T) {
	p := TimeoutPolicy{Min: 500 * time.Millisecond, Max: 5 * time.Second, Default: 2 * time.Second}
	big, small, mid := 9000.0, 10.0, 1234.4

	tests := []struct {
		name string
		in   *float64
		want time.Duration
	}{
		{"default", nil, 2 * time.Second},
		{"above max", &big, 5 * time.Second},
		{"below min", &small, 500 * time.Millisecond},
		{"rounded", &mid, 1234 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Clamp(tt.in); got != tt.want {
				t.Errorf("Clamp() = %s, want %s", got, tt.want)
			}
		})
	}
}
