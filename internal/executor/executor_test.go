package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"run-sphere/internal/provider"
	"run-sphere/internal/run"
)

type fakeProvider struct {
	mu      sync.Mutex
	prompts []string
	text    string
	err     error
	block   bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func pythonRequest(timeout time.Duration) run.Request {
	return run.Request{Language: "python", Code: "print(1)", Stdin: "", Timeout: timeout}
}

func TestExecute_Success(t *testing.T) {
	p := &fakeProvider{text: "```json {\"stdout\":\"1\\n\",\"stderr\":\"\",\"exitCode\":0,\"durationMs\":50,\"logs\":[]} ```"}
	got := New(p).Execute(context.Background(), pythonRequest(time.Second))

	want := run.Outcome{
		Status:     run.StatusSuccess,
		Stdout:     "1\n",
		ExitCode:   run.Int(0),
		DurationMs: run.Int64(50),
		Logs:       []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Execute() mismatch (-want +got):\n%s", diff)
	}
	if len(p.prompts) != 1 {
		t.Fatalf("provider called %d times, want 1", len(p.prompts))
	}
	if !strings.Contains(p.prompts[0], `{"language":"python","code":"print(1)","stdin":""}`) {
		t.Errorf("prompt missing input JSON:\n%s", p.prompts[0])
	}
}

func TestExecute_Timeout(t *testing.T) {
	p := &fakeProvider{block: true}
	start := time.Now()
	got := New(p).Execute(context.Background(), pythonRequest(50*time.Millisecond))

	if time.Since(start) > 2*time.Second {
		t.Fatalf("Execute did not honor the timeout")
	}
	if got.Status != run.StatusTimeout {
		t.Fatalf("Status = %q, want timeout", got.Status)
	}
	if got.Stdout != "" || got.ExitCode != nil {
		t.Errorf("timeout outcome has stdout=%q exitCode=%v", got.Stdout, got.ExitCode)
	}
	if !strings.Contains(got.Stderr, "timed out") {
		t.Errorf("Stderr = %q, want timeout description", got.Stderr)
	}
	if got.DurationMs == nil || *got.DurationMs < 50 {
		t.Errorf("DurationMs = %v, want elapsed >= 50", got.DurationMs)
	}
	if got.Retryable() {
		t.Error("timeout outcome must not be retryable")
	}
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		text       string
		wantKind   run.FailureKind
		wantPrefix string
	}{
		{"rate limited", &provider.StatusError{Code: 429, Status: "Too Many Requests", Body: "quota"}, "",
			run.FailureRateLimited, "Provider API error: 429 Too Many Requests - quota"},
		{"unavailable", &provider.StatusError{Code: 503, Status: "Service Unavailable"}, "",
			run.FailureUnavailable, "Provider API error: 503 Service Unavailable"},
		{"bad gateway", &provider.StatusError{Code: 502, Status: "Bad Gateway"}, "",
			run.FailureUnavailable, "Provider API error: 502"},
		{"gateway timeout", &provider.StatusError{Code: 504, Status: "Gateway Timeout"}, "",
			run.FailureUpstreamTimeout, "Provider API error: 504"},
		{"bad request", &provider.StatusError{Code: 400, Status: "Bad Request", Body: "bad key"}, "",
			run.FailureOther, "Provider API error: 400 Bad Request - bad key"},
		{"empty", provider.ErrEmptyResponse, "",
			run.FailureOther, "Empty response from provider."},
		{"network", errors.New("dial tcp: connection refused"), "",
			run.FailureNetwork, "Network error calling provider: dial tcp: connection refused"},
		{"unparseable", nil, "compile failed: missing semicolon",
			run.FailureOther, "Failed to parse JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{err: tt.err, text: tt.text}
			got := New(p).Execute(context.Background(), pythonRequest(time.Second))

			if got.Status != run.StatusError {
				t.Fatalf("Status = %q, want error", got.Status)
			}
			if got.Failure != tt.wantKind {
				t.Errorf("Failure = %s, want %s", got.Failure, tt.wantKind)
			}
			if !strings.HasPrefix(got.Stderr, tt.wantPrefix) {
				t.Errorf("Stderr = %q, want prefix %q", got.Stderr, tt.wantPrefix)
			}
			if got.ExitCode != nil {
				t.Errorf("ExitCode = %d, want nil", *got.ExitCode)
			}
		})
	}
}

func TestExecute_ErrorBodyTruncated(t *testing.T) {
	p := &fakeProvider{err: &provider.StatusError{Code: 500, Status: "Internal Server Error", Body: strings.Repeat("b", 5000)}}
	got := New(p).Execute(context.Background(), pythonRequest(time.Second))

	want := "Provider API error: 500 Internal Server Error - " + strings.Repeat("b", maxErrorBodyChars)
	if got.Stderr != want {
		t.Errorf("len(Stderr) = %d, want %d", len(got.Stderr), len(want))
	}
}

func TestExecute_MaxConcurrent(t *testing.T) {
	p := &fakeProvider{block: true}
	c := New(p, WithMaxConcurrent(1))

	done := make(chan run.Outcome)
	go func() { done <- c.Execute(context.Background(), pythonRequest(300*time.Millisecond)) }()

	deadline := time.Now().Add(time.Second)
	for c.Active() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// The only slot is taken, so this run times out while queued.
	queued := c.Execute(context.Background(), pythonRequest(50*time.Millisecond))
	if queued.Status != run.StatusTimeout {
		t.Errorf("queued Status = %q, want timeout", queued.Status)
	}
	p.mu.Lock()
	calls := len(p.prompts)
	p.mu.Unlock()
	if calls != 1 {
		t.Errorf("provider called %d times, want 1", calls)
	}

	if first := <-done; first.Status != run.StatusTimeout {
		t.Errorf("first Status = %q, want timeout", first.Status)
	}
	if c.Active() != 0 {
		t.Errorf("Active() = %d after completion, want 0", c.Active())
	}
}

func TestExecute_AgainstGeminiStub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Sure! {\"stdout\":\"hi\",\"stderr\":\"warn\"} Done."}]}}]}`)
	}))
	defer srv.Close()

	c := New(provider.NewGemini(srv.URL, "gemini-2.0-flash", "k", srv.Client()))
	got := c.Execute(context.Background(), pythonRequest(time.Second))

	want := run.Outcome{
		Status:   run.StatusSuccess,
		Stdout:   "hi",
		Stderr:   "warn",
		ExitCode: run.Int(1),
		Logs:     []string{},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(run.Outcome{}, "DurationMs")); diff != "" {
		t.Errorf("Execute() mismatch (-want +got):\n%s", diff)
	}
	if got.DurationMs == nil {
		t.Error("DurationMs = nil, want elapsed time")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code int
		want run.FailureKind
	}{
		{429, run.FailureRateLimited},
		{503, run.FailureUnavailable},
		{502, run.FailureUnavailable},
		{504, run.FailureUpstreamTimeout},
		{408, run.FailureUpstreamTimeout},
		{500, run.FailureOther},
		{400, run.FailureOther},
		{401, run.FailureOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.code); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(run.Request{Language: "cpp", Code: "if (a < b && c > d) {}", Stdin: "1 2\n"})

	if !strings.HasPrefix(prompt, "You are a secure code runner.") {
		t.Error("prompt does not start with the instruction block")
	}
	wantTail := "Input JSON:\n" + `{"language":"cpp","code":"if (a < b && c > d) {}","stdin":"1 2\n"}`
	if !strings.HasSuffix(prompt, wantTail) {
		t.Errorf("prompt tail = %q, want %q", prompt[len(prompt)-len(wantTail):], wantTail)
	}
}
