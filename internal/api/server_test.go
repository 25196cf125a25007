package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"run-sphere/internal/config"
	"run-sphere/internal/executor"
	"run-sphere/internal/monitor"
	"run-sphere/internal/provider"
	"run-sphere/internal/ratelimit"
	"run-sphere/internal/results"
	"run-sphere/internal/run"
	"run-sphere/internal/runtime"
	"run-sphere/internal/service"
)

// geminiEnvelope wraps text the way generateContent returns it.
func geminiEnvelope(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

// startStack wires the real provider, executor and service against an
// upstream stub and serves the API over a loopback listener.
func startStack(t *testing.T, upstream http.Handler) *httptest.Server {
	t.Helper()

	stub := httptest.NewServer(upstream)
	t.Cleanup(stub.Close)

	cfg := config.DefaultConfig()
	metrics := monitor.NewMetrics()
	exec := executor.New(
		provider.NewGemini(stub.URL, cfg.Provider.Model, "test-key", stub.Client()),
		executor.WithMetrics(metrics),
	)
	store := results.NewStore(cfg.Store.MaxEntries, cfg.Store.Retain)
	t.Cleanup(store.Close)
	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	t.Cleanup(limiter.Close)

	svc := service.New(exec, store, runtime.NewRegistry(), service.Config{
		Timeouts:     cfg.Runner.Timeouts(),
		RetryBackoff: 10 * time.Millisecond,
		Metrics:      metrics,
	})
	srv := NewServer(cfg, Deps{Service: svc, Limiter: limiter, Metrics: metrics})

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)
	return api
}

func postRun(t *testing.T, api *httptest.Server, body map[string]any) run.Result {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := api.Client().Post(api.URL+"/api/run", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST /api/run: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}
	var res run.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	return res
}

func TestEndToEnd_FencedJSONSuccess(t *testing.T) {
	var prompt atomic.Value
	api := startStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
			prompt.Store(body.Contents[0].Parts[0].Text)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, geminiEnvelope("```json\n{\"stdout\":\"Hello, World!\\n\",\"stderr\":\"\",\"exitCode\":0,\"durationMs\":5,\"logs\":[]}\n```"))
	}))

	res := postRun(t, api, map[string]any{
		"language": "python",
		"code":     `print("Hello, World!")`,
	})

	if res.Status != run.StatusSuccess {
		t.Fatalf("status = %q (stderr %q), want success", res.Status, res.Stderr)
	}
	if res.Stdout != "Hello, World!\n" || res.Stderr != "" {
		t.Errorf("stdout = %q, stderr = %q", res.Stdout, res.Stderr)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 || res.DurationMs == nil || *res.DurationMs != 5 {
		t.Errorf("exitCode = %v, durationMs = %v", res.ExitCode, res.DurationMs)
	}

	p, _ := prompt.Load().(string)
	if !strings.Contains(p, `"language":"python"`) || !strings.Contains(p, `print(\"Hello, World!\")`) {
		t.Errorf("prompt does not carry the request: %q", p)
	}

	resp, err := api.Client().Get(api.URL + "/api/result/" + res.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET result status = %d, want 200", resp.StatusCode)
	}
}

func TestEndToEnd_HangingProviderTimesOut(t *testing.T) {
	api := startStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))

	start := time.Now()
	res := postRun(t, api, map[string]any{
		"language":  "javascript",
		"code":      "while (true) {}",
		"timeoutMs": 1000,
	})
	elapsed := time.Since(start)

	if res.Status != run.StatusTimeout {
		t.Fatalf("status = %q, want timeout", res.Status)
	}
	if res.Stderr != "Execution timed out after 1000ms." {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if elapsed > 5*time.Second {
		t.Errorf("request took %s, want roughly the 1s timeout", elapsed)
	}
}

func TestEndToEnd_RetriesRateLimitedProviderOnce(t *testing.T) {
	var calls atomic.Int32
	api := startStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, geminiEnvelope(`{"stdout":"ok","exitCode":0}`))
	}))

	res := postRun(t, api, map[string]any{"language": "c", "code": "int main(){return 0;}"})
	if res.Status != run.StatusSuccess || res.Stdout != "ok" {
		t.Errorf("result = %+v, want success after retry", res)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestEndToEnd_BadRequestNeverReachesProvider(t *testing.T) {
	var calls atomic.Int32
	api := startStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	resp, err := api.Client().Post(api.URL+"/api/run", "application/json",
		strings.NewReader(`{"language":"cobol","code":"DISPLAY 'HI'."}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if calls.Load() != 0 {
		t.Errorf("provider called %d times", calls.Load())
	}
}
