// Package executor performs a single simulated execution: it prompts the
// provider, bounds the call by the run timeout and normalizes whatever comes
// back into a run.Outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"run-sphere/internal/monitor"
	"run-sphere/internal/normalize"
	"run-sphere/internal/provider"
	"run-sphere/internal/run"
)

const maxErrorBodyChars = 1000

// Client executes run requests against a provider.
type Client struct {
	provider provider.Provider
	sem      chan struct{} // nil means unbounded
	active   atomic.Int64
	metrics  *monitor.Metrics
	tracer   *monitor.Tracer
	detector *monitor.InjectionDetector
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithMaxConcurrent caps in-flight provider calls. n <= 0 leaves them unbounded.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithTracer(t *monitor.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// New creates an execution client for p.
func New(p provider.Provider, opts ...Option) *Client {
	c := &Client{
		provider: p,
		detector: monitor.NewInjectionDetector(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = monitor.NewMetrics()
	}
	if c.tracer == nil {
		c.tracer = monitor.NewTracer()
	}
	return c
}

// Active returns the number of executions currently holding a slot.
func (c *Client) Active() int64 {
	return c.active.Load()
}

// Execute runs one attempt. It never returns an error: every failure is
// folded into an error or timeout outcome tagged with its failure kind.
func (c *Client) Execute(ctx context.Context, req run.Request) run.Outcome {
	ctx, span := c.tracer.StartSpan(ctx, "execute",
		monitor.AttrLanguage.String(req.Language),
		monitor.AttrTimeoutMS.Int64(req.Timeout.Milliseconds()),
		monitor.AttrProvider.String(c.provider.Name()),
	)
	defer span.End()

	if req.Timeout <= 0 {
		req.Timeout = run.DefaultTimeout
	}

	start := c.now()
	execCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	outcome := c.execute(execCtx, req, start)

	span.SetAttributes(
		monitor.AttrStatus.String(string(outcome.Status)),
		monitor.AttrFailure.String(outcome.Failure.String()),
	)
	if outcome.Status != run.StatusSuccess {
		span.SetStatus(codes.Error, string(outcome.Status))
	}
	return outcome
}

func (c *Client) execute(ctx context.Context, req run.Request, start time.Time) run.Outcome {
	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
			defer func() { <-c.sem }()
		case <-ctx.Done():
			return c.failure(ctx, ctx.Err(), req, start)
		}
	}

	c.active.Add(1)
	defer c.active.Add(-1)
	c.metrics.ActiveRuns.Inc()
	defer c.metrics.ActiveRuns.Dec()

	text, err := c.provider.Generate(ctx, BuildPrompt(req))
	elapsed := c.now().Sub(start)
	if err != nil {
		c.metrics.RecordProviderCall(c.provider.Name(), "error", elapsed.Seconds())
		return c.failure(ctx, err, req, start)
	}
	c.metrics.RecordProviderCall(c.provider.Name(), "ok", elapsed.Seconds())

	outcome := normalize.Normalize(text, elapsed.Milliseconds())
	if outcome.Status == run.StatusSuccess {
		for _, d := range c.detector.AnalyzeOutput(outcome.Stdout) {
			c.metrics.RecordInjectionSignal(d.Pattern)
		}
	} else {
		c.metrics.RecordProviderError(outcome.Failure.String())
	}
	return outcome
}

// failure converts a provider or scheduling error into an outcome.
func (c *Client) failure(ctx context.Context, err error, req run.Request, start time.Time) run.Outcome {
	elapsed := c.now().Sub(start).Milliseconds()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Debug().
			Str("language", req.Language).
			Int64("timeout_ms", req.Timeout.Milliseconds()).
			Msg("execution timed out")
		return run.Outcome{
			Status:     run.StatusTimeout,
			Stderr:     fmt.Sprintf("Execution timed out after %dms.", req.Timeout.Milliseconds()),
			DurationMs: run.Int64(elapsed),
			Logs:       []string{},
		}
	}

	var (
		msg  string
		kind run.FailureKind
	)
	var se *provider.StatusError
	switch {
	case errors.As(err, &se):
		kind = Classify(se.Code)
		msg = fmt.Sprintf("Provider API error: %d %s", se.Code, se.Status)
		if se.Body != "" {
			msg += " - " + normalize.Truncate(se.Body, maxErrorBodyChars)
		}
	case errors.Is(err, provider.ErrEmptyResponse):
		kind = run.FailureOther
		msg = "Empty response from provider."
	case ctx.Err() != nil:
		kind = run.FailureOther
		msg = "Execution cancelled: " + ctx.Err().Error()
	default:
		kind = run.FailureNetwork
		msg = "Network error calling provider: " + err.Error()
	}

	c.metrics.RecordProviderError(kind.String())
	log.Warn().
		Err(err).
		Str("language", req.Language).
		Str("failure", kind.String()).
		Msg("provider call failed")

	return run.Outcome{
		Status:     run.StatusError,
		Stderr:     msg,
		DurationMs: run.Int64(elapsed),
		Logs:       []string{},
		Failure:    kind,
	}
}

// Classify maps a provider HTTP status to a failure kind.
func Classify(code int) run.FailureKind {
	switch code {
	case http.StatusTooManyRequests:
		return run.FailureRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return run.FailureUnavailable
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return run.FailureUpstreamTimeout
	default:
		return run.FailureOther
	}
}
