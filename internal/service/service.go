// Package service validates run submissions, drives the execution client
// with its single retry and records results.
package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"run-sphere/internal/monitor"
	"run-sphere/internal/results"
	"run-sphere/internal/run"
	"run-sphere/internal/runtime"
	"run-sphere/internal/storage"
)

// Sentinel errors for typed error checking.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidLanguage = errors.New("invalid language")
	ErrNotFound        = errors.New("run not found")
)

// ValidationError carries the client-facing message for a rejected request.
type ValidationError struct {
	Err     error // ErrInvalidInput or ErrInvalidLanguage
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Executor runs one attempt of a request.
type Executor interface {
	Execute(ctx context.Context, req run.Request) run.Outcome
}

// AuditLogger receives a record for every stored run.
type AuditLogger interface {
	Log(rec *storage.RunRecord)
}

// SubmitInput is a run submission as received from a client.
type SubmitInput struct {
	Language  string
	Code      string
	Stdin     string
	TimeoutMs *float64 // nil selects the default

	ClientIP  string
	RequestID string
}

// Config wires optional collaborators into a Service.
type Config struct {
	Timeouts     run.TimeoutPolicy
	RetryBackoff time.Duration
	Metrics      *monitor.Metrics
	Tracer       *monitor.Tracer
	Audit        AuditLogger // nil disables the audit log
}

// Service is the run service behind the HTTP API.
type Service struct {
	exec     Executor
	store    *results.Store
	runtimes *runtime.Registry
	timeouts run.TimeoutPolicy
	backoff  time.Duration
	metrics  *monitor.Metrics
	tracer   *monitor.Tracer
	detector *monitor.InjectionDetector
	audit    AuditLogger
	now      func() time.Time
	newID    func() string
}

// New creates a Service. A zero Timeouts selects run.DefaultTimeoutPolicy.
func New(exec Executor, store *results.Store, runtimes *runtime.Registry, cfg Config) *Service {
	s := &Service{
		exec:     exec,
		store:    store,
		runtimes: runtimes,
		timeouts: cfg.Timeouts,
		backoff:  cfg.RetryBackoff,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		detector: monitor.NewInjectionDetector(),
		audit:    cfg.Audit,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	if s.timeouts == (run.TimeoutPolicy{}) {
		s.timeouts = run.DefaultTimeoutPolicy
	}
	if s.metrics == nil {
		s.metrics = monitor.NewMetrics()
	}
	if s.tracer == nil {
		s.tracer = monitor.NewTracer()
	}
	return s
}

// Runtimes returns the language registry used for validation.
func (s *Service) Runtimes() *runtime.Registry {
	return s.runtimes
}

// Validate checks code before language, matching the order clients see
// errors in.
func (s *Service) Validate(in SubmitInput) error {
	if strings.TrimSpace(in.Code) == "" {
		return &ValidationError{Err: ErrInvalidInput, Message: "Code must be a non-empty string."}
	}
	if !s.runtimes.Supports(in.Language) {
		return &ValidationError{
			Err:     ErrInvalidLanguage,
			Message: "Language must be one of: " + strings.Join(s.runtimes.Languages(), ", "),
		}
	}
	return nil
}

// Submit validates in, executes it with at most one retry and stores the
// result. Only validation failures return an error; provider problems are
// reported through the result status.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (run.Result, error) {
	if err := s.Validate(in); err != nil {
		return run.Result{}, err
	}

	id := s.newID()
	req := run.Request{
		Language: in.Language,
		Code:     in.Code,
		Stdin:    in.Stdin,
		Timeout:  s.timeouts.Clamp(in.TimeoutMs),
	}

	logger := log.With().
		Str("run_id", id).
		Str("request_id", in.RequestID).
		Str("language", req.Language).
		Logger()

	logger.Info().
		Int("code_length", utf8.RuneCountInString(req.Code)).
		Int("stdin_length", utf8.RuneCountInString(req.Stdin)).
		Int64("timeout_ms", req.Timeout.Milliseconds()).
		Msg("run request")

	ctx, span := s.tracer.StartSpan(ctx, "submit",
		monitor.AttrRunID.String(id),
		monitor.AttrLanguage.String(req.Language),
	)
	defer span.End()

	s.metrics.CodeSizeBytes.Observe(float64(len(req.Code)))
	// Counted per submission, not per attempt.
	for _, d := range s.detector.AnalyzeCode(req.Code) {
		s.metrics.RecordInjectionSignal(d.Pattern)
	}
	start := s.now()

	attempts := 1
	outcome := s.exec.Execute(ctx, req)
	if outcome.Retryable() {
		s.metrics.RecordRetry(outcome.Failure.String())
		logger.Warn().
			Str("failure", outcome.Failure.String()).
			Dur("backoff", s.backoff).
			Msg("transient provider failure, retrying once")

		if s.wait(ctx) {
			attempts++
			outcome = s.exec.Execute(ctx, req)
		}
	}
	span.SetAttributes(
		monitor.AttrAttempt.Int(attempts),
		monitor.AttrStatus.String(string(outcome.Status)),
	)

	res := run.NewResult(id, outcome, s.now().UTC())
	s.store.Put(res)
	if pruned := s.store.PruneIfNeeded(); pruned > 0 {
		s.metrics.PrunedResults.Add(float64(pruned))
		logger.Info().Int("pruned", pruned).Msg("pruned old results")
	}
	s.metrics.StoredResults.Set(float64(s.store.Len()))

	elapsed := s.now().Sub(start)
	s.metrics.RecordRun(req.Language, string(res.Status), elapsed.Seconds())
	s.metrics.OutputSizeBytes.Observe(float64(len(res.Stdout) + len(res.Stderr)))

	logger.Info().
		Str("status", string(res.Status)).
		Int("attempts", attempts).
		Dur("duration", elapsed).
		Msg("run finished")

	s.logAudit(res, req, in, attempts, outcome.Failure, start)
	return res, nil
}

// Get returns the stored result for id.
func (s *Service) Get(id string) (run.Result, error) {
	res, ok := s.store.Get(id)
	if !ok {
		return run.Result{}, ErrNotFound
	}
	return res, nil
}

// wait sleeps for the retry backoff. It reports false if ctx ended first.
func (s *Service) wait(ctx context.Context) bool {
	if s.backoff <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) logAudit(res run.Result, req run.Request, in SubmitInput, attempts int, failure run.FailureKind, start time.Time) {
	if s.audit == nil {
		return
	}

	failureName := ""
	if failure != run.FailureNone {
		failureName = failure.String()
	}
	completedAt := res.CreatedAt
	s.audit.Log(&storage.RunRecord{
		ID:          res.ID,
		Language:    req.Language,
		CodeHash:    fmt.Sprintf("%x", sha256.Sum256([]byte(req.Code))),
		Status:      string(res.Status),
		Failure:     failureName,
		ExitCode:    res.ExitCode,
		DurationMS:  res.DurationMs,
		TimeoutMS:   req.Timeout.Milliseconds(),
		Attempts:    attempts,
		StdoutBytes: len(res.Stdout),
		StderrBytes: len(res.Stderr),
		RequestIP:   in.ClientIP,
		RequestID:   in.RequestID,
		CreatedAt:   start.UTC(),
		CompletedAt: &completedAt,
	})
}
