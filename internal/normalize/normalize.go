package normalize

import (
	"math"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"run-sphere/internal/run"
)

const (
	parseFailurePrefix = "Failed to parse JSON from provider response. Ensure the model returns strict JSON. Error: "
	maxEchoedChars     = 500
)

// Normalize converts generated model text into an outcome. elapsedMs is the
// wall time of the attempt, used when the model omits durationMs.
func Normalize(text string, elapsedMs int64) run.Outcome {
	parsed, bad := Parse(text)
	if bad != nil {
		return run.Outcome{
			Status:     run.StatusError,
			Stderr:     parseFailurePrefix + bad.Reason,
			DurationMs: run.Int64(elapsedMs),
			Logs:       []string{Truncate(text, maxEchoedChars)},
			Failure:    run.FailureOther,
		}
	}
	return FromJSON(parsed.Value, elapsedMs)
}

// FromJSON coerces a decoded model payload into a success outcome.
func FromJSON(v gjson.Result, elapsedMs int64) run.Outcome {
	stdout := stringify(v.Get("stdout"))
	stderr := stringify(v.Get("stderr"))

	var exitCode int
	if ec := v.Get("exitCode"); ec.Type == gjson.Number {
		exitCode = int(ec.Int())
	} else if truthy(v.Get("error")) || stderr != "" {
		exitCode = 1
	}

	durationMs := elapsedMs
	if d := v.Get("durationMs"); d.Type == gjson.Number {
		durationMs = int64(math.Round(d.Num))
	}

	sOut, outCut := Sanitize(stdout)
	sErr, errCut := Sanitize(stderr)
	truncated := outCut || errCut

	logs := clampLogs(v.Get("logs"), truncated)
	if truncated {
		logs = append(logs, run.TruncatedNotice)
	}

	return run.Outcome{
		Status:     run.StatusSuccess,
		Stdout:     sOut,
		Stderr:     sErr,
		ExitCode:   run.Int(exitCode),
		DurationMs: run.Int64(durationMs),
		Logs:       logs,
	}
}

// Sanitize truncates s to the output ceiling and appends the marker when it
// had to cut.
func Sanitize(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= run.MaxOutputChars {
		return s, false
	}
	return Truncate(s, run.MaxOutputChars) + run.TruncatedMarker, true
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// clampLogs keeps the first entries of an array value. One slot is reserved
// when a truncation notice will be appended.
func clampLogs(v gjson.Result, reserve bool) []string {
	limit := run.MaxLogEntries
	if reserve {
		limit--
	}
	logs := []string{}
	if !v.IsArray() {
		return logs
	}
	for _, item := range v.Array() {
		if len(logs) == limit {
			break
		}
		logs = append(logs, stringify(item))
	}
	return logs
}

func stringify(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	default:
		return v.String()
	}
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	}
	return false
}
