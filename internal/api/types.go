package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"run-sphere/internal/runtime"
	"run-sphere/internal/service"
)

// RunRequest is the body of POST /api/run. Fields are decoded loosely so
// that wrongly typed values surface as validation errors rather than
// decode failures.
type RunRequest struct {
	Language  json.RawMessage `json:"language"`
	Code      json.RawMessage `json:"code"`
	Stdin     json.RawMessage `json:"stdin,omitempty"`
	TimeoutMs json.RawMessage `json:"timeoutMs,omitempty"`
}

var errNotObject = errors.New("request body must be a JSON object")

// decodeRunRequest parses body into a submission. An empty body is treated
// as an empty object.
func decodeRunRequest(body []byte) (service.SubmitInput, error) {
	var in service.SubmitInput
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return in, nil
	}
	if body[0] != '{' {
		return in, errNotObject
	}

	var req RunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return in, fmt.Errorf("decoding run request: %w", err)
	}

	in.Code, _ = rawString(req.Code)
	in.Language, _ = rawString(req.Language)
	if s, ok := rawString(req.Stdin); ok {
		in.Stdin = s
	} else if len(req.Stdin) > 0 && string(req.Stdin) != "null" {
		in.Stdin = string(req.Stdin)
	}

	// null unmarshals into a nil pointer and selects the default, like an
	// omitted field.
	var ms *float64
	if len(req.TimeoutMs) > 0 && json.Unmarshal(req.TimeoutMs, &ms) == nil {
		in.TimeoutMs = ms
	}
	return in, nil
}

// rawString reports the string held by raw, or false if raw is not a JSON
// string.
func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	OK       bool   `json:"ok"`
	Time     string `json:"time"`
	Uptime   string `json:"uptime"`
	Database *bool  `json:"database,omitempty"`
}

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Name        string           `json:"name"`
	DisplayName string           `json:"displayName"`
	Extension   string           `json:"extension"`
	Examples    runtime.Examples `json:"examples"`
}

// DeleteProgramsRequest is the body of POST /api/programs/delete.
type DeleteProgramsRequest struct {
	IDs []string `json:"ids"`
}
