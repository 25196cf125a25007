package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"run-sphere/internal/programs"
	"run-sphere/internal/service"
	"run-sphere/internal/storage"
)

// RunHistory is the audit trail behind /api/runs.
type RunHistory interface {
	Healthy(ctx context.Context) bool
	GetRun(ctx context.Context, id string) (*storage.RunRecord, error)
	ListRuns(ctx context.Context, filter storage.RunFilter) ([]storage.RunRecord, error)
}

type Handlers struct {
	svc       *service.Service
	history   RunHistory     // nil without a database
	programs  programs.Store // nil when saved programs are disabled
	clientKey func(*http.Request) string
}

func NewHandlers(svc *service.Service, history RunHistory, store programs.Store, clientKey func(*http.Request) string) *Handlers {
	if clientKey == nil {
		clientKey = ClientKey(false)
	}
	return &Handlers{
		svc:       svc,
		history:   history,
		programs:  store,
		clientKey: clientKey,
	}
}

func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	in, err := decodeRunRequest(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid input", "Request body must be a JSON object.")
		return
	}
	in.ClientIP = h.clientKey(r)
	in.RequestID = RequestIDFromContext(r.Context())

	// A client that hangs up does not abandon the run; it is still stored
	// and can be fetched by id.
	res, err := h.svc.Submit(context.WithoutCancel(r.Context()), in)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			name := "Invalid input"
			if errors.Is(err, service.ErrInvalidLanguage) {
				name = "Invalid language"
			}
			writeError(w, r, http.StatusBadRequest, name, ve.Message)
			return
		}
		log.Error().Err(err).Str("request_id", in.RequestID).Msg("run failed")
		writeServerError(w, r)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Not Found", "Invalid run id")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	reg := h.svc.Runtimes()
	names := reg.Languages()

	langs := make([]LanguageInfo, 0, len(names))
	for _, name := range names {
		rt, err := reg.Get(name)
		if err != nil {
			continue
		}
		langs = append(langs, LanguageInfo{
			Name:        rt.Name(),
			DisplayName: rt.DisplayName(),
			Extension:   rt.FileExtension(),
			Examples:    rt.Examples(),
		})
	}
	writeJSON(w, http.StatusOK, langs)
}

func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "Run history requires a database.")
		return
	}

	q := r.URL.Query()
	filter := storage.RunFilter{
		Language: q.Get("language"),
		Status:   q.Get("status"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "Invalid input", name+" must be a non-negative integer.")
			return
		}
		*dst = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid input", "since must be an RFC 3339 timestamp.")
			return
		}
		filter.Since = &since
	}

	runs, err := h.history.ListRuns(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("listing runs failed")
		writeServerError(w, r)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "Run history requires a database.")
		return
	}

	rec, err := h.history.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Not Found", "Invalid run id")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("loading run failed")
		writeServerError(w, r)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) HandleListPrograms(w http.ResponseWriter, r *http.Request) {
	if !h.programsEnabled(w, r) {
		return
	}
	list, err := h.programs.ListPrograms(r.Context())
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) HandleSaveProgram(w http.ResponseWriter, r *http.Request) {
	if !h.programsEnabled(w, r) {
		return
	}
	var in programs.SaveInput
	if !decodeJSON(w, r, &in) {
		return
	}
	id, err := h.programs.SaveProgram(r.Context(), in)
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handlers) HandleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	if !h.programsEnabled(w, r) {
		return
	}
	var p programs.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	ok, err := h.programs.UpdateProgram(r.Context(), r.PathValue("id"), p)
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "Not Found", "Invalid program id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (h *Handlers) HandleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	if !h.programsEnabled(w, r) {
		return
	}
	ok, err := h.programs.DeleteProgram(r.Context(), r.PathValue("id"))
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": ok})
}

func (h *Handlers) HandleDeletePrograms(w http.ResponseWriter, r *http.Request) {
	if !h.programsEnabled(w, r) {
		return
	}
	var req DeleteProgramsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.programs.DeletePrograms(r.Context(), req.IDs)
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	if !h.programsEnabled(w, r) {
		return
	}
	settings, err := h.programs.LoadSettings(r.Context())
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handlers) HandleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if !h.programsEnabled(w, r) {
		return
	}
	var settings programs.Settings
	if !decodeJSON(w, r, &settings) {
		return
	}
	if settings == nil {
		writeError(w, r, http.StatusBadRequest, "Invalid input", "Settings must be a JSON object.")
		return
	}
	if err := h.programs.SaveSettings(r.Context(), settings); err != nil {
		h.storeFailed(w, r, err)
		return
	}
	merged, err := h.programs.LoadSettings(r.Context())
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (h *Handlers) HandleResetSettings(w http.ResponseWriter, r *http.Request) {
	if !h.programsEnabled(w, r) {
		return
	}
	defaults, err := h.programs.ResetSettings(r.Context())
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, defaults)
}

func (h *Handlers) programsEnabled(w http.ResponseWriter, r *http.Request) bool {
	if h.programs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "Saved programs are not configured.")
		return false
	}
	return true
}

func (h *Handlers) storeFailed(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).
		Str("path", r.URL.Path).
		Str("request_id", RequestIDFromContext(r.Context())).
		Msg("program store failed")
	writeServerError(w, r)
}

// readBody reads the whole request body, answering 413 when it exceeds the
// MaxBodyMiddleware limit.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "Payload Too Large",
				"Request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes.")
			return nil, false
		}
		writeError(w, r, http.StatusBadRequest, "Invalid input", "Could not read request body.")
		return nil, false
	}
	return body, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid input", "Request body must be valid JSON.")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, name, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     name,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func writeServerError(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusInternalServerError, "ServerError", "An unexpected error occurred.")
}
