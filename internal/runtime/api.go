package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hirewire/interview-core/internal/pipeline"
	"github.com/hirewire/interview-core/internal/questions"
	"github.com/hirewire/interview-core/internal/session"
	"github.com/hirewire/interview-core/internal/store"
)

func (r *Runtime) routes(metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	mux.HandleFunc("POST /v1/sessions", r.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", r.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", r.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/questions", r.handleGenerateQuestions)
	mux.HandleFunc("POST /v1/sessions/{id}/responses", r.handleSubmitResponse)
	mux.HandleFunc("GET /v1/sessions/{id}/report", r.handleGetReport)
	return mux
}

type createSessionRequest struct {
	Role     string `json:"role"`
	Language string `json:"language,omitempty"`
}

type submitResponseRequest struct {
	Ordinal  int    `json:"ordinal"`
	MediaRef string `json:"media_ref"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r *Runtime) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := r.coordinator.StartSession(req.Context(), body.Role, body.Language)
	if err != nil {
		r.writeError(w, statusFor(err), err)
		return
	}
	r.writeJSON(w, http.StatusCreated, sess)
}

func (r *Runtime) handleGenerateQuestions(w http.ResponseWriter, req *http.Request) {
	sess, err := r.coordinator.GenerateQuestions(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeError(w, statusFor(err), err)
		return
	}
	r.writeJSON(w, http.StatusOK, sess)
}

func (r *Runtime) handleSubmitResponse(w http.ResponseWriter, req *http.Request) {
	var body submitResponseRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := r.coordinator.SubmitResponse(req.Context(), req.PathValue("id"), body.Ordinal, body.MediaRef)
	if err != nil {
		r.writeError(w, statusFor(err), err)
		return
	}
	r.writeJSON(w, http.StatusAccepted, sess)
}

func (r *Runtime) handleGetSession(w http.ResponseWriter, req *http.Request) {
	sess, err := r.coordinator.GetStatus(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeError(w, statusFor(err), err)
		return
	}
	r.writeJSON(w, http.StatusOK, sess)
}

func (r *Runtime) handleGetReport(w http.ResponseWriter, req *http.Request) {
	report, err := r.coordinator.GetReport(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeError(w, statusFor(err), err)
		return
	}
	r.writeJSON(w, http.StatusOK, report)
}

func (r *Runtime) handleListSessions(w http.ResponseWriter, req *http.Request) {
	filter := store.Filter{
		Role:  req.URL.Query().Get("role"),
		State: session.State(req.URL.Query().Get("state")),
	}
	summaries, err := r.coordinator.List(req.Context(), filter)
	if err != nil {
		r.writeError(w, statusFor(err), err)
		return
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}
	r.writeJSON(w, http.StatusOK, summaries)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, pipeline.ErrReportNotReady):
		return http.StatusConflict
	case errors.Is(err, questions.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func (r *Runtime) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		r.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (r *Runtime) writeError(w http.ResponseWriter, status int, err error) {
	r.writeJSON(w, status, errorResponse{Error: err.Error()})
}
