package runtime

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hirewire/interview-core/internal/config"
	"github.com/hirewire/interview-core/internal/evaluate"
	"github.com/hirewire/interview-core/internal/pipeline"
	"github.com/hirewire/interview-core/internal/questions"
	"github.com/hirewire/interview-core/internal/session"
	"github.com/hirewire/interview-core/internal/store"
	"github.com/hirewire/interview-core/internal/transcribe"
)

func newTestRuntime(t *testing.T) (*Runtime, *http.ServeMux) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := config.Default()
	cfg.Store = config.StoreConfig{Mode: "ephemeral"}
	cfg.Questions.Count = 2

	st, err := store.Open(t.Context(), cfg.Store, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	adapter, err := transcribe.NewAdapter(cfg.Transcription, logger)
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}
	completer, err := evaluate.NewCompleter(cfg.Evaluation)
	if err != nil {
		t.Fatalf("build completer: %v", err)
	}
	engine := evaluate.NewEngine(cfg.Evaluation, completer, logger)
	generator, err := questions.NewGenerator(cfg.Questions, completer)
	if err != nil {
		t.Fatalf("build generator: %v", err)
	}
	coordinator, err := pipeline.New(cfg, st, adapter, engine, generator, nil, logger)
	if err != nil {
		t.Fatalf("build coordinator: %v", err)
	}
	t.Cleanup(coordinator.Close)

	rt := &Runtime{cfg: cfg, logger: logger, coordinator: coordinator}
	rt.ready.Store(true)
	return rt, rt.routes(nil)
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, mux *http.ServeMux, role string) session.Session {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/v1/sessions", fmt.Sprintf(`{"role":%q}`, role))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", rec.Code, rec.Body.String())
	}
	var sess session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return sess
}

func waitForState(t *testing.T, mux *http.ServeMux, id string, want session.State) session.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var sess session.Session
	for time.Now().Before(deadline) {
		rec := doJSON(t, mux, http.MethodGet, "/v1/sessions/"+id, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get session: status %d body %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
			t.Fatalf("decode session: %v", err)
		}
		if sess.State == want || sess.State == session.StateFailed {
			return sess
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %s, last state %s", id, want, sess.State)
	return sess
}

func TestCreateSessionReturnsQuestions(t *testing.T) {
	_, mux := newTestRuntime(t)

	sess := createSession(t, mux, "Backend Engineer")
	if sess.State != session.StateAwaitingResponses {
		t.Fatalf("expected awaiting_responses, got %s", sess.State)
	}
	if len(sess.Questions) != 2 || sess.Introduction == "" {
		t.Fatalf("expected 2 questions and an introduction: %+v", sess)
	}
}

func TestCreateSessionRejectsEmptyRole(t *testing.T) {
	_, mux := newTestRuntime(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/sessions", `{"role":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestResponsesDriveSessionToReport(t *testing.T) {
	_, mux := newTestRuntime(t)
	sess := createSession(t, mux, "Backend Engineer")

	rec := doJSON(t, mux, http.MethodGet, "/v1/sessions/"+sess.ID+"/report", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("report before completion must be 409, got %d", rec.Code)
	}

	for ordinal := 0; ordinal < 2; ordinal++ {
		body := fmt.Sprintf(`{"ordinal":%d,"media_ref":"media://r%d"}`, ordinal, ordinal)
		rec := doJSON(t, mux, http.MethodPost, "/v1/sessions/"+sess.ID+"/responses", body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("submit response %d: status %d body %s", ordinal, rec.Code, rec.Body.String())
		}
	}

	final := waitForState(t, mux, sess.ID, session.StateCompleted)
	if final.State != session.StateCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.State, final.FailureReason)
	}

	rec = doJSON(t, mux, http.MethodGet, "/v1/sessions/"+sess.ID+"/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get report: status %d body %s", rec.Code, rec.Body.String())
	}
	var report session.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Recommendation == "" || len(report.SkillScores) == 0 {
		t.Fatalf("incomplete report: %+v", report)
	}
}

func TestDuplicateResponseConflicts(t *testing.T) {
	_, mux := newTestRuntime(t)
	sess := createSession(t, mux, "Backend Engineer")

	body := `{"ordinal":0,"media_ref":"media://r0"}`
	if rec := doJSON(t, mux, http.MethodPost, "/v1/sessions/"+sess.ID+"/responses", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first submit: %d", rec.Code)
	}
	if rec := doJSON(t, mux, http.MethodPost, "/v1/sessions/"+sess.ID+"/responses", body); rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate submit should be 400, got %d", rec.Code)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	_, mux := newTestRuntime(t)

	if rec := doJSON(t, mux, http.MethodGet, "/v1/sessions/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doJSON(t, mux, http.MethodPost, "/v1/sessions/nope/questions", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRegenerateQuestionsConflicts(t *testing.T) {
	_, mux := newTestRuntime(t)
	sess := createSession(t, mux, "Backend Engineer")

	rec := doJSON(t, mux, http.MethodPost, "/v1/sessions/"+sess.ID+"/questions", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("regeneration after success should be 409, got %d", rec.Code)
	}
}

func TestListSessionsFilters(t *testing.T) {
	_, mux := newTestRuntime(t)
	createSession(t, mux, "Backend Engineer")
	createSession(t, mux, "Data Scientist")

	rec := doJSON(t, mux, http.MethodGet, "/v1/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var all []session.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(all))
	}

	rec = doJSON(t, mux, http.MethodGet, "/v1/sessions?role=Backend+Engineer", "")
	var filtered []session.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Role != "Backend Engineer" {
		t.Fatalf("role filter failed: %+v", filtered)
	}
}

func TestHealthEndpoints(t *testing.T) {
	rt, mux := newTestRuntime(t)

	if rec := doJSON(t, mux, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := doJSON(t, mux, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
	rt.ready.Store(false)
	if rec := doJSON(t, mux, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz while stopping: %d", rec.Code)
	}
}
