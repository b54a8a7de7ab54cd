package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/hirewire/interview-core/internal/bus"
	"github.com/hirewire/interview-core/internal/config"
	"github.com/hirewire/interview-core/internal/evaluate"
	"github.com/hirewire/interview-core/internal/protocol"
	"github.com/hirewire/interview-core/internal/questions"
	"github.com/hirewire/interview-core/internal/session"
	"github.com/hirewire/interview-core/internal/store"
	"github.com/hirewire/interview-core/internal/transcribe"
)

// ErrReportNotReady is returned when a report is requested before the
// session has completed.
var ErrReportNotReady = errors.New("report not available until session completes")

// Transcriber is the speech-to-text surface the coordinator drives.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaRef string, preferred []string) (transcribe.Transcription, error)
}

// Evaluator turns a transcript set into a report.
type Evaluator interface {
	Evaluate(ctx context.Context, role, language string, items []evaluate.QA) (*session.Report, error)
}

// entry serializes all mutations of one session. Every state change
// happens under this lock, so each session has exactly one writer at a
// time even while background transcription is running.
type entry struct {
	mu   sync.Mutex
	sess *session.Session
}

// Coordinator owns the interview lifecycle: it creates sessions, collects
// responses, and drives the transcription and evaluation stages in the
// background once the last response arrives.
type Coordinator struct {
	cfg         config.Config
	store       *store.Store
	transcriber Transcriber
	evaluator   Evaluator
	generator   questions.Generator
	events      *bus.Client
	log         *slog.Logger
	clock       func() time.Time
	newID       func() string

	metrics metrics

	mu       sync.Mutex
	sessions map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type metrics struct {
	sessionsStarted      otelmetric.Int64Counter
	sessionsCompleted    otelmetric.Int64Counter
	sessionsFailed       otelmetric.Int64Counter
	transcriptionSeconds otelmetric.Float64Histogram
	evaluationSeconds    otelmetric.Float64Histogram
}

func newMetrics() (metrics, error) {
	meter := otel.Meter("github.com/hirewire/interview-core/internal/pipeline")
	var m metrics
	var err error
	if m.sessionsStarted, err = meter.Int64Counter("interview_sessions_started_total",
		otelmetric.WithDescription("Sessions created")); err != nil {
		return m, err
	}
	if m.sessionsCompleted, err = meter.Int64Counter("interview_sessions_completed_total",
		otelmetric.WithDescription("Sessions that produced a report")); err != nil {
		return m, err
	}
	if m.sessionsFailed, err = meter.Int64Counter("interview_sessions_failed_total",
		otelmetric.WithDescription("Sessions that ended in the failed state")); err != nil {
		return m, err
	}
	if m.transcriptionSeconds, err = meter.Float64Histogram("interview_transcription_seconds",
		otelmetric.WithDescription("Wall time of the transcription stage per session")); err != nil {
		return m, err
	}
	if m.evaluationSeconds, err = meter.Float64Histogram("interview_evaluation_seconds",
		otelmetric.WithDescription("Wall time of the evaluation stage per session")); err != nil {
		return m, err
	}
	return m, nil
}

func New(cfg config.Config, st *store.Store, transcriber Transcriber, evaluator Evaluator,
	generator questions.Generator, events *bus.Client, log *slog.Logger) (*Coordinator, error) {

	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("register pipeline metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:         cfg,
		store:       st,
		transcriber: transcriber,
		evaluator:   evaluator,
		generator:   generator,
		events:      events,
		log:         log.With(slog.String("component", "pipeline")),
		clock:       time.Now,
		newID:       uuid.NewString,
		metrics:     m,
		sessions:    make(map[string]*entry),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Close stops background work and waits for in-flight stages to exit.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// StartSession creates a session and attempts question generation
// immediately. If generation fails the session is still created and
// stays retryable via GenerateQuestions.
func (c *Coordinator) StartSession(ctx context.Context, role, language string) (*session.Session, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, errors.New("role must not be empty")
	}

	sess := session.New(c.newID(), role, language, c.clock())
	e := &entry{sess: sess}
	c.mu.Lock()
	c.sessions[sess.ID] = e
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := c.generateLocked(ctx, sess); err != nil {
		c.log.Warn("question generation failed, session left in created state",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
	}
	if err := c.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	c.metrics.sessionsStarted.Add(ctx, 1)
	c.events.Publish(protocol.SubjectSessionCreated, protocol.SessionEvent{
		SessionID: sess.ID,
		Role:      sess.Role,
		State:     string(sess.State),
		Timestamp: c.clock().UTC(),
	})
	c.log.Info("session started",
		slog.String("session_id", sess.ID),
		slog.String("role", sess.Role),
		slog.String("state", string(sess.State)))

	return sess.Snapshot(), nil
}

// GenerateQuestions retries question generation for a session still in
// its created state.
func (c *Coordinator) GenerateQuestions(ctx context.Context, id string) (*session.Session, error) {
	e, err := c.entryFor(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.State != session.StateCreated {
		return nil, fmt.Errorf("%w: questions already generated in state %s",
			session.ErrInvalidTransition, e.sess.State)
	}
	if err := c.generateLocked(ctx, e.sess); err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, e.sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	c.publishState(e.sess)
	return e.sess.Snapshot(), nil
}

func (c *Coordinator) generateLocked(ctx context.Context, sess *session.Session) error {
	texts, err := c.generator.Generate(ctx, sess.Role, sess.Language, c.cfg.Questions.Count)
	if err != nil {
		return err
	}
	return sess.AttachQuestions(texts, questions.Introduction(sess.Role, len(texts)), c.clock())
}

// SubmitResponse records the media reference for one question. When the
// final response arrives the session moves to transcribing and the
// background stage starts.
func (c *Coordinator) SubmitResponse(ctx context.Context, id string, ordinal int, mediaRef string) (*session.Session, error) {
	e, err := c.entryFor(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sess
	if err := sess.AddResponse(ordinal, mediaRef, c.clock()); err != nil {
		return nil, err
	}

	if sess.AllResponsesIn() {
		if err := sess.BeginTranscribing(c.clock()); err != nil {
			return nil, err
		}
		// the transition already happened and the background stage will
		// persist again, so a failed Put here must not fail the call
		c.persist(ctx, sess)
		c.wg.Add(1)
		go c.run(e)
		c.publishState(sess)
		return sess.Snapshot(), nil
	}

	if err := c.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sess.Snapshot(), nil
}

// GetStatus returns a point-in-time copy of the session.
func (c *Coordinator) GetStatus(ctx context.Context, id string) (*session.Session, error) {
	e, err := c.entryFor(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Snapshot(), nil
}

// GetReport returns the final report of a completed session.
func (c *Coordinator) GetReport(ctx context.Context, id string) (*session.Report, error) {
	e, err := c.entryFor(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.State != session.StateCompleted {
		return nil, fmt.Errorf("%w: session %s is %s", ErrReportNotReady, id, e.sess.State)
	}
	return e.sess.Snapshot().Report, nil
}

// List returns stored session summaries, newest first.
func (c *Coordinator) List(ctx context.Context, filter store.Filter) ([]session.Summary, error) {
	return c.store.List(ctx, filter)
}

// entryFor returns the live entry for a session, rehydrating it from the
// store when the process has restarted since the session was created.
func (c *Coordinator) entryFor(ctx context.Context, id string) (*entry, error) {
	c.mu.Lock()
	e, ok := c.sessions[id]
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	sess, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sessions[id]; ok {
		return existing, nil
	}
	e = &entry{sess: sess}
	c.sessions[id] = e
	return e, nil
}

// run drives one session through transcription and evaluation. It is the
// only writer of the session while it runs; the state machine rejects
// external mutations in the transcribing and evaluating states.
func (c *Coordinator) run(e *entry) {
	defer c.wg.Done()
	ctx := c.ctx

	e.mu.Lock()
	sess := e.sess
	id := sess.ID
	role := sess.Role
	language := sess.Language
	type job struct {
		ordinal  int
		question string
		mediaRef string
	}
	jobs := make([]job, 0, len(sess.Questions))
	for _, q := range sess.Questions {
		jobs = append(jobs, job{ordinal: q.Ordinal, question: q.Text, mediaRef: sess.Responses[q.Ordinal].MediaRef})
	}
	e.mu.Unlock()

	maxParallel := c.cfg.Transcription.MaxParallel
	if maxParallel < 1 {
		maxParallel = 1
	}
	sem := make(chan struct{}, maxParallel)
	results := make([]transcribe.Transcription, len(jobs))
	errs := make([]error, len(jobs))

	start := c.clock()
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, mediaRef string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = c.transcriber.Transcribe(ctx, mediaRef, nil)
		}(i, j.mediaRef)
	}
	wg.Wait()
	c.metrics.transcriptionSeconds.Record(ctx, c.clock().Sub(start).Seconds())

	e.mu.Lock()
	attemptsNow := c.clock()
	for i, j := range jobs {
		if err := sess.RecordAttempts(j.ordinal, toAttempts(results[i].Attempts), attemptsNow); err != nil {
			c.log.Error("failed to record attempt history",
				slog.String("session_id", id),
				slog.Int("ordinal", j.ordinal),
				slog.String("error", err.Error()))
		}
	}
	for i, err := range errs {
		if err != nil {
			c.log.Error("transcription exhausted all providers",
				slog.String("session_id", id),
				slog.Int("ordinal", jobs[i].ordinal),
				slog.String("error", err.Error()),
				slog.String("attempts", describeAttempts(results[i].Attempts)))
			c.failLocked(ctx, sess, session.ReasonTranscriptionFailed)
			e.mu.Unlock()
			return
		}
	}

	now := c.clock()
	for i, j := range jobs {
		r := results[i]
		if err := sess.SetTranscript(j.ordinal, r.Text, r.Provider, r.Empty, now); err != nil {
			c.log.Error("failed to record transcript",
				slog.String("session_id", id),
				slog.Int("ordinal", j.ordinal),
				slog.String("error", err.Error()))
			c.failLocked(ctx, sess, session.ReasonTranscriptionFailed)
			e.mu.Unlock()
			return
		}
		c.events.Publish(protocol.SubjectTranscriptFinal, protocol.TranscriptEvent{
			SessionID: id,
			Ordinal:   j.ordinal,
			Provider:  r.Provider,
			Text:      r.Text,
			Empty:     r.Empty,
			Timestamp: now.UTC(),
		})
	}

	if err := sess.BeginEvaluating(c.clock()); err != nil {
		c.log.Error("failed to enter evaluation",
			slog.String("session_id", id), slog.String("error", err.Error()))
		c.failLocked(ctx, sess, session.ReasonEvaluationFailed)
		e.mu.Unlock()
		return
	}
	c.persist(ctx, sess)
	c.publishState(sess)

	qas := make([]evaluate.QA, 0, len(jobs))
	for i, j := range jobs {
		qas = append(qas, evaluate.QA{
			Ordinal:    j.ordinal,
			Question:   j.question,
			Transcript: results[i].Text,
			Empty:      results[i].Empty,
		})
	}
	e.mu.Unlock()

	evalStart := c.clock()
	report, err := c.evaluator.Evaluate(ctx, role, language, qas)
	c.metrics.evaluationSeconds.Record(ctx, c.clock().Sub(evalStart).Seconds())

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		c.log.Error("evaluation failed",
			slog.String("session_id", id), slog.String("error", err.Error()))
		c.failLocked(ctx, sess, session.ReasonEvaluationFailed)
		return
	}
	if err := sess.AttachReport(report, c.clock()); err != nil {
		c.log.Error("failed to attach report",
			slog.String("session_id", id), slog.String("error", err.Error()))
		c.failLocked(ctx, sess, session.ReasonEvaluationFailed)
		return
	}
	c.persist(ctx, sess)
	c.metrics.sessionsCompleted.Add(ctx, 1)
	c.publishState(sess)
	c.events.Publish(protocol.SubjectReportReady, protocol.ReportEvent{
		SessionID:      id,
		Role:           role,
		Recommendation: string(report.Recommendation),
		GeneratedFrom:  report.GeneratedFrom,
		Timestamp:      c.clock().UTC(),
	})
	c.log.Info("session completed",
		slog.String("session_id", id),
		slog.String("recommendation", string(report.Recommendation)))
}

func toAttempts(attempts []transcribe.Attempt) []session.TranscriptAttempt {
	out := make([]session.TranscriptAttempt, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, session.TranscriptAttempt{
			Provider:  a.Provider,
			Outcome:   a.Outcome,
			Error:     a.Error,
			LatencyMS: a.Latency.Milliseconds(),
		})
	}
	return out
}

func describeAttempts(attempts []transcribe.Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		part := fmt.Sprintf("%s=%s(%s)", a.Provider, a.Outcome, a.Latency.Round(time.Millisecond))
		if a.Error != "" {
			part += ": " + a.Error
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

func (c *Coordinator) failLocked(ctx context.Context, sess *session.Session, reason session.FailureReason) {
	if err := sess.Fail(reason, c.clock()); err != nil {
		c.log.Error("failed to mark session failed",
			slog.String("session_id", sess.ID), slog.String("error", err.Error()))
		return
	}
	c.persist(ctx, sess)
	c.metrics.sessionsFailed.Add(ctx, 1,
		otelmetric.WithAttributes(attribute.String("reason", string(reason))))
	c.publishState(sess)
}

// persist is best effort on the background path; the live entry stays
// authoritative and the next successful Put catches the store up.
func (c *Coordinator) persist(ctx context.Context, sess *session.Session) {
	if err := c.store.Put(ctx, sess); err != nil {
		c.log.Error("failed to persist session",
			slog.String("session_id", sess.ID), slog.String("error", err.Error()))
	}
}

func (c *Coordinator) publishState(sess *session.Session) {
	c.events.Publish(protocol.SubjectSessionState, protocol.SessionEvent{
		SessionID: sess.ID,
		Role:      sess.Role,
		State:     string(sess.State),
		Reason:    string(sess.FailureReason),
		Timestamp: c.clock().UTC(),
	})
}
