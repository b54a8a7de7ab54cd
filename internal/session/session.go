package session

import (
	"errors"
	"fmt"
	"time"
)

// State is a lifecycle phase of one candidate interview.
type State string

const (
	StateCreated            State = "created"
	StateQuestionsGenerated State = "questions_generated"
	StateAwaitingResponses  State = "awaiting_responses"
	StateTranscribing       State = "transcribing"
	StateEvaluating         State = "evaluating"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// FailureReason records why a session ended in StateFailed.
type FailureReason string

const (
	ReasonTranscriptionFailed FailureReason = "transcription_failed"
	ReasonEvaluationFailed    FailureReason = "evaluation_failed"
)

// Recommendation is the closed set of hiring outcomes a report may carry.
type Recommendation string

const (
	StrongHire   Recommendation = "strong_hire"
	Hire         Recommendation = "hire"
	NoHire       Recommendation = "no_hire"
	StrongNoHire Recommendation = "strong_no_hire"
)

// ErrInvalidTransition is returned for any operation not legal in the
// session's current state. The session is left unchanged.
var ErrInvalidTransition = errors.New("invalid session transition")

// forward edges only; StateFailed is reachable from every non-terminal
// state through Fail. Terminal states have no outgoing edges.
var transitions = map[State]State{
	StateCreated:            StateQuestionsGenerated,
	StateQuestionsGenerated: StateAwaitingResponses,
	StateAwaitingResponses:  StateTranscribing,
	StateTranscribing:       StateEvaluating,
	StateEvaluating:         StateCompleted,
}

type Question struct {
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
}

// TranscriptAttempt is one provider call made while transcribing a
// response, kept on the session so failed sessions retain their
// diagnosis data.
type TranscriptAttempt struct {
	Provider  string `json:"provider"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Response is one recorded answer. Once Transcribed is set the response
// is immutable.
type Response struct {
	Ordinal          int                 `json:"ordinal"`
	MediaRef         string              `json:"media_ref"`
	Transcript       string              `json:"transcript,omitempty"`
	TranscriptSource string              `json:"transcript_source,omitempty"`
	Empty            bool                `json:"empty,omitempty"`
	Transcribed      bool                `json:"transcribed,omitempty"`
	Attempts         []TranscriptAttempt `json:"attempts,omitempty"`
}

// Report is the derived evaluation of a completed session. It is created
// once and never mutated; regeneration would produce a new object.
type Report struct {
	SkillScores    map[string]int `json:"skill_scores"`
	Recommendation Recommendation `json:"recommendation"`
	Narrative      string         `json:"narrative"`
	GeneratedFrom  string         `json:"generated_from"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Session is one candidate interview and its full lifecycle state. It is
// not safe for concurrent use; the pipeline coordinator enforces a single
// writer per session id.
type Session struct {
	ID            string            `json:"id"`
	Role          string            `json:"role"`
	Language      string            `json:"language,omitempty"`
	Introduction  string            `json:"introduction,omitempty"`
	State         State             `json:"state"`
	FailureReason FailureReason     `json:"failure_reason,omitempty"`
	Questions     []Question        `json:"questions,omitempty"`
	Responses     map[int]*Response `json:"responses,omitempty"`
	Report        *Report           `json:"report,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func New(id, role, language string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Role:      role,
		Language:  language,
		State:     StateCreated,
		Responses: make(map[int]*Response),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Terminal reports whether the session can make no further transitions.
func (s *Session) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

func (s *Session) transition(to State, now time.Time) error {
	next, ok := transitions[s.State]
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	s.UpdatedAt = now.UTC()
	return nil
}

// Fail moves the session to its terminal failed state. Partial data
// (questions, transcripts already obtained) is retained for audit.
func (s *Session) Fail(reason FailureReason, now time.Time) error {
	if s.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, StateFailed)
	}
	s.State = StateFailed
	s.FailureReason = reason
	s.UpdatedAt = now.UTC()
	return nil
}

// AttachQuestions fixes the question sequence and advances the session to
// awaiting responses. The questions_generated state is passed through
// because attaching questions is what completes generation.
func (s *Session) AttachQuestions(texts []string, introduction string, now time.Time) error {
	if s.State != StateCreated {
		return fmt.Errorf("%w: questions may only be attached in %s state, session is %s",
			ErrInvalidTransition, StateCreated, s.State)
	}
	if len(texts) == 0 {
		return errors.New("question list must not be empty")
	}
	questions := make([]Question, len(texts))
	for i, text := range texts {
		questions[i] = Question{Ordinal: i, Text: text}
	}
	s.Questions = questions
	s.Introduction = introduction
	if err := s.transition(StateQuestionsGenerated, now); err != nil {
		return err
	}
	return s.transition(StateAwaitingResponses, now)
}

// AddResponse records the media reference for one question ordinal.
// Ordinals outside the question sequence and duplicate submissions are
// rejected without state change.
func (s *Session) AddResponse(ordinal int, mediaRef string, now time.Time) error {
	if s.State != StateAwaitingResponses {
		return fmt.Errorf("%w: responses not accepted in state %s", ErrInvalidTransition, s.State)
	}
	if ordinal < 0 || ordinal >= len(s.Questions) {
		return fmt.Errorf("ordinal %d out of range [0,%d)", ordinal, len(s.Questions))
	}
	if _, exists := s.Responses[ordinal]; exists {
		return fmt.Errorf("ordinal %d already has a response", ordinal)
	}
	if mediaRef == "" {
		return errors.New("media ref must not be empty")
	}
	s.Responses[ordinal] = &Response{Ordinal: ordinal, MediaRef: mediaRef}
	s.UpdatedAt = now.UTC()
	return nil
}

// AllResponsesIn reports whether every question ordinal has a response.
func (s *Session) AllResponsesIn() bool {
	if len(s.Questions) == 0 {
		return false
	}
	for _, q := range s.Questions {
		if _, ok := s.Responses[q.Ordinal]; !ok {
			return false
		}
	}
	return true
}

// BeginTranscribing moves the session out of response collection. Legal
// only once every ordinal has a media reference.
func (s *Session) BeginTranscribing(now time.Time) error {
	if !s.AllResponsesIn() {
		return fmt.Errorf("%w: not all responses submitted", ErrInvalidTransition)
	}
	return s.transition(StateTranscribing, now)
}

// SetTranscript records the transcription outcome for one response.
// A response accepts exactly one transcript write.
func (s *Session) SetTranscript(ordinal int, text, source string, empty bool, now time.Time) error {
	if s.State != StateTranscribing {
		return fmt.Errorf("%w: transcripts not accepted in state %s", ErrInvalidTransition, s.State)
	}
	resp, ok := s.Responses[ordinal]
	if !ok {
		return fmt.Errorf("no response for ordinal %d", ordinal)
	}
	if resp.Transcribed {
		return fmt.Errorf("ordinal %d already transcribed", ordinal)
	}
	resp.Transcript = text
	resp.TranscriptSource = source
	resp.Empty = empty
	resp.Transcribed = true
	s.UpdatedAt = now.UTC()
	return nil
}

// RecordAttempts stores the provider attempt history for one response.
// Unlike SetTranscript this is legal whether or not the chain produced a
// usable result, so the history survives a transcription failure.
func (s *Session) RecordAttempts(ordinal int, attempts []TranscriptAttempt, now time.Time) error {
	if s.State != StateTranscribing {
		return fmt.Errorf("%w: attempts not accepted in state %s", ErrInvalidTransition, s.State)
	}
	resp, ok := s.Responses[ordinal]
	if !ok {
		return fmt.Errorf("no response for ordinal %d", ordinal)
	}
	resp.Attempts = append([]TranscriptAttempt(nil), attempts...)
	s.UpdatedAt = now.UTC()
	return nil
}

// BeginEvaluating requires every response to carry a transcription
// outcome, success or empty.
func (s *Session) BeginEvaluating(now time.Time) error {
	for _, q := range s.Questions {
		resp, ok := s.Responses[q.Ordinal]
		if !ok || !resp.Transcribed {
			return fmt.Errorf("%w: ordinal %d not transcribed", ErrInvalidTransition, q.Ordinal)
		}
	}
	return s.transition(StateEvaluating, now)
}

// AttachReport sets the final report and completes the session in one
// step, so readers never observe a report outside the completed state.
func (s *Session) AttachReport(report *Report, now time.Time) error {
	if report == nil {
		return errors.New("report must not be nil")
	}
	if err := s.transition(StateCompleted, now); err != nil {
		return err
	}
	s.Report = report
	return nil
}

// Snapshot returns a deep copy safe to hand to readers while the
// coordinator keeps mutating the original.
func (s *Session) Snapshot() *Session {
	copied := *s
	copied.Questions = append([]Question(nil), s.Questions...)
	copied.Responses = make(map[int]*Response, len(s.Responses))
	for ordinal, resp := range s.Responses {
		r := *resp
		r.Attempts = append([]TranscriptAttempt(nil), resp.Attempts...)
		copied.Responses[ordinal] = &r
	}
	if s.Report != nil {
		report := *s.Report
		report.SkillScores = make(map[string]int, len(s.Report.SkillScores))
		for skill, score := range s.Report.SkillScores {
			report.SkillScores[skill] = score
		}
		copied.Report = &report
	}
	return &copied
}

// Summary is the read-only listing shape exposed to collaborators.
type Summary struct {
	ID            string        `json:"id"`
	Role          string        `json:"role"`
	Language      string        `json:"language,omitempty"`
	State         State         `json:"state"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	QuestionCount int           `json:"question_count"`
	ResponseCount int           `json:"response_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (s *Session) Summarize() Summary {
	return Summary{
		ID:            s.ID,
		Role:          s.Role,
		Language:      s.Language,
		State:         s.State,
		FailureReason: s.FailureReason,
		QuestionCount: len(s.Questions),
		ResponseCount: len(s.Responses),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
