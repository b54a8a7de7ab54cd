package protocol

import "time"

// SessionEvent announces a session lifecycle change on the bus.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptEvent announces one finished response transcription.
type TranscriptEvent struct {
	SessionID string    `json:"session_id"`
	Ordinal   int       `json:"ordinal"`
	Provider  string    `json:"provider,omitempty"`
	Text      string    `json:"text,omitempty"`
	Empty     bool      `json:"empty,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReportEvent announces that a final report is available.
type ReportEvent struct {
	SessionID      string    `json:"session_id"`
	Role           string    `json:"role"`
	Recommendation string    `json:"recommendation"`
	GeneratedFrom  string    `json:"generated_from"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	SubjectSessionCreated  = "interview.session.created"
	SubjectSessionState    = "interview.session.state"
	SubjectTranscriptFinal = "interview.transcript.final"
	SubjectReportReady     = "interview.report.ready"
)
