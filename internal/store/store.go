package store

import (
	"context"
	"errors"
	"time"

	"github.com/hearsaylabs/depogateway/internal/scoring"
	"github.com/hearsaylabs/depogateway/internal/transcript"
)

var ErrNotFound = errors.New("record not found")

// Case is the matter a practice deposition belongs to. Full case CRUD lives
// in the application's record service; this store carries the minimum the
// gateway needs to validate references and track activity.
type Case struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is one recorded practice deposition attempt (a "simulation").
// It starts life either as a stub created after a recording upload, or as a
// fresh record created on first webhook receipt, and is merged into by the
// reconciler. Sessions are never hard-deleted here.
type Session struct {
	ID             string `json:"id"`
	CaseID         string `json:"case_id"`
	ClientID       string `json:"client_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	EventType      string `json:"event_type,omitempty"`
	Stage          *int   `json:"stage,omitempty"`
	Status         string `json:"status,omitempty"`
	StageStatus    string `json:"stage_status,omitempty"`

	Transcript        []transcript.Turn   `json:"transcript,omitempty"`
	Score             *int                `json:"score,omitempty"`
	ScoreReason       string              `json:"score_reason,omitempty"`
	FullAnalysis      string              `json:"full_analysis,omitempty"`
	TurnScores        []scoring.TurnScore `json:"turn_scores,omitempty"`
	CallDurationSecs  int                 `json:"call_duration_secs,omitempty"`
	TranscriptSummary string              `json:"transcript_summary,omitempty"`
	CallSummaryTitle  string              `json:"call_summary_title,omitempty"`
	RecordingKey      string              `json:"recording_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStub reports whether the session is still awaiting its webhook merge.
func (s Session) IsStub() bool {
	return s.FullAnalysis == ""
}

type Store interface {
	CreateCase(ctx context.Context, c Case) (Case, error)
	GetCase(ctx context.Context, id string) (Case, error)
	TouchCase(ctx context.Context, id string, at time.Time) error

	// ScoringPrompt returns the tenant's scoring policy for a case, empty
	// when none is configured.
	PutScoringPrompt(ctx context.Context, caseID, instructions string) error
	ScoringPrompt(ctx context.Context, caseID string) (string, error)

	CreateSession(ctx context.Context, s Session) (Session, error)
	UpdateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	FindSessionByConversationID(ctx context.Context, conversationID string) (Session, bool, error)

	// ResolveSession is the single atomic find-or-create used by the
	// reconciler: match by conversation id first, then the newest stub for
	// the case created after stubAfter, else create a fresh record. Two
	// concurrent deliveries for one conversation must converge on one row.
	ResolveSession(ctx context.Context, caseID, conversationID string, stubAfter time.Time) (Session, error)
}
