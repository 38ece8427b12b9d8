package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearsaylabs/depogateway/internal/scoring"
	"github.com/hearsaylabs/depogateway/internal/store"
	"github.com/hearsaylabs/depogateway/internal/transcript"
	"github.com/hearsaylabs/depogateway/internal/webhook"
)

var (
	ErrUnauthorized = errors.New("webhook signature rejected")
	ErrBadRequest   = errors.New("malformed webhook payload")
	ErrNotFound     = errors.New("referenced case not found")
)

// DefaultStubWindow bounds how old an unresolved upload stub may be and
// still receive the webhook merge.
const DefaultStubWindow = 5 * time.Minute

// Scorer evaluates a normalized transcript. *scoring.Client satisfies this.
type Scorer interface {
	Score(ctx context.Context, turns []transcript.Turn, customInstructions string) (scoring.Result, error)
}

// Ack is the success body returned to the vendor. The vendor retries on any
// non-2xx, so the reconciler only errors when retrying could help.
type Ack struct {
	OK             bool   `json:"ok"`
	CaseID         string `json:"case_id"`
	EventType      string `json:"event_type,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	SimulationID   string `json:"simulation_id"`
}

// Reconciler merges a verified vendor webhook into the durable session
// record, creating one when neither a conversation match nor a recent
// upload stub exists.
type Reconciler struct {
	Store      store.Store
	Scorer     Scorer
	Secret     string
	MaxSkew    time.Duration
	StubWindow time.Duration
	Log        *slog.Logger
	Now        func() time.Time
}

func New(st store.Store, scorer Scorer, secret string, log *slog.Logger) *Reconciler {
	return &Reconciler{
		Store:      st,
		Scorer:     scorer,
		Secret:     secret,
		MaxSkew:    webhook.DefaultMaxSkew,
		StubWindow: DefaultStubWindow,
		Log:        log,
		Now:        time.Now,
	}
}

// HandleEvent processes one webhook delivery end to end: verify, parse,
// resolve the target session, score best-effort, merge, persist. Duplicate
// deliveries for the same conversation converge on one record with
// last-write-wins scoring fields.
func (r *Reconciler) HandleEvent(ctx context.Context, rawBody []byte, signatureHeader string) (Ack, error) {
	now := r.Now().UTC()

	if err := webhook.VerifySignature(r.Secret, signatureHeader, rawBody, now, r.MaxSkew); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	event, err := webhook.ParseEvent(rawBody)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	data := event.Data

	vars := data.DynamicVars()
	caseID := webhook.StringVar(vars, "case_id")
	if caseID == "" {
		return Ack{}, fmt.Errorf("%w: no case_id in dynamic variables", ErrBadRequest)
	}
	if _, err := r.Store.GetCase(ctx, caseID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Ack{}, fmt.Errorf("%w: case %s", ErrNotFound, caseID)
		}
		return Ack{}, fmt.Errorf("look up case %s: %w", caseID, err)
	}

	session, err := r.Store.ResolveSession(ctx, caseID, data.ConversationID, now.Add(-r.StubWindow))
	if err != nil {
		return Ack{}, fmt.Errorf("resolve session: %w", err)
	}

	if len(data.Transcript) > 0 {
		result := r.scoreTranscript(ctx, caseID, data.Transcript)
		session.Score = &result.Score
		session.ScoreReason = result.ScoreReason
		session.FullAnalysis = result.FullAnalysis
		session.TurnScores = result.TurnScores
		session.Transcript = data.Transcript
	}

	session.CaseID = caseID
	// A redelivery may omit the conversation id; never erase one a prior
	// merge already recorded.
	if data.ConversationID != "" {
		session.ConversationID = data.ConversationID
	}
	session.AgentID = data.AgentID
	session.EventType = event.Type
	session.Status = data.Status
	session.Stage = webhook.StageVar(vars)
	session.ClientID = webhook.StringVar(vars, "client_id")
	session.CallDurationSecs = data.CallDurationSecs()
	if data.Analysis != nil {
		session.TranscriptSummary = data.Analysis.TranscriptSummary
		session.CallSummaryTitle = data.Analysis.CallSummaryTitle
	}

	if err := r.Store.UpdateSession(ctx, session); err != nil {
		return Ack{}, fmt.Errorf("persist session %s: %w", session.ID, err)
	}

	// Activity tracking is advisory. The vendor must still get a 2xx or it
	// will redeliver a payload we have already persisted.
	if err := r.Store.TouchCase(ctx, caseID, now); err != nil {
		r.Log.Warn("touch case failed", "case_id", caseID, "error", err)
	}

	return Ack{
		OK:             true,
		CaseID:         caseID,
		EventType:      event.Type,
		ConversationID: data.ConversationID,
		SimulationID:   session.ID,
	}, nil
}

// scoreTranscript runs the LLM evaluation. A scoring failure degrades to a
// zero score; dropping the whole delivery would lose the transcript, which
// is worse than a missing grade.
func (r *Reconciler) scoreTranscript(ctx context.Context, caseID string, turns []transcript.Turn) scoring.Result {
	if r.Scorer == nil {
		r.Log.Warn("no scorer configured, storing transcript unscored", "case_id", caseID)
		return scoring.Result{}
	}

	instructions, err := r.Store.ScoringPrompt(ctx, caseID)
	if err != nil {
		r.Log.Warn("scoring prompt lookup failed", "case_id", caseID, "error", err)
		instructions = ""
	}

	result, err := r.Scorer.Score(ctx, turns, instructions)
	if err != nil {
		r.Log.Error("scoring failed", "case_id", caseID, "error", err)
		return scoring.Result{}
	}
	return result
}
