package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable store backing the gateway binary.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	schema, err := LoadSchema(SQLiteSchemaName)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCase(ctx context.Context, c Case) (Case, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cases (id, name, last_activity_at, created_at)
		VALUES (?, ?, ?, ?)
	`, c.ID, c.Name, formatTime(c.LastActivityAt), formatTime(c.CreatedAt))
	if err != nil {
		return Case{}, fmt.Errorf("insert case: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetCase(ctx context.Context, id string) (Case, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, last_activity_at, created_at FROM cases WHERE id = ?
	`, id)

	var c Case
	var lastActivity, createdAt string
	if err := row.Scan(&c.ID, &c.Name, &lastActivity, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Case{}, ErrNotFound
		}
		return Case{}, fmt.Errorf("scan case: %w", err)
	}
	c.LastActivityAt = parseTime(lastActivity)
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func (s *SQLiteStore) TouchCase(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases SET last_activity_at = ? WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touch case: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PutScoringPrompt(ctx context.Context, caseID, instructions string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scoring_prompts (case_id, instructions, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET instructions = excluded.instructions, updated_at = excluded.updated_at
	`, caseID, instructions, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("put scoring prompt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ScoringPrompt(ctx context.Context, caseID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT instructions FROM scoring_prompts WHERE case_id = ?
	`, caseID)

	var instructions string
	if err := row.Scan(&instructions); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("scan scoring prompt: %w", err)
	}
	return instructions, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session Session) (Session, error) {
	prepared, err := prepareForInsert(session)
	if err != nil {
		return Session{}, err
	}
	if err := insertSession(ctx, s.db, prepared); err != nil {
		return Session{}, err
	}
	return prepared, nil
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session Session) error {
	transcriptJSON, turnScoresJSON, err := marshalSessionJSON(session)
	if err != nil {
		return err
	}
	session.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			case_id = ?, client_id = ?, conversation_id = ?, agent_id = ?,
			event_type = ?, stage = ?, status = ?, stage_status = ?,
			transcript_json = ?, score = ?, score_reason = ?, full_analysis = ?,
			turn_scores_json = ?, call_duration_secs = ?, transcript_summary = ?,
			call_summary_title = ?, recording_key = ?, updated_at = ?
		WHERE id = ?
	`, session.CaseID, session.ClientID, session.ConversationID, session.AgentID,
		session.EventType, session.Stage, session.Status, session.StageStatus,
		transcriptJSON, session.Score, session.ScoreReason, session.FullAnalysis,
		turnScoresJSON, session.CallDurationSecs, session.TranscriptSummary,
		session.CallSummaryTitle, session.RecordingKey, formatTime(session.UpdatedAt),
		session.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, id))
}

func (s *SQLiteStore) FindSessionByConversationID(ctx context.Context, conversationID string) (Session, bool, error) {
	if conversationID == "" {
		return Session{}, false, nil
	}
	session, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+` WHERE conversation_id = ?`, conversationID))
	if err == ErrNotFound {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return session, true, nil
}

// ResolveSession runs the whole find-or-create inside one write transaction
// so concurrent deliveries of the same conversation converge on a single row.
// The write lock is taken up front (BEGIN IMMEDIATE): a deferred transaction
// under WAL would let two resolves both read-miss, and the loser of the
// insert race would fail with a busy-snapshot error instead of serializing.
func (s *SQLiteStore) ResolveSession(ctx context.Context, caseID, conversationID string, stubAfter time.Time) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("resolve conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return Session{}, fmt.Errorf("begin resolve: %w", err)
	}
	session, err := resolveLocked(ctx, conn, caseID, conversationID, stubAfter)
	if err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return Session{}, err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return Session{}, fmt.Errorf("commit resolve: %w", err)
	}
	return session, nil
}

func resolveLocked(ctx context.Context, conn *sql.Conn, caseID, conversationID string, stubAfter time.Time) (Session, error) {
	if conversationID != "" {
		session, err := scanSession(conn.QueryRowContext(ctx, sessionSelect+` WHERE conversation_id = ?`, conversationID))
		if err == nil {
			return session, nil
		}
		if err != ErrNotFound {
			return Session{}, err
		}
	}

	session, err := scanSession(conn.QueryRowContext(ctx, sessionSelect+`
		WHERE case_id = ? AND full_analysis = '' AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1
	`, caseID, formatTime(stubAfter)))
	if err == nil {
		return session, nil
	}
	if err != ErrNotFound {
		return Session{}, err
	}

	created, err := prepareForInsert(Session{CaseID: caseID, ConversationID: conversationID})
	if err != nil {
		return Session{}, err
	}
	if err := insertSession(ctx, conn, created); err != nil {
		return Session{}, err
	}
	return created, nil
}

const sessionSelect = `
	SELECT id, case_id, client_id, conversation_id, agent_id, event_type,
		stage, status, stage_status, transcript_json, score, score_reason,
		full_analysis, turn_scores_json, call_duration_secs, transcript_summary,
		call_summary_title, recording_key, created_at, updated_at
	FROM sessions`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func prepareForInsert(session Session) (Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	return session, nil
}

func insertSession(ctx context.Context, db execer, session Session) error {
	transcriptJSON, turnScoresJSON, err := marshalSessionJSON(session)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, case_id, client_id, conversation_id, agent_id, event_type,
			stage, status, stage_status, transcript_json, score, score_reason,
			full_analysis, turn_scores_json, call_duration_secs, transcript_summary,
			call_summary_title, recording_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.CaseID, session.ClientID, session.ConversationID,
		session.AgentID, session.EventType, session.Stage, session.Status,
		session.StageStatus, transcriptJSON, session.Score, session.ScoreReason,
		session.FullAnalysis, turnScoresJSON, session.CallDurationSecs,
		session.TranscriptSummary, session.CallSummaryTitle, session.RecordingKey,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var session Session
	var stage, score sql.NullInt64
	var transcriptJSON, turnScoresJSON, createdAt, updatedAt string

	err := row.Scan(&session.ID, &session.CaseID, &session.ClientID,
		&session.ConversationID, &session.AgentID, &session.EventType,
		&stage, &session.Status, &session.StageStatus, &transcriptJSON,
		&score, &session.ScoreReason, &session.FullAnalysis, &turnScoresJSON,
		&session.CallDurationSecs, &session.TranscriptSummary,
		&session.CallSummaryTitle, &session.RecordingKey, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	if stage.Valid {
		v := int(stage.Int64)
		session.Stage = &v
	}
	if score.Valid {
		v := int(score.Int64)
		session.Score = &v
	}
	if transcriptJSON != "" {
		if err := json.Unmarshal([]byte(transcriptJSON), &session.Transcript); err != nil {
			return Session{}, fmt.Errorf("decode transcript: %w", err)
		}
	}
	if turnScoresJSON != "" {
		if err := json.Unmarshal([]byte(turnScoresJSON), &session.TurnScores); err != nil {
			return Session{}, fmt.Errorf("decode turn scores: %w", err)
		}
	}
	session.CreatedAt = parseTime(createdAt)
	session.UpdatedAt = parseTime(updatedAt)
	return session, nil
}

func marshalSessionJSON(session Session) (string, string, error) {
	transcriptJSON := ""
	if len(session.Transcript) > 0 {
		b, err := json.Marshal(session.Transcript)
		if err != nil {
			return "", "", fmt.Errorf("encode transcript: %w", err)
		}
		transcriptJSON = string(b)
	}
	turnScoresJSON := ""
	if len(session.TurnScores) > 0 {
		b, err := json.Marshal(session.TurnScores)
		if err != nil {
			return "", "", fmt.Errorf("encode turn scores: %w", err)
		}
		turnScoresJSON = string(b)
	}
	return transcriptJSON, turnScoresJSON, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
