// Package registry persists sessions, attempts, and verdicts. It is the
// only externally queryable store in the pipeline.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/intentlab/vdip/internal/model"
)

// Store provides persistence for intents, sessions, and attempts. Writes go
// through a single sqlite connection, which serializes them; reads may run
// concurrently.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateSession inserts the intent and its session in one transaction,
// along with a session_created event. One session per intent is enforced by
// the unique constraint on intent_id.
func (s *Store) CreateSession(ctx context.Context, sess model.Session) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	in := sess.Intent
	if _, err := tx.ExecContext(ctx, `INSERT INTO intents(intent_id, text, topology_ref, created_at)
		VALUES(?, ?, ?, ?)`,
		in.ID, in.Text, in.TopologyRef, in.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert intent: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO sessions(session_id, intent_id, state, max_attempts, accepted_attempt, created_at, updated_at)
		VALUES(?, ?, ?, ?, NULL, ?, ?)`,
		sess.ID, in.ID, string(sess.State), sess.MaxAttempts, now, now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert session: %w", err)
	}
	if err := s.insertEvent(ctx, tx, sess.ID, "session_created", "session created", ""); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

// AppendAttempt appends the attempt to the session's audit trail. Attempts
// are immutable once persisted; numbering must be gapless, and appends to a
// terminal session are refused.
func (s *Store) AppendAttempt(ctx context.Context, attempt model.Attempt, events []Event) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin append attempt: %w", err)
	}
	state, err := s.sessionStateTx(ctx, tx, attempt.SessionID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if state.Terminal() {
		_ = tx.Rollback()
		return model.ErrSessionClosed
	}
	var last int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(attempt_number), 0) FROM attempts WHERE session_id=?`, attempt.SessionID)
	if err := row.Scan(&last); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("read last attempt number: %w", err)
	}
	if attempt.Number != last+1 {
		_ = tx.Rollback()
		return fmt.Errorf("attempt number %d breaks contiguity (last was %d)", attempt.Number, last)
	}

	var format, body any
	if attempt.Config != nil {
		format, body = attempt.Config.Format, attempt.Config.Body
	}
	feedbackJSON, err := marshalNullable(attempt.FeedbackUsed)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("marshal feedback: %w", err)
	}
	reportJSON, err := marshalNullable(attempt.Report)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("marshal report: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO attempts(session_id, attempt_number, config_format, config_body, generated_at, feedback_json, failure_reason, report_json)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.SessionID, attempt.Number, format, body,
		attempt.GeneratedAt.UTC().Format(time.RFC3339),
		feedbackJSON, nullableString(attempt.FailureReason), reportJSON); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert attempt: %w", err)
	}
	for _, ev := range events {
		if err := s.insertEvent(ctx, tx, attempt.SessionID, ev.Type, ev.Message, ev.DataJSON); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at=? WHERE session_id=?`,
		time.Now().UTC().Format(time.RFC3339), attempt.SessionID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append attempt: %w", err)
	}
	return nil
}

// CloseSession performs the single transition out of RUNNING. It fails on
// sessions already in a terminal state, which makes accepted_attempt
// effectively write-once.
func (s *Store) CloseSession(ctx context.Context, sessionID string, state model.SessionState, acceptedAttempt *int) error {
	if !state.Terminal() {
		return fmt.Errorf("close session: %s is not a terminal state", state)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin close session: %w", err)
	}
	current, err := s.sessionStateTx(ctx, tx, sessionID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if current.Terminal() {
		_ = tx.Rollback()
		return model.ErrSessionClosed
	}
	var accepted any
	if acceptedAttempt != nil {
		accepted = *acceptedAttempt
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET state=?, accepted_attempt=?, updated_at=? WHERE session_id=?`,
		string(state), accepted, time.Now().UTC().Format(time.RFC3339), sessionID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update session state: %w", err)
	}
	if err := s.insertEvent(ctx, tx, sessionID, "session_closed", string(state), ""); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit close session: %w", err)
	}
	return nil
}

// GetSession loads a session with its full ordered attempt history.
func (s *Store) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT s.session_id, s.state, s.max_attempts, s.accepted_attempt, s.created_at, s.updated_at,
		i.intent_id, i.text, i.topology_ref, i.created_at
		FROM sessions s JOIN intents i ON i.intent_id = s.intent_id
		WHERE s.session_id=?`, sessionID)

	var sess model.Session
	var accepted sql.NullInt64
	var state, createdAt, updatedAt, intentCreated string
	if err := row.Scan(&sess.ID, &state, &sess.MaxAttempts, &accepted, &createdAt, &updatedAt,
		&sess.Intent.ID, &sess.Intent.Text, &sess.Intent.TopologyRef, &intentCreated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, model.ErrSessionNotFound
		}
		return model.Session{}, fmt.Errorf("read session: %w", err)
	}
	sess.State = model.SessionState(state)
	if accepted.Valid {
		n := int(accepted.Int64)
		sess.AcceptedAttempt = &n
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	sess.Intent.CreatedAt = parseTime(intentCreated)

	attempts, err := s.attempts(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	sess.Attempts = attempts
	return sess, nil
}

// SessionSummary is a listing row without the attempt history.
type SessionSummary struct {
	ID          string             `json:"id"`
	IntentText  string             `json:"intent_text"`
	TopologyRef string             `json:"topology_ref"`
	State       model.SessionState `json:"state"`
	Attempts    int                `json:"attempts"`
	MaxAttempts int                `json:"max_attempts"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ListSessions returns summaries of all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.session_id, i.text, i.topology_ref, s.state, s.max_attempts, s.updated_at,
		(SELECT COUNT(*) FROM attempts a WHERE a.session_id = s.session_id)
		FROM sessions s JOIN intents i ON i.intent_id = s.intent_id
		ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var state, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.IntentText, &sum.TopologyRef, &state, &sum.MaxAttempts, &updatedAt, &sum.Attempts); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.State = model.SessionState(state)
		sum.UpdatedAt = parseTime(updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Event represents a timeline entry in the session audit trail.
type Event struct {
	Seq      int       `json:"seq,omitempty"`
	At       time.Time `json:"at,omitempty"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	DataJSON string    `json:"data_json,omitempty"`
}

// Events returns the session's audit timeline in sequence order.
func (s *Store) Events(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, ts, type, message, COALESCE(data_json, '')
		FROM events WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts string
		if err := rows.Scan(&ev.Seq, &ts, &ev.Type, &ev.Message, &ev.DataJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.At = parseTime(ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) attempts(ctx context.Context, sessionID string) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT attempt_number, config_format, config_body, generated_at, feedback_json, failure_reason, report_json
		FROM attempts WHERE session_id=? ORDER BY attempt_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		att := model.Attempt{SessionID: sessionID}
		var format, body, feedbackJSON, failureReason, reportJSON sql.NullString
		var generatedAt string
		if err := rows.Scan(&att.Number, &format, &body, &generatedAt, &feedbackJSON, &failureReason, &reportJSON); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		att.GeneratedAt = parseTime(generatedAt)
		if format.Valid {
			att.Config = &model.CandidateConfig{Format: format.String, Body: body.String}
		}
		att.FailureReason = failureReason.String
		if feedbackJSON.Valid && feedbackJSON.String != "" {
			var fb model.Feedback
			if err := json.Unmarshal([]byte(feedbackJSON.String), &fb); err != nil {
				return nil, fmt.Errorf("decode feedback for attempt %d: %w", att.Number, err)
			}
			att.FeedbackUsed = &fb
		}
		if reportJSON.Valid && reportJSON.String != "" {
			var rep model.VerificationReport
			if err := json.Unmarshal([]byte(reportJSON.String), &rep); err != nil {
				return nil, fmt.Errorf("decode report for attempt %d: %w", att.Number, err)
			}
			att.Report = &rep
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

func (s *Store) sessionStateTx(ctx context.Context, tx *sql.Tx, sessionID string) (model.SessionState, error) {
	var state string
	row := tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE session_id=?`, sessionID)
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", model.ErrSessionNotFound
		}
		return "", fmt.Errorf("read session state: %w", err)
	}
	return model.SessionState(state), nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, sessionID, typ, message, dataJSON string) error {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id=?`, sessionID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("read event seq: %w", err)
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(session_id, seq, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		sessionID, seq+1, ts, typ, message, nullableString(dataJSON)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func marshalNullable(v any) (any, error) {
	switch x := v.(type) {
	case *model.Feedback:
		if x == nil {
			return nil, nil
		}
	case *model.VerificationReport:
		if x == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(time.RFC3339, value)
	return t
}
