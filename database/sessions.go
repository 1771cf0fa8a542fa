package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"camera-analyze-service/models"
)

var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a new empty conversation session.
func (d *Database) CreateSession(ctx context.Context) (*models.Session, error) {
	id := uuid.New().String()

	_, err := d.db.ExecContext(ctx,
		"INSERT INTO sessions (id, title, query_count) VALUES (?, 'New Analysis', 0)", id)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &models.Session{ID: id, Title: "New Analysis"}, nil
}

// GetSession loads a session with all of its turns.
func (d *Database) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := d.db.QueryRowContext(ctx,
		"SELECT id, title, query_count, created_at, updated_at FROM sessions WHERE id = ?", id).
		Scan(&s.ID, &s.Title, &s.QueryCount, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT turn_number, user_query, summary, key_findings, results, created_at
		 FROM session_turns WHERE session_id = ? ORDER BY turn_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		s.Turns = append(s.Turns, *turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session turns: %w", err)
	}
	return &s, nil
}

// ListSessions returns all sessions without their turns, most recently
// created first.
func (d *Database) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, title, query_count, created_at, updated_at FROM sessions ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Title, &s.QueryCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}

// AppendTurn stores a completed turn, numbering it after the session's
// last turn. title is applied only when this is the first turn of the
// session. Returns the assigned turn number.
func (d *Database) AppendTurn(ctx context.Context, sessionID string, turn models.QueryTurn, title string) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		"SELECT query_count FROM sessions WHERE id = ? FOR UPDATE", sessionID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock session: %w", err)
	}

	number := count + 1
	findings, err := json.Marshal(turn.KeyFindings)
	if err != nil {
		return 0, fmt.Errorf("failed to encode key findings: %w", err)
	}
	results, err := json.Marshal(turn.Results)
	if err != nil {
		return 0, fmt.Errorf("failed to encode results: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_turns (session_id, turn_number, user_query, summary, key_findings, results)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, number, turn.UserQuery, turn.Summary, string(findings), string(results))
	if err != nil {
		return 0, fmt.Errorf("failed to insert turn: %w", err)
	}

	if number == 1 && title != "" {
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET query_count = ?, title = ? WHERE id = ?", number, title, sessionID)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET query_count = ? WHERE id = ?", number, sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit turn: %w", err)
	}
	return number, nil
}

// DeleteSession removes a session and its turns.
func (d *Database) DeleteSession(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_turns WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session turns: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return tx.Commit()
}

// LatestTurn returns the most recent turn of a session, or nil when
// the session has no turns yet.
func (d *Database) LatestTurn(ctx context.Context, sessionID string) (*models.QueryTurn, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT turn_number, user_query, summary, key_findings, results, created_at
		 FROM session_turns WHERE session_id = ? ORDER BY turn_number DESC LIMIT 1`, sessionID)

	turn, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// TurnByNumber returns one specific turn of a session, or nil when no
// such turn exists.
func (d *Database) TurnByNumber(ctx context.Context, sessionID string, number int) (*models.QueryTurn, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT turn_number, user_query, summary, key_findings, results, created_at
		 FROM session_turns WHERE session_id = ? AND turn_number = ?`, sessionID, number)

	turn, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// Stats summarizes stored conversation activity.
type Stats struct {
	TotalSessions int `json:"total_sessions"`
	TotalQueries  int `json:"total_queries"`
}

func (d *Database) SessionStats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(query_count), 0) FROM sessions").
		Scan(&s.TotalSessions, &s.TotalQueries)
	if err != nil {
		return nil, fmt.Errorf("failed to read session stats: %w", err)
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (*models.QueryTurn, error) {
	var turn models.QueryTurn
	var findings, results sql.NullString
	var summary sql.NullString

	err := row.Scan(&turn.TurnNumber, &turn.UserQuery, &summary, &findings, &results, &turn.Timestamp)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan turn: %w", err)
	}

	turn.Summary = summary.String
	if findings.Valid && findings.String != "" && findings.String != "null" {
		if err := json.Unmarshal([]byte(findings.String), &turn.KeyFindings); err != nil {
			return nil, fmt.Errorf("failed to decode key findings: %w", err)
		}
	}
	if results.Valid && results.String != "" && results.String != "null" {
		var run models.RunResult
		if err := json.Unmarshal([]byte(results.String), &run); err != nil {
			return nil, fmt.Errorf("failed to decode results: %w", err)
		}
		turn.Results = &run
	}
	return &turn, nil
}
