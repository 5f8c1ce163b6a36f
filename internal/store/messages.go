package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AppendMessage persists a message and returns its row id.
func (s *Store) AppendMessage(msg *Message) (int64, error) {
	var toolCalls, toolResults sql.NullString
	if len(msg.ToolCalls) > 0 {
		toolCalls = sql.NullString{String: string(msg.ToolCalls), Valid: true}
	}
	if len(msg.ToolResults) > 0 {
		toolResults = sql.NullString{String: string(msg.ToolResults), Valid: true}
	}

	created := msg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	res, err := s.db.Exec(`
		INSERT INTO messages (session_key, role, content, image_id, tool_calls, tool_results,
			token_estimate, turn_id, turn_position, is_compressed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionKey, msg.Role, msg.Content, toNullString(msg.ImageID), toolCalls, toolResults,
		msg.TokenEstimate, toNullString(msg.TurnID), msg.TurnPosition, boolToInt(msg.IsCompressed), created.Unix())
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return res.LastInsertId()
}

// GetMessages returns the last limit messages in chronological order.
// limit <= 0 returns all.
func (s *Store) GetMessages(sessionKey string, limit int) ([]Message, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(`
			SELECT id, session_key, role, COALESCE(content, ''), COALESCE(image_id, ''),
				tool_calls, tool_results, token_estimate, COALESCE(turn_id, ''),
				turn_position, is_compressed, created_at
			FROM (
				SELECT * FROM messages WHERE session_key = ? ORDER BY id DESC LIMIT ?
			) ORDER BY id ASC`, sessionKey, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, session_key, role, COALESCE(content, ''), COALESCE(image_id, ''),
				tool_calls, tool_results, token_estimate, COALESCE(turn_id, ''),
				turn_position, is_compressed, created_at
			FROM messages WHERE session_key = ? ORDER BY id ASC`, sessionKey)
	}
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetTurnMessages returns all messages of one turn ordered by position.
func (s *Store) GetTurnMessages(turnID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_key, role, COALESCE(content, ''), COALESCE(image_id, ''),
			tool_calls, tool_results, token_estimate, COALESCE(turn_id, ''),
			turn_position, is_compressed, created_at
		FROM messages WHERE turn_id = ? ORDER BY turn_position ASC, id ASC`, turnID)
	if err != nil {
		return nil, fmt.Errorf("get turn messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkImageCompressed flags every message carrying imageID within the turn.
func (s *Store) MarkImageCompressed(turnID, imageID string) error {
	_, err := s.db.Exec(`
		UPDATE messages SET is_compressed = 1 WHERE turn_id = ? AND image_id = ?`,
		turnID, imageID)
	if err != nil {
		return fmt.Errorf("mark compressed: %w", err)
	}
	return nil
}

// DeleteSessionMessages removes every message of a session.
func (s *Store) DeleteSessionMessages(sessionKey string) error {
	_, err := s.db.Exec(`DELETE FROM messages WHERE session_key = ?`, sessionKey)
	if err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var toolCalls, toolResults sql.NullString
		var compressed int
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionKey, &m.Role, &m.Content, &m.ImageID,
			&toolCalls, &toolResults, &m.TokenEstimate, &m.TurnID,
			&m.TurnPosition, &compressed, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls.Valid {
			m.ToolCalls = []byte(toolCalls.String)
		}
		if toolResults.Valid {
			m.ToolResults = []byte(toolResults.String)
		}
		m.IsCompressed = compressed != 0
		m.CreatedAt = time.Unix(created, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
