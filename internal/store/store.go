// Package store is the durable persistence layer: sessions, messages,
// scheduled tasks, run logs, and skill rows in a single SQLite file.
package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleUser        = "user"
	RoleAssistant   = "assistant"
	RoleTool        = "tool"
	RoleObservation = "observation"
)

// Task run statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusRunning = "RUNNING"
)

// Session is one logical conversation.
type Session struct {
	SessionKey    string
	MessageCount  int
	TokenEstimate int
	Metadata      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ToolCall is a model-issued tool request carried on an assistant message.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResult answers a prior ToolCall by id.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one conversation row.
type Message struct {
	ID            int64
	SessionKey    string
	Role          string
	Content       string
	ImageID       string
	ToolCalls     json.RawMessage
	ToolResults   json.RawMessage
	TokenEstimate int
	TurnID        string
	TurnPosition  int
	IsCompressed  bool
	CreatedAt     time.Time
}

// ScheduledTask is a cron-driven job.
type ScheduledTask struct {
	ID            string
	Name          string
	Description   string
	CronExpr      string
	Command       string
	Enabled       bool
	LastRunAt     *time.Time
	LastRunStatus string
	LastError     string
	RunCount      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TaskRunLog is one append-only execution record.
type TaskRunLog struct {
	ID         int64
	TaskID     string
	StartedAt  time.Time
	EndedAt    time.Time
	Status     string
	Output     string
	Error      string
	DurationMs int64
}

// SkillRow mirrors an on-disk skill for counters and listing.
type SkillRow struct {
	ID          string
	Name        string
	Description string
	Category    string
	Version     string
	Author      string
	Body        string
	Command     string
	Enabled     bool
	Source      string
	Embedding   []byte
	LastUsedAt  *time.Time
	UseCount    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// New wraps an existing connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the raw handle for tests and maintenance.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func toNullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
