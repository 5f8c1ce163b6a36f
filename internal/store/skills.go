package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertSkill mirrors an on-disk skill into the database, keyed by id.
// Counters (use_count, last_used_at) survive re-parses.
func (s *Store) UpsertSkill(row *SkillRow) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO skills (id, name, description, category, version, author, body, command,
			enabled, source, embedding, use_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			version = excluded.version,
			author = excluded.author,
			body = excluded.body,
			command = excluded.command,
			enabled = excluded.enabled,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		row.ID, row.Name, row.Description, row.Category, row.Version, row.Author,
		row.Body, row.Command, boolToInt(row.Enabled), toNullString(row.Source),
		row.Embedding, now, now)
	if err != nil {
		return fmt.Errorf("upsert skill: %w", err)
	}
	return nil
}

// GetSkill fetches one mirrored skill row.
func (s *Store) GetSkill(id string) (*SkillRow, error) {
	row := s.db.QueryRow(skillSelect+` WHERE id = ?`, id)
	sk, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sk, err
}

// ListSkills returns all mirrored skill rows ordered by name.
func (s *Store) ListSkills() ([]SkillRow, error) {
	rows, err := s.db.Query(skillSelect + ` ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []SkillRow
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sk)
	}
	return out, rows.Err()
}

// DeleteSkill removes a mirrored row.
func (s *Store) DeleteSkill(id string) error {
	_, err := s.db.Exec(`DELETE FROM skills WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete skill: %w", err)
	}
	return nil
}

// TouchSkill bumps the usage counters after an execution.
func (s *Store) TouchSkill(id string) error {
	_, err := s.db.Exec(`
		UPDATE skills SET use_count = use_count + 1, last_used_at = ?, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("touch skill: %w", err)
	}
	return nil
}

const skillSelect = `
	SELECT id, name, COALESCE(description, ''), COALESCE(category, ''), COALESCE(version, ''),
		COALESCE(author, ''), COALESCE(body, ''), command, enabled, source, embedding,
		last_used_at, use_count, created_at, updated_at
	FROM skills`

func scanSkill(row rowScanner) (*SkillRow, error) {
	var sk SkillRow
	var enabled int
	var source sql.NullString
	var lastUsed sql.NullInt64
	var created, updated int64

	err := row.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Category, &sk.Version,
		&sk.Author, &sk.Body, &sk.Command, &enabled, &source, &sk.Embedding,
		&lastUsed, &sk.UseCount, &created, &updated)
	if err != nil {
		return nil, err
	}
	sk.Enabled = enabled != 0
	sk.Source = source.String
	sk.LastUsedAt = fromNullTime(lastUsed)
	sk.CreatedAt = time.Unix(created, 0)
	sk.UpdatedAt = time.Unix(updated, 0)
	return &sk, nil
}
