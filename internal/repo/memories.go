package repo

import (
	"context"
	"fmt"
)

// AppendMemory stores one transcript row. Memory is append-only; rows are
// never updated, only soft-deleted when a session is cleared.
func (r *PostgresRepository) AppendMemory(ctx context.Context, entry MemoryEntry) error {
	const q = `
INSERT INTO memories (session_id, role, content, metadata)
VALUES ($1, $2, $3, $4);
`
	_, err := r.pool.Exec(ctx, q, entry.SessionID, entry.Role, entry.Content, entry.Metadata)
	if err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	return nil
}

// ListRecentMemory returns the last N transcript rows for the session in
// chronological order.
func (r *PostgresRepository) ListRecentMemory(ctx context.Context, sessionID string, limit int) ([]MemoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, session_id, role, content, metadata, created_at
FROM (
    SELECT id, session_id, role, content, metadata, created_at
    FROM memories
    WHERE session_id = $1 AND deleted_at IS NULL
    ORDER BY created_at DESC
    LIMIT $2
) recent
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent memory: %w", err)
	}
	defer rows.Close()

	var entries []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &e.Content, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return entries, nil
}

// ClearMemory soft-deletes the whole transcript for a session.
func (r *PostgresRepository) ClearMemory(ctx context.Context, sessionID string) error {
	const q = `UPDATE memories SET deleted_at = NOW() WHERE session_id = $1 AND deleted_at IS NULL;`
	if _, err := r.pool.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}
