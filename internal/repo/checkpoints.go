package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SaveCheckpoint upserts the agent loop position for a session. Called after
// every node transition so a crashed turn resumes where it stopped.
func (r *PostgresRepository) SaveCheckpoint(ctx context.Context, checkpoint AgentCheckpoint) error {
	const q = `
INSERT INTO agent_checkpoints (session_id, node, state, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (session_id) DO UPDATE SET
    node = EXCLUDED.node,
    state = EXCLUDED.state,
    updated_at = NOW();
`
	if _, err := r.pool.Exec(ctx, q, checkpoint.SessionID, checkpoint.Node, checkpoint.State); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the last saved loop position for a session.
func (r *PostgresRepository) LoadCheckpoint(ctx context.Context, sessionID string) (*AgentCheckpoint, error) {
	const q = `SELECT session_id, node, state, updated_at FROM agent_checkpoints WHERE session_id = $1;`
	var cp AgentCheckpoint
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&cp.SessionID, &cp.Node, &cp.State, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &cp, nil
}

// ClearCheckpoint removes the saved loop position after a turn completes.
func (r *PostgresRepository) ClearCheckpoint(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM agent_checkpoints WHERE session_id = $1;`
	if _, err := r.pool.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
