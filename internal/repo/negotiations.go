package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const negotiationColumns = `id, company_id, user_id, contact_id, kind, status, interaction_pending, description, expected_result, metadata, created_at, updated_at`

func scanNegotiation(row pgx.Row) (*Negotiation, error) {
	var n Negotiation
	err := row.Scan(&n.ID, &n.CompanyID, &n.UserID, &n.ContactID, &n.Kind, &n.Status, &n.InteractionPending, &n.Description, &n.ExpectedResult, &n.Metadata, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan negotiation: %w", err)
	}
	return &n, nil
}

// CreateNegotiation opens a new active negotiation between a responsible
// user and a contact.
func (r *PostgresRepository) CreateNegotiation(ctx context.Context, negotiation Negotiation) (*Negotiation, error) {
	q := `
INSERT INTO negotiations (company_id, user_id, contact_id, kind, status, interaction_pending, description, expected_result, metadata)
VALUES ($1, $2, $3, $4, 'active', $5, $6, $7, $8)
RETURNING ` + negotiationColumns + `;`
	return scanNegotiation(r.pool.QueryRow(ctx, q,
		negotiation.CompanyID,
		negotiation.UserID,
		negotiation.ContactID,
		negotiation.Kind,
		negotiation.InteractionPending,
		negotiation.Description,
		negotiation.ExpectedResult,
		negotiation.Metadata,
	))
}

// GetNegotiation fetches a negotiation by id, scoped to the company.
func (r *PostgresRepository) GetNegotiation(ctx context.Context, companyID, id string) (*Negotiation, error) {
	q := `SELECT ` + negotiationColumns + ` FROM negotiations WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL;`
	return scanNegotiation(r.pool.QueryRow(ctx, q, companyID, id))
}

// UpdateNegotiation applies a partial merge over the negotiation fields.
func (r *PostgresRepository) UpdateNegotiation(ctx context.Context, companyID, id string, update NegotiationUpdate) (*Negotiation, error) {
	q := `
UPDATE negotiations
SET status = COALESCE($3, status),
    interaction_pending = COALESCE($4, interaction_pending),
    description = COALESCE($5, description),
    expected_result = COALESCE($6, expected_result),
    metadata = CASE WHEN $7::jsonb IS NULL THEN metadata ELSE metadata || $7 END,
    updated_at = NOW()
WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL
RETURNING ` + negotiationColumns + `;`
	var metadata any
	if update.Metadata != nil {
		metadata = update.Metadata
	}
	return scanNegotiation(r.pool.QueryRow(ctx, q, companyID, id,
		update.Status,
		update.InteractionPending,
		update.Description,
		update.ExpectedResult,
		metadata,
	))
}

// FlipNegotiationTurn hands the turn to the other party, conditional on the
// previous turn holder still matching. Two concurrent flips cannot both win;
// the loser gets ErrConflict.
func (r *PostgresRepository) FlipNegotiationTurn(ctx context.Context, id, expectedPending, newPending string) error {
	const q = `
UPDATE negotiations
SET interaction_pending = $3, updated_at = NOW()
WHERE id = $1 AND interaction_pending = $2 AND status = 'active' AND deleted_at IS NULL;
`
	ct, err := r.pool.Exec(ctx, q, id, expectedPending, newPending)
	if err != nil {
		return fmt.Errorf("flip negotiation turn: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// SearchNegotiations returns negotiations matching the filter, newest first.
func (r *PostgresRepository) SearchNegotiations(ctx context.Context, filter NegotiationFilter) ([]Negotiation, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := `
SELECT ` + negotiationColumns + `
FROM negotiations
WHERE company_id = $1 AND deleted_at IS NULL
  AND ($2 = '' OR kind = $2)
  AND ($3 = '' OR status = $3)
  AND ($4 = '' OR interaction_pending = $4)
  AND ($5 = '' OR contact_id = $5)
  AND ($6 = '' OR user_id = $6)
ORDER BY created_at DESC
LIMIT $7;
`
	rows, err := r.pool.Query(ctx, q,
		filter.CompanyID, filter.Kind, filter.Status, filter.InteractionPending, filter.ContactID, filter.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("search negotiations: %w", err)
	}
	defer rows.Close()

	var negotiations []Negotiation
	for rows.Next() {
		var n Negotiation
		if err := rows.Scan(&n.ID, &n.CompanyID, &n.UserID, &n.ContactID, &n.Kind, &n.Status, &n.InteractionPending, &n.Description, &n.ExpectedResult, &n.Metadata, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan negotiation row: %w", err)
		}
		negotiations = append(negotiations, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate negotiation rows: %w", err)
	}
	return negotiations, nil
}
