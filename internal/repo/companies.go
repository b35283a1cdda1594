package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const companyColumns = `id, name, description, step, clients_support_enabled, created_at, updated_at`

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Step, &c.ClientsSupportEnabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan company: %w", err)
	}
	return &c, nil
}

// GetCompany fetches a company by id.
func (r *PostgresRepository) GetCompany(ctx context.Context, id string) (*Company, error) {
	q := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1 AND deleted_at IS NULL;`
	return scanCompany(r.pool.QueryRow(ctx, q, id))
}

// GetCompanyByInstance fetches the company bound to a WhatsApp instance name.
func (r *PostgresRepository) GetCompanyByInstance(ctx context.Context, instance string) (*Company, error) {
	q := `SELECT ` + companyColumns + ` FROM companies WHERE instance_name = $1 AND deleted_at IS NULL;`
	return scanCompany(r.pool.QueryRow(ctx, q, instance))
}

// UpdateCompanyDescription replaces the free-text business profile.
func (r *PostgresRepository) UpdateCompanyDescription(ctx context.Context, id, description string) error {
	const q = `UPDATE companies SET description = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL;`
	ct, err := r.pool.Exec(ctx, q, id, description)
	if err != nil {
		return fmt.Errorf("update company description: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishCompanyOnboarding stores the synthesized description, flips the
// company to running and enables client support in one statement.
func (r *PostgresRepository) FinishCompanyOnboarding(ctx context.Context, id, description string) error {
	const q = `
UPDATE companies
SET description = $2, step = 'running', clients_support_enabled = TRUE, updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL;
`
	ct, err := r.pool.Exec(ctx, q, id, description)
	if err != nil {
		return fmt.Errorf("finish company onboarding: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
