package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetCompanyMember returns the user only when they belong to the company.
// Lookups reachable from model-supplied ids go through this instead of
// GetUserByID so a foreign id never crosses the tenant boundary.
func (r *PostgresRepository) GetCompanyMember(ctx context.Context, companyID, userID string) (*CompanyMember, error) {
	const q = `
SELECT u.id, u.name, u.phone, u.email, u.created_at, u.updated_at, uc.company_id, uc.role
FROM users u
JOIN user_companies uc ON uc.user_id = u.id
WHERE uc.company_id = $1 AND u.id = $2 AND u.deleted_at IS NULL;
`
	var m CompanyMember
	err := r.pool.QueryRow(ctx, q, companyID, userID).Scan(
		&m.ID, &m.Name, &m.Phone, &m.Email, &m.CreatedAt, &m.UpdatedAt, &m.CompanyID, &m.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get company member: %w", err)
	}
	return &m, nil
}

// FindCompanyMemberByPhone resolves a phone number to a user associated with
// the company. Returns ErrNotFound when the phone belongs to nobody there.
func (r *PostgresRepository) FindCompanyMemberByPhone(ctx context.Context, companyID, phone string) (*CompanyMember, error) {
	const q = `
SELECT u.id, u.name, u.phone, u.email, u.created_at, u.updated_at, uc.company_id, uc.role
FROM users u
JOIN user_companies uc ON uc.user_id = u.id
WHERE uc.company_id = $1 AND u.phone = $2 AND u.deleted_at IS NULL
LIMIT 1;
`
	var m CompanyMember
	err := r.pool.QueryRow(ctx, q, companyID, phone).Scan(
		&m.ID, &m.Name, &m.Phone, &m.Email, &m.CreatedAt, &m.UpdatedAt, &m.CompanyID, &m.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find company member by phone: %w", err)
	}
	return &m, nil
}

// ListCompanyMembers returns every user associated with the company, ordered
// by role priority (owner first) then name. The responsible-user resolver
// relies on this ordering.
func (r *PostgresRepository) ListCompanyMembers(ctx context.Context, companyID string) ([]CompanyMember, error) {
	const q = `
SELECT u.id, u.name, u.phone, u.email, u.created_at, u.updated_at, uc.company_id, uc.role
FROM users u
JOIN user_companies uc ON uc.user_id = u.id
WHERE uc.company_id = $1 AND u.deleted_at IS NULL
ORDER BY CASE uc.role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, u.name ASC;
`
	rows, err := r.pool.Query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("list company members: %w", err)
	}
	defer rows.Close()

	var members []CompanyMember
	for rows.Next() {
		var m CompanyMember
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.Email, &m.CreatedAt, &m.UpdatedAt, &m.CompanyID, &m.Role); err != nil {
			return nil, fmt.Errorf("scan company member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate company members: %w", err)
	}
	return members, nil
}

// SearchUsers performs a case-insensitive substring lookup over name, phone
// and email within the company.
func (r *PostgresRepository) SearchUsers(ctx context.Context, companyID, query string, limit int) ([]CompanyMember, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	const q = `
SELECT u.id, u.name, u.phone, u.email, u.created_at, u.updated_at, uc.company_id, uc.role
FROM users u
JOIN user_companies uc ON uc.user_id = u.id
WHERE uc.company_id = $1 AND u.deleted_at IS NULL
  AND (u.name ILIKE '%' || $2 || '%' OR u.phone ILIKE '%' || $2 || '%' OR u.email ILIKE '%' || $2 || '%')
ORDER BY u.name ASC
LIMIT $3;
`
	rows, err := r.pool.Query(ctx, q, companyID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var members []CompanyMember
	for rows.Next() {
		var m CompanyMember
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.Email, &m.CreatedAt, &m.UpdatedAt, &m.CompanyID, &m.Role); err != nil {
			return nil, fmt.Errorf("scan user search row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user search rows: %w", err)
	}
	return members, nil
}
