package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const contactColumns = `id, company_id, name, phone, email, instagram, ignore_until, preferred_user_id, created_at, updated_at`

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Phone, &c.Email, &c.Instagram, &c.IgnoreUntil, &c.PreferredUserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan contact: %w", err)
	}
	return &c, nil
}

// GetContact fetches a contact by id, scoped to the company.
func (r *PostgresRepository) GetContact(ctx context.Context, companyID, id string) (*Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL;`
	return scanContact(r.pool.QueryRow(ctx, q, companyID, id))
}

// FindContactByPhone resolves a phone number to a contact within the company.
func (r *PostgresRepository) FindContactByPhone(ctx context.Context, companyID, phone string) (*Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE company_id = $1 AND phone = $2 AND deleted_at IS NULL;`
	return scanContact(r.pool.QueryRow(ctx, q, companyID, phone))
}

// CreateContact inserts a contact. Creation is idempotent on phone: when a
// contact with the same phone already exists in the company, the existing row
// is returned untouched.
func (r *PostgresRepository) CreateContact(ctx context.Context, contact Contact) (*Contact, error) {
	if contact.Phone != nil {
		existing, err := r.FindContactByPhone(ctx, contact.CompanyID, *contact.Phone)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	q := `
INSERT INTO contacts (company_id, name, phone, email, instagram, preferred_user_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + contactColumns + `;`
	return scanContact(r.pool.QueryRow(ctx, q,
		contact.CompanyID,
		contact.Name,
		contact.Phone,
		contact.Email,
		contact.Instagram,
		contact.PreferredUserID,
	))
}

// UpdateContact applies a partial update and returns the updated row.
func (r *PostgresRepository) UpdateContact(ctx context.Context, companyID, id string, update ContactUpdate) (*Contact, error) {
	q := `
UPDATE contacts
SET name = COALESCE($3, name),
    phone = COALESCE($4, phone),
    email = COALESCE($5, email),
    instagram = COALESCE($6, instagram),
    ignore_until = COALESCE($7, ignore_until),
    preferred_user_id = COALESCE($8, preferred_user_id),
    updated_at = NOW()
WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL
RETURNING ` + contactColumns + `;`
	return scanContact(r.pool.QueryRow(ctx, q, companyID, id,
		update.Name, update.Phone, update.Email, update.Instagram, update.IgnoreUntil, update.PreferredUserID))
}

// SetContactIgnoreUntil pauses automation for the contact until the given time.
func (r *PostgresRepository) SetContactIgnoreUntil(ctx context.Context, companyID, id string, until time.Time) error {
	const q = `
UPDATE contacts SET ignore_until = $3, updated_at = NOW()
WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL;
`
	ct, err := r.pool.Exec(ctx, q, companyID, id, until)
	if err != nil {
		return fmt.Errorf("set contact ignore until: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchContacts performs a case-insensitive substring lookup over name,
// phone, email and instagram within the company.
func (r *PostgresRepository) SearchContacts(ctx context.Context, companyID, query string, limit int) ([]Contact, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	q := `
SELECT ` + contactColumns + `
FROM contacts
WHERE company_id = $1 AND deleted_at IS NULL
  AND (name ILIKE '%' || $2 || '%'
       OR phone ILIKE '%' || $2 || '%'
       OR email ILIKE '%' || $2 || '%'
       OR instagram ILIKE '%' || $2 || '%')
ORDER BY name ASC
LIMIT $3;
`
	rows, err := r.pool.Query(ctx, q, companyID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Phone, &c.Email, &c.Instagram, &c.IgnoreUntil, &c.PreferredUserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contact search row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact search rows: %w", err)
	}
	return contacts, nil
}
