package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const serviceRequestColumns = `id, company_id, contact_id, request_type, status, scheduled_for, notes, internal_notes, assigned_to_user_id, completed_at, created_at, updated_at`

func scanServiceRequest(row pgx.Row) (*ServiceRequest, error) {
	var s ServiceRequest
	err := row.Scan(&s.ID, &s.CompanyID, &s.ContactID, &s.RequestType, &s.Status, &s.ScheduledFor, &s.Notes, &s.InternalNotes, &s.AssignedToUserID, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan service request: %w", err)
	}
	return &s, nil
}

// CreateServiceRequest inserts a new request. Status always starts pending.
func (r *PostgresRepository) CreateServiceRequest(ctx context.Context, request ServiceRequest) (*ServiceRequest, error) {
	q := `
INSERT INTO service_requests (company_id, contact_id, request_type, status, scheduled_for, notes, internal_notes, assigned_to_user_id)
VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7)
RETURNING ` + serviceRequestColumns + `;`
	return scanServiceRequest(r.pool.QueryRow(ctx, q,
		request.CompanyID,
		request.ContactID,
		request.RequestType,
		request.ScheduledFor,
		request.Notes,
		request.InternalNotes,
		request.AssignedToUserID,
	))
}

// GetServiceRequest fetches a request by id, scoped to the company.
func (r *PostgresRepository) GetServiceRequest(ctx context.Context, companyID, id string) (*ServiceRequest, error) {
	q := `SELECT ` + serviceRequestColumns + ` FROM service_requests WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL;`
	return scanServiceRequest(r.pool.QueryRow(ctx, q, companyID, id))
}

// UpdateServiceRequest applies a partial update. Internal notes are appended
// to the existing text, and completed_at is written at most once, on the
// first transition to completed.
func (r *PostgresRepository) UpdateServiceRequest(ctx context.Context, companyID, id string, update ServiceRequestUpdate) (*ServiceRequest, error) {
	q := `
UPDATE service_requests
SET request_type = COALESCE($3, request_type),
    status = COALESCE($4, status),
    scheduled_for = COALESCE($5, scheduled_for),
    notes = COALESCE($6, notes),
    internal_notes = CASE
        WHEN $7::text IS NULL THEN internal_notes
        WHEN internal_notes IS NULL OR internal_notes = '' THEN $7
        ELSE internal_notes || E'\n' || $7
    END,
    assigned_to_user_id = COALESCE($8, assigned_to_user_id),
    completed_at = CASE
        WHEN completed_at IS NOT NULL THEN completed_at
        WHEN $4 = 'completed' THEN NOW()
        ELSE NULL
    END,
    updated_at = NOW()
WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL
RETURNING ` + serviceRequestColumns + `;`
	return scanServiceRequest(r.pool.QueryRow(ctx, q, companyID, id,
		update.RequestType,
		update.Status,
		update.ScheduledFor,
		update.Notes,
		update.InternalNotes,
		update.AssignedToUserID,
	))
}

// ListServiceRequests returns requests for the company, newest first,
// optionally filtered by contact and status.
func (r *PostgresRepository) ListServiceRequests(ctx context.Context, companyID, contactID, status string, limit int) ([]ServiceRequest, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := `
SELECT ` + serviceRequestColumns + `
FROM service_requests
WHERE company_id = $1 AND deleted_at IS NULL
  AND ($2 = '' OR contact_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY created_at DESC
LIMIT $4;
`
	rows, err := r.pool.Query(ctx, q, companyID, contactID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list service requests: %w", err)
	}
	defer rows.Close()

	var requests []ServiceRequest
	for rows.Next() {
		var s ServiceRequest
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.ContactID, &s.RequestType, &s.Status, &s.ScheduledFor, &s.Notes, &s.InternalNotes, &s.AssignedToUserID, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan service request row: %w", err)
		}
		requests = append(requests, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service request rows: %w", err)
	}
	return requests, nil
}
