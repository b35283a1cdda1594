package repo

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoResponsibleUser indicates a company has no associated users at all.
var ErrNoResponsibleUser = errors.New("no responsible user")

// ResolveResponsibleUser finds the user who should handle escalations and
// negotiations for a contact: the contact's preferred user when still
// associated with the company, else the first owner (members come ordered by
// role priority then name), else any member by the same ordering.
func ResolveResponsibleUser(ctx context.Context, r Repository, companyID string, contact *Contact) (*CompanyMember, error) {
	members, err := r.ListCompanyMembers(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list members for responsible resolution: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrNoResponsibleUser
	}

	if contact != nil && contact.PreferredUserID != nil {
		for i := range members {
			if members[i].ID == *contact.PreferredUserID {
				return &members[i], nil
			}
		}
	}

	for i := range members {
		if members[i].Role == RoleOwner {
			return &members[i], nil
		}
	}
	return &members[0], nil
}
