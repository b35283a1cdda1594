package repo

import "time"

// Company onboarding steps.
const (
	CompanyStepOnboarding = "onboarding"
	CompanyStepRunning    = "running"
)

// UserCompany roles, in escalation priority order.
const (
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// Service request statuses.
const (
	RequestStatusPending      = "pending"
	RequestStatusConfirmed    = "confirmed"
	RequestStatusInProgress   = "in_progress"
	RequestStatusWaitingParts = "waiting_parts"
	RequestStatusReady        = "ready"
	RequestStatusCompleted    = "completed"
	RequestStatusCancelled    = "cancelled"
)

// Negotiation kinds and statuses.
const (
	NegotiationConfirmation = "confirmation"
	NegotiationMediation    = "mediation"

	NegotiationActive = "active"
	NegotiationClosed = "closed"

	PendingUser    = "user"
	PendingContact = "contact"
)

// Memory roles.
const (
	RoleSystem    = "system"
	RoleUserMsg   = "user"
	RoleAssistant = "assistant"
)

// Company represents the companies table row.
type Company struct {
	ID                    string
	Name                  string
	Description           string
	Step                  string
	ClientsSupportEnabled bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// User represents the users table row.
type User struct {
	ID        string
	Name      string
	Phone     string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CompanyMember is a user joined with their role in a company.
type CompanyMember struct {
	User
	CompanyID string
	Role      string
}

// Contact represents the contacts table row.
type Contact struct {
	ID              string
	CompanyID       string
	Name            string
	Phone           *string
	Email           *string
	Instagram       *string
	IgnoreUntil     *time.Time
	PreferredUserID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ContactUpdate carries optional fields for a partial contact update.
type ContactUpdate struct {
	Name            *string
	Phone           *string
	Email           *string
	Instagram       *string
	IgnoreUntil     *time.Time
	PreferredUserID *string
}

// MemoryEntry is one append-only transcript row keyed by session id.
type MemoryEntry struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// ServiceRequest represents the service_requests table row.
type ServiceRequest struct {
	ID               string
	CompanyID        string
	ContactID        string
	RequestType      string
	Status           string
	ScheduledFor     *time.Time
	Notes            *string
	InternalNotes    *string
	AssignedToUserID *string
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ServiceRequestUpdate carries optional fields for a partial update.
// InternalNotes are appended to the existing notes, never replaced.
type ServiceRequestUpdate struct {
	RequestType      *string
	Status           *string
	ScheduledFor     *time.Time
	Notes            *string
	InternalNotes    *string
	AssignedToUserID *string
}

// Negotiation is a pending owner-contact negotiation with turn tracking.
// Confirmations and mediations share this shape, distinguished by Kind.
type Negotiation struct {
	ID                 string
	CompanyID          string
	UserID             string
	ContactID          string
	Kind               string
	Status             string
	InteractionPending string
	Description        string
	ExpectedResult     string
	Metadata           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NegotiationUpdate carries optional fields for a partial negotiation update.
type NegotiationUpdate struct {
	Status             *string
	InteractionPending *string
	Description        *string
	ExpectedResult     *string
	Metadata           map[string]any
}

// NegotiationFilter narrows negotiation searches. Zero values are ignored.
type NegotiationFilter struct {
	CompanyID          string
	Kind               string
	Status             string
	InteractionPending string
	ContactID          string
	UserID             string
	Limit              int
}

// AgentCheckpoint persists the agent loop position for one session so a
// crashed turn resumes from the last completed node.
type AgentCheckpoint struct {
	SessionID string
	Node      string
	State     []byte
	UpdatedAt time.Time
}
