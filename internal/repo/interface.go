package repo

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// ErrNotFound indicates the referenced entity does not exist (or is deleted).
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a conditional update lost against a concurrent writer.
var ErrConflict = errors.New("conflict")

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Companies
	GetCompany(ctx context.Context, id string) (*Company, error)
	GetCompanyByInstance(ctx context.Context, instance string) (*Company, error)
	UpdateCompanyDescription(ctx context.Context, id, description string) error
	FinishCompanyOnboarding(ctx context.Context, id, description string) error

	// Users
	GetCompanyMember(ctx context.Context, companyID, userID string) (*CompanyMember, error)
	FindCompanyMemberByPhone(ctx context.Context, companyID, phone string) (*CompanyMember, error)
	ListCompanyMembers(ctx context.Context, companyID string) ([]CompanyMember, error)
	SearchUsers(ctx context.Context, companyID, query string, limit int) ([]CompanyMember, error)

	// Contacts
	GetContact(ctx context.Context, companyID, id string) (*Contact, error)
	FindContactByPhone(ctx context.Context, companyID, phone string) (*Contact, error)
	CreateContact(ctx context.Context, contact Contact) (*Contact, error)
	UpdateContact(ctx context.Context, companyID, id string, update ContactUpdate) (*Contact, error)
	SetContactIgnoreUntil(ctx context.Context, companyID, id string, until time.Time) error
	SearchContacts(ctx context.Context, companyID, query string, limit int) ([]Contact, error)

	// Memory
	AppendMemory(ctx context.Context, entry MemoryEntry) error
	ListRecentMemory(ctx context.Context, sessionID string, limit int) ([]MemoryEntry, error)
	ClearMemory(ctx context.Context, sessionID string) error

	// Service requests
	CreateServiceRequest(ctx context.Context, request ServiceRequest) (*ServiceRequest, error)
	GetServiceRequest(ctx context.Context, companyID, id string) (*ServiceRequest, error)
	UpdateServiceRequest(ctx context.Context, companyID, id string, update ServiceRequestUpdate) (*ServiceRequest, error)
	ListServiceRequests(ctx context.Context, companyID, contactID, status string, limit int) ([]ServiceRequest, error)

	// Negotiations
	CreateNegotiation(ctx context.Context, negotiation Negotiation) (*Negotiation, error)
	GetNegotiation(ctx context.Context, companyID, id string) (*Negotiation, error)
	UpdateNegotiation(ctx context.Context, companyID, id string, update NegotiationUpdate) (*Negotiation, error)
	FlipNegotiationTurn(ctx context.Context, id, expectedPending, newPending string) error
	SearchNegotiations(ctx context.Context, filter NegotiationFilter) ([]Negotiation, error)

	// Agent checkpoints
	SaveCheckpoint(ctx context.Context, checkpoint AgentCheckpoint) error
	LoadCheckpoint(ctx context.Context, sessionID string) (*AgentCheckpoint, error)
	ClearCheckpoint(ctx context.Context, sessionID string) error
}
