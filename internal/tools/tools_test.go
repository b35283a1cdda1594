package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"juliabot/internal/llm"
	"juliabot/internal/repo"
)

// stubRepo records calls and answers from in-memory maps. Methods not
// implemented here panic through the embedded nil interface.
type stubRepo struct {
	repo.Repository

	mu           sync.Mutex
	contacts     map[string]*repo.Contact // by phone
	nextID       int
	members      []repo.CompanyMember
	negotiations map[string]*repo.Negotiation
	requests     map[string]*repo.ServiceRequest
	memories     []repo.MemoryEntry
	flipErr      error
	flips        int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		contacts:     map[string]*repo.Contact{},
		negotiations: map[string]*repo.Negotiation{},
		requests:     map[string]*repo.ServiceRequest{},
	}
}

func (s *stubRepo) CreateContact(_ context.Context, contact repo.Contact) (*repo.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if contact.Phone != nil {
		if existing, ok := s.contacts[*contact.Phone]; ok {
			return existing, nil
		}
	}
	s.nextID++
	contact.ID = fmt.Sprintf("contact-%d", s.nextID)
	created := contact
	if contact.Phone != nil {
		s.contacts[*contact.Phone] = &created
	}
	return &created, nil
}

func (s *stubRepo) GetContact(_ context.Context, _, id string) (*repo.Contact, error) {
	for _, c := range s.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *stubRepo) ListCompanyMembers(context.Context, string) ([]repo.CompanyMember, error) {
	return s.members, nil
}

func (s *stubRepo) GetCompanyMember(_ context.Context, companyID, userID string) (*repo.CompanyMember, error) {
	for i := range s.members {
		if s.members[i].ID == userID && s.members[i].CompanyID == companyID {
			return &s.members[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *stubRepo) CreateNegotiation(_ context.Context, n repo.Negotiation) (*repo.Negotiation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = "neg-1"
	n.Status = repo.NegotiationActive
	s.negotiations[n.ID] = &n
	return &n, nil
}

func (s *stubRepo) GetNegotiation(_ context.Context, _, id string) (*repo.Negotiation, error) {
	if n, ok := s.negotiations[id]; ok {
		return n, nil
	}
	return nil, repo.ErrNotFound
}

func (s *stubRepo) FlipNegotiationTurn(_ context.Context, id, _, newPending string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flipErr != nil {
		return s.flipErr
	}
	s.flips++
	if n, ok := s.negotiations[id]; ok {
		n.InteractionPending = newPending
	}
	return nil
}

func (s *stubRepo) UpdateNegotiation(_ context.Context, _, id string, update repo.NegotiationUpdate) (*repo.Negotiation, error) {
	n, ok := s.negotiations[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if update.Status != nil {
		n.Status = *update.Status
	}
	return n, nil
}

type noopInvoker struct{}

func (noopInvoker) Invoke(context.Context, []llm.Message, []llm.ToolSchema) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{}, nil
}
func (noopInvoker) InvokeStructured(context.Context, []llm.Message, any) error { return nil }
func (noopInvoker) Embed(context.Context, string) ([]float32, error)           { return nil, nil }

type noopGateway struct{}

func (noopGateway) SendText(context.Context, string, string, string) error     { return nil }
func (noopGateway) SendPresence(context.Context, string, string, string) error { return nil }
func (noopGateway) Status(string) string                                       { return "connected" }

func newTestRegistry(s *stubRepo) *Registry {
	return NewRegistry(s, noopGateway{}, noopInvoker{}, slog.Default(), nil)
}

func ownerContext() Context {
	return Context{
		CompanyID: "company-1",
		Instance:  "acme",
		Persona:   PersonaOwner,
		UserID:    "user-1",
		SessionID: "user-1",
	}
}

func TestSchemasAreFilteredByPersona(t *testing.T) {
	r := newTestRegistry(newStubRepo())

	clientNames := map[string]bool{}
	for _, s := range r.Schemas(PersonaClient) {
		clientNames[s.Function.Name] = true
	}
	if clientNames["create_contact"] {
		t.Fatal("create_contact must not be visible to clients")
	}
	if clientNames["send_message"] {
		t.Fatal("send_message must not be visible to clients")
	}
	if !clientNames["create_confirmation"] {
		t.Fatal("clients may open confirmations")
	}

	ownerNames := map[string]bool{}
	for _, s := range r.Schemas(PersonaOwner) {
		ownerNames[s.Function.Name] = true
	}
	if !ownerNames["create_contact"] || !ownerNames["send_message"] {
		t.Fatal("owner must see contact and messaging tools")
	}
	if ownerNames["finish_onboarding"] {
		t.Fatal("finish_onboarding is onboarding-only")
	}
}

func TestExecuteUnknownToolFails(t *testing.T) {
	r := newTestRegistry(newStubRepo())
	if _, err := r.Execute(context.Background(), ownerContext(), "no_such_tool", "{}"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecuteForbiddenPersonaFails(t *testing.T) {
	r := newTestRegistry(newStubRepo())
	tc := ownerContext()
	tc.Persona = PersonaClient
	tc.ContactID = "contact-1"
	if _, err := r.Execute(context.Background(), tc, "create_contact", `{"name":"Maria"}`); err == nil {
		t.Fatal("clients must not reach owner tools")
	}
}

func TestExecuteRejectsMissingRequiredArgs(t *testing.T) {
	r := newTestRegistry(newStubRepo())
	_, err := r.Execute(context.Background(), ownerContext(), "create_contact", `{}`)
	if err == nil {
		t.Fatal("expected missing-argument error")
	}
	if !strings.Contains(err.Error(), "name") {
		t.Fatalf("error must name the missing field, got %v", err)
	}
}

func TestExecuteRepairsSloppyArguments(t *testing.T) {
	r := newTestRegistry(newStubRepo())
	result, err := r.Execute(context.Background(), ownerContext(), "create_contact", `{'name': 'Maria', 'phone': '5511888880000'}`)
	if err != nil {
		t.Fatalf("sloppy but repairable json must be accepted: %v", err)
	}
	if !strings.Contains(result, "Maria") {
		t.Fatalf("unexpected result %s", result)
	}
}

func TestCreateContactIsIdempotentByPhone(t *testing.T) {
	s := newStubRepo()
	r := newTestRegistry(s)

	first, err := r.Execute(context.Background(), ownerContext(), "create_contact", `{"name":"Maria","phone":"5511888880000"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Execute(context.Background(), ownerContext(), "create_contact", `{"name":"Maria de novo","phone":"5511888880000"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("same phone must return the same contact: %s vs %s", first, second)
	}
}
