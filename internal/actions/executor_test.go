package actions

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"juliabot/internal/repo"
)

type execRepo struct {
	repo.Repository

	contacts     map[string]*repo.Contact
	members      map[string]*repo.CompanyMember
	company      *repo.Company
	descriptions []string
	finished     bool
	requests     []repo.ServiceRequest
}

func (r *execRepo) GetContact(_ context.Context, _, id string) (*repo.Contact, error) {
	if c, ok := r.contacts[id]; ok {
		return c, nil
	}
	return nil, repo.ErrNotFound
}

func (r *execRepo) GetCompanyMember(_ context.Context, companyID, userID string) (*repo.CompanyMember, error) {
	if m, ok := r.members[userID]; ok && m.CompanyID == companyID {
		return m, nil
	}
	return nil, repo.ErrNotFound
}

func (r *execRepo) AppendMemory(context.Context, repo.MemoryEntry) error { return nil }

func (r *execRepo) GetCompany(context.Context, string) (*repo.Company, error) {
	return r.company, nil
}

func (r *execRepo) UpdateCompanyDescription(_ context.Context, _, description string) error {
	r.descriptions = append(r.descriptions, description)
	return nil
}

func (r *execRepo) FinishCompanyOnboarding(context.Context, string, string) error {
	r.finished = true
	return nil
}

func (r *execRepo) CreateServiceRequest(_ context.Context, req repo.ServiceRequest) (*repo.ServiceRequest, error) {
	req.ID = "req-1"
	r.requests = append(r.requests, req)
	return &req, nil
}

type recordingGateway struct {
	sent []string
}

func (g *recordingGateway) SendText(_ context.Context, _, phone, text string) error {
	g.sent = append(g.sent, phone+": "+text)
	return nil
}

func (g *recordingGateway) SendPresence(context.Context, string, string, string) error { return nil }
func (g *recordingGateway) Status(string) string                                       { return "connected" }

func newTestExecutor(r *execRepo, g *recordingGateway) *Executor {
	return NewExecutor(r, g, slog.Default(), nil)
}

func execContext() Context {
	return Context{CompanyID: "company-1", InstanceName: "acme"}
}

func TestExecuteUnknownTypeFails(t *testing.T) {
	e := newTestExecutor(&execRepo{}, &recordingGateway{})
	res := e.Execute(context.Background(), Action{Type: "MAKE_COFFEE"}, execContext())
	if res.Success {
		t.Fatal("unknown action types must fail")
	}
	if res.Error == "" {
		t.Fatal("failure must carry an error message")
	}
}

func TestExecuteRequiresCompany(t *testing.T) {
	e := newTestExecutor(&execRepo{}, &recordingGateway{})
	res := e.Execute(context.Background(), Action{Type: TypeUpdateCompany}, Context{})
	if res.Success {
		t.Fatal("missing company must fail")
	}
}

func TestSendMessageDeliversToContact(t *testing.T) {
	phone := "5511888880000"
	r := &execRepo{contacts: map[string]*repo.Contact{
		"c1": {ID: "c1", Name: "Maria", Phone: &phone},
	}}
	g := &recordingGateway{}
	e := newTestExecutor(r, g)

	payload, _ := json.Marshal(map[string]string{"contactId": "c1", "message": "seu carro está pronto"})
	res := e.Execute(context.Background(), Action{Type: TypeSendMessage, Payload: payload}, execContext())
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if len(g.sent) != 1 || !strings.Contains(g.sent[0], phone) {
		t.Fatalf("unexpected deliveries %v", g.sent)
	}
}

func TestSendMessageFailsWithoutPhone(t *testing.T) {
	r := &execRepo{contacts: map[string]*repo.Contact{
		"c1": {ID: "c1", Name: "Maria"},
	}}
	e := newTestExecutor(r, &recordingGateway{})

	payload, _ := json.Marshal(map[string]string{"contactId": "c1", "message": "oi"})
	res := e.Execute(context.Background(), Action{Type: TypeSendMessage, Payload: payload}, execContext())
	if res.Success {
		t.Fatal("a contact without phone cannot receive messages")
	}
}

func TestNotifyUserStaysInsideCompany(t *testing.T) {
	r := &execRepo{members: map[string]*repo.CompanyMember{
		"user-1": {User: repo.User{ID: "user-1", Name: "Ana", Phone: "5511999990000"}, CompanyID: "company-1", Role: repo.RoleOwner},
		"user-9": {User: repo.User{ID: "user-9", Name: "Rui", Phone: "5511777770000"}, CompanyID: "company-2", Role: repo.RoleOwner},
	}}
	g := &recordingGateway{}
	e := newTestExecutor(r, g)

	payload, _ := json.Marshal(map[string]string{"userId": "user-1", "message": "novo pedido"})
	res := e.Execute(context.Background(), Action{Type: TypeNotifyUser, Payload: payload}, execContext())
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if len(g.sent) != 1 || !strings.Contains(g.sent[0], "5511999990000") {
		t.Fatalf("unexpected deliveries %v", g.sent)
	}

	// A user id from another company must never receive anything, even when
	// the model supplies it verbatim.
	payload, _ = json.Marshal(map[string]string{"userId": "user-9", "message": "novo pedido"})
	res = e.Execute(context.Background(), Action{Type: TypeNotifyUser, Payload: payload}, execContext())
	if res.Success {
		t.Fatal("foreign user ids must be rejected")
	}
	if len(g.sent) != 1 {
		t.Fatalf("nothing may be sent across companies, got %v", g.sent)
	}
}

func TestExecuteAllCollectsPerActionResults(t *testing.T) {
	r := &execRepo{company: &repo.Company{ID: "company-1", Step: repo.CompanyStepOnboarding}}
	e := newTestExecutor(r, &recordingGateway{})

	payload, _ := json.Marshal(map[string]string{"description": "oficina mecânica"})
	results := e.ExecuteAll(context.Background(), []Action{
		{Type: TypeUpdateCompany, Payload: payload},
		{Type: "BROKEN"},
		{Type: TypeFinishOnboarding},
	}, execContext())

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Fatalf("unexpected outcomes %+v", results)
	}
	if len(r.descriptions) != 1 || r.descriptions[0] != "oficina mecânica" {
		t.Fatalf("description not stored: %v", r.descriptions)
	}
	if !r.finished {
		t.Fatal("onboarding must be finished")
	}
}

func TestCreateServiceRequestDefaultsToContextContact(t *testing.T) {
	r := &execRepo{}
	e := newTestExecutor(r, &recordingGateway{})

	ec := execContext()
	ec.ContactID = "c9"
	payload, _ := json.Marshal(map[string]string{"description": "troca de óleo"})
	res := e.Execute(context.Background(), Action{Type: TypeCreateServiceRequest, Payload: payload}, ec)
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if len(r.requests) != 1 || r.requests[0].ContactID != "c9" {
		t.Fatalf("unexpected requests %+v", r.requests)
	}
	if r.requests[0].Status != repo.RequestStatusPending {
		t.Fatalf("new requests start pending, got %s", r.requests[0].Status)
	}
	if res.Data["requestId"] != "req-1" || res.Data["status"] != repo.RequestStatusPending {
		t.Fatalf("structured result must carry the created id, got %v", res.Data)
	}
}
