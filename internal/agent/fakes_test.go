package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"juliabot/internal/llm"
	"juliabot/internal/repo"
)

// fakeRepo implements the subset of repo.Repository the agent touches.
// Unimplemented methods panic via the embedded nil interface, which is fine:
// a test reaching one of them is a test with a wrong setup.
type fakeRepo struct {
	repo.Repository

	mu           sync.Mutex
	companies    map[string]*repo.Company       // by instance
	members      map[string]*repo.CompanyMember // by phone
	contacts     map[string]*repo.Contact       // by phone
	memberList   []repo.CompanyMember
	negotiations []repo.Negotiation
	memory       map[string][]repo.MemoryEntry
	checkpoints  map[string][]byte
	ignoredUntil map[string]time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		companies:    map[string]*repo.Company{},
		members:      map[string]*repo.CompanyMember{},
		contacts:     map[string]*repo.Contact{},
		memory:       map[string][]repo.MemoryEntry{},
		checkpoints:  map[string][]byte{},
		ignoredUntil: map[string]time.Time{},
	}
}

func (f *fakeRepo) GetCompanyByInstance(_ context.Context, instance string) (*repo.Company, error) {
	if c, ok := f.companies[instance]; ok {
		return c, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeRepo) FindCompanyMemberByPhone(_ context.Context, _, phone string) (*repo.CompanyMember, error) {
	if m, ok := f.members[phone]; ok {
		return m, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeRepo) FindContactByPhone(_ context.Context, _, phone string) (*repo.Contact, error) {
	if c, ok := f.contacts[phone]; ok {
		return c, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeRepo) ListCompanyMembers(_ context.Context, _ string) ([]repo.CompanyMember, error) {
	return f.memberList, nil
}

func (f *fakeRepo) SearchContacts(_ context.Context, _, _ string, _ int) ([]repo.Contact, error) {
	return nil, nil
}

func (f *fakeRepo) SetContactIgnoreUntil(_ context.Context, _, id string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignoredUntil[id] = until
	return nil
}

func (f *fakeRepo) SearchNegotiations(_ context.Context, _ repo.NegotiationFilter) ([]repo.Negotiation, error) {
	return f.negotiations, nil
}

func (f *fakeRepo) AppendMemory(_ context.Context, entry repo.MemoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memory[entry.SessionID] = append(f.memory[entry.SessionID], entry)
	return nil
}

func (f *fakeRepo) ListRecentMemory(_ context.Context, sessionID string, limit int) ([]repo.MemoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.memory[sessionID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (f *fakeRepo) SaveCheckpoint(_ context.Context, cp repo.AgentCheckpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints[cp.SessionID] = cp.State
	return nil
}

func (f *fakeRepo) LoadCheckpoint(_ context.Context, sessionID string) (*repo.AgentCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.checkpoints[sessionID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &repo.AgentCheckpoint{SessionID: sessionID, State: state}, nil
}

func (f *fakeRepo) ClearCheckpoint(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.checkpoints, sessionID)
	return nil
}

// fakeInvoker returns scripted chat responses in order and serves structured
// calls from a fixed JSON document.
type fakeInvoker struct {
	mu         sync.Mutex
	responses  []*llm.ChatResponse
	calls      [][]llm.Message
	structured string
}

func (f *fakeInvoker) Invoke(_ context.Context, messages []llm.Message, _ []llm.ToolSchema) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]llm.Message{}, messages...))
	if len(f.responses) == 0 {
		return &llm.ChatResponse{}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeInvoker) InvokeStructured(_ context.Context, _ []llm.Message, out any) error {
	return json.Unmarshal([]byte(f.structured), out)
}

func (f *fakeInvoker) Embed(context.Context, string) ([]float32, error) {
	return nil, nil
}

type sentMessage struct {
	Instance string
	Phone    string
	Text     string
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeGateway) SendText(_ context.Context, instance, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Instance: instance, Phone: phone, Text: text})
	return nil
}

func (f *fakeGateway) SendPresence(context.Context, string, string, string) error { return nil }

func (f *fakeGateway) Status(string) string { return "connected" }

func (f *fakeGateway) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage{}, f.sent...)
}

type fakeLocker struct{}

func (fakeLocker) WaitLock(context.Context, string, time.Duration) (string, error) {
	return "token", nil
}

func (fakeLocker) ReleaseLock(context.Context, string, string) error { return nil }
