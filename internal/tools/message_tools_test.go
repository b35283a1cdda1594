package tools

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"juliabot/internal/repo"
)

type recGateway struct {
	sent []string
}

func (g *recGateway) SendText(_ context.Context, _, phone, text string) error {
	g.sent = append(g.sent, phone+": "+text)
	return nil
}

func (g *recGateway) SendPresence(context.Context, string, string, string) error { return nil }
func (g *recGateway) Status(string) string                                       { return "connected" }

func (s *stubRepo) AppendMemory(_ context.Context, entry repo.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = append(s.memories, entry)
	return nil
}

func TestSendMessageToMemberStaysInsideCompany(t *testing.T) {
	s := newStubRepo()
	s.members = []repo.CompanyMember{
		{User: repo.User{ID: "user-2", Name: "Bruno", Phone: "5511999990000"}, CompanyID: "company-1", Role: repo.RoleEmployee},
		{User: repo.User{ID: "user-9", Name: "Rui", Phone: "5511777770000"}, CompanyID: "company-2", Role: repo.RoleOwner},
	}
	g := &recGateway{}
	r := NewRegistry(s, g, noopInvoker{}, slog.Default(), nil)

	result, err := r.Execute(context.Background(), ownerContext(), "send_message",
		`{"recipientId":"user-2","recipientType":"user","text":"reunião às 15h"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "enviada") {
		t.Fatalf("unexpected result %s", result)
	}
	if len(g.sent) != 1 || !strings.Contains(g.sent[0], "5511999990000") {
		t.Fatalf("unexpected deliveries %v", g.sent)
	}
	if len(s.memories) != 1 || s.memories[0].SessionID != "user-2" {
		t.Fatalf("sent text must join the recipient transcript, got %+v", s.memories)
	}

	// A member of another company must not be reachable even with a valid id.
	_, err = r.Execute(context.Background(), ownerContext(), "send_message",
		`{"recipientId":"user-9","recipientType":"user","text":"oi"}`)
	if err == nil || !strings.Contains(err.Error(), "membro não encontrado") {
		t.Fatalf("expected membership error, got %v", err)
	}
	if len(g.sent) != 1 {
		t.Fatalf("nothing may be sent across companies, got %v", g.sent)
	}
}
