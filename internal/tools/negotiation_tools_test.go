package tools

import (
	"context"
	"strings"
	"testing"

	"juliabot/internal/repo"
)

func seedContact(s *stubRepo) {
	phone := "5511888880000"
	s.contacts[phone] = &repo.Contact{ID: "contact-1", CompanyID: "company-1", Name: "Maria", Phone: &phone}
}

func TestCreateConfirmationResolvesResponsibleUser(t *testing.T) {
	s := newStubRepo()
	seedContact(s)
	s.members = []repo.CompanyMember{
		{User: repo.User{ID: "emp-1", Name: "Bruno"}, Role: repo.RoleEmployee},
		{User: repo.User{ID: "owner-1", Name: "Ana"}, Role: repo.RoleOwner},
	}
	r := newTestRegistry(s)

	tc := Context{CompanyID: "company-1", Persona: PersonaClient, ContactID: "contact-1", SessionID: "contact-1"}
	result, err := r.Execute(context.Background(), tc, "create_confirmation",
		`{"description":"desconto de 10%","expectedResult":"responsável aprova ou recusa","interactionPending":"user"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "neg-1") {
		t.Fatalf("unexpected result %s", result)
	}

	created := s.negotiations["neg-1"]
	if created.UserID != "owner-1" {
		t.Fatalf("expected owner as responsible, got %s", created.UserID)
	}
	if created.ContactID != "contact-1" {
		t.Fatalf("contact must default to the conversation, got %s", created.ContactID)
	}
	if created.Kind != repo.NegotiationConfirmation {
		t.Fatalf("unexpected kind %s", created.Kind)
	}
}

func TestCreateConfirmationRejectsBadPendingSide(t *testing.T) {
	s := newStubRepo()
	seedContact(s)
	r := newTestRegistry(s)

	tc := Context{CompanyID: "company-1", Persona: PersonaClient, ContactID: "contact-1"}
	_, err := r.Execute(context.Background(), tc, "create_confirmation",
		`{"description":"x","expectedResult":"y","interactionPending":"nobody"}`)
	if err == nil {
		t.Fatal("expected error for invalid interactionPending")
	}
}

func TestUpdateConfirmationFlipsTurnConditionally(t *testing.T) {
	s := newStubRepo()
	s.negotiations["neg-1"] = &repo.Negotiation{
		ID:                 "neg-1",
		CompanyID:          "company-1",
		Kind:               repo.NegotiationConfirmation,
		Status:             repo.NegotiationActive,
		InteractionPending: repo.PendingUser,
	}
	r := newTestRegistry(s)

	_, err := r.Execute(context.Background(), ownerContext(), "update_confirmation",
		`{"id":"neg-1","interactionPending":"contact"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.flips != 1 {
		t.Fatalf("expected one conditional flip, got %d", s.flips)
	}
	if s.negotiations["neg-1"].InteractionPending != repo.PendingContact {
		t.Fatal("turn must have moved to the contact")
	}

	// Same target side again: no flip needed.
	if _, err := r.Execute(context.Background(), ownerContext(), "update_confirmation",
		`{"id":"neg-1","interactionPending":"contact"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.flips != 1 {
		t.Fatalf("no flip expected when the turn already matches, got %d", s.flips)
	}
}

func TestUpdateConfirmationSurfacesLostRace(t *testing.T) {
	s := newStubRepo()
	s.negotiations["neg-1"] = &repo.Negotiation{
		ID:                 "neg-1",
		CompanyID:          "company-1",
		Kind:               repo.NegotiationConfirmation,
		Status:             repo.NegotiationActive,
		InteractionPending: repo.PendingUser,
	}
	s.flipErr = repo.ErrConflict
	r := newTestRegistry(s)

	_, err := r.Execute(context.Background(), ownerContext(), "update_confirmation",
		`{"id":"neg-1","interactionPending":"contact"}`)
	if err == nil {
		t.Fatal("a lost conditional flip must surface as an error")
	}
	if !strings.Contains(err.Error(), "mudou de estado") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUpdateConfirmationCanClose(t *testing.T) {
	s := newStubRepo()
	s.negotiations["neg-1"] = &repo.Negotiation{
		ID:                 "neg-1",
		CompanyID:          "company-1",
		Kind:               repo.NegotiationConfirmation,
		Status:             repo.NegotiationActive,
		InteractionPending: repo.PendingUser,
	}
	r := newTestRegistry(s)

	result, err := r.Execute(context.Background(), ownerContext(), "update_confirmation",
		`{"id":"neg-1","status":"closed"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "closed") {
		t.Fatalf("unexpected result %s", result)
	}
}
