// Package agent implements the conversation routing and orchestration engine:
// it decides which persona handles an inbound message, drives the model
// through a bounded tool-calling loop and manages human handoff.
package agent

import (
	"juliabot/internal/repo"
	"juliabot/internal/tools"
)

// PersonaKind identifies which conversational persona handles a message.
type PersonaKind int

const (
	// PersonaClient is the client-facing secretary.
	PersonaClient PersonaKind = iota
	// PersonaOwner is the assistant for company owners and employees.
	PersonaOwner
	// PersonaOnboarding guides an owner through company setup.
	PersonaOnboarding
)

// String returns the persona name used in metrics and tool visibility.
func (k PersonaKind) String() string {
	switch k {
	case PersonaOwner:
		return tools.PersonaOwner
	case PersonaOnboarding:
		return tools.PersonaOnboarding
	default:
		return tools.PersonaClient
	}
}

// Conversation is the routing result for one inbound message: exactly one of
// Contact or Member is set, matching Kind.
type Conversation struct {
	Kind     PersonaKind
	Company  *repo.Company
	Instance string

	// Contact is set for PersonaClient.
	Contact *repo.Contact
	// Member is set for PersonaOwner and PersonaOnboarding.
	Member *repo.CompanyMember
}

// SessionID is the stable thread key for memory and checkpointing.
func (c *Conversation) SessionID() string {
	if c.Kind == PersonaClient {
		return c.Contact.ID
	}
	return c.Member.ID
}

// Phone returns the counterpart's phone number for outbound delivery.
func (c *Conversation) Phone() string {
	if c.Kind == PersonaClient {
		if c.Contact.Phone != nil {
			return *c.Contact.Phone
		}
		return ""
	}
	return c.Member.Phone
}

// ToolContext builds the routing context handed to every tool execution.
func (c *Conversation) ToolContext() tools.Context {
	tc := tools.Context{
		CompanyID: c.Company.ID,
		Instance:  c.Instance,
		Persona:   c.Kind.String(),
		SessionID: c.SessionID(),
	}
	if c.Kind == PersonaClient {
		tc.ContactID = c.Contact.ID
	} else {
		tc.UserID = c.Member.ID
	}
	return tc
}
