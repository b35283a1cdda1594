package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"juliabot/internal/metrics"
	"juliabot/internal/repo"
)

// Drop reasons reported by the router. A dropped message is a silent no-op,
// never an error.
const (
	DropFromMe          = "from_me"
	DropUnknownInstance = "unknown_instance"
	DropSupportDisabled = "support_disabled"
	DropUnknownContact  = "unknown_contact"
	DropPaused          = "paused"
)

// Router resolves an inbound message to exactly one conversation persona.
type Router struct {
	repo    repo.Repository
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter creates a conversation router.
func NewRouter(repository repo.Repository, logger *slog.Logger, metricRegistry *metrics.Metrics) *Router {
	return &Router{
		repo:    repository,
		logger:  logger.With("component", "router"),
		metrics: metricRegistry,
	}
}

// Resolve maps (instance, sender phone) to a conversation. A nil conversation
// with a non-empty drop reason means the message must be ignored.
func (r *Router) Resolve(ctx context.Context, instance, phone string) (*Conversation, string, error) {
	company, err := r.repo.GetCompanyByInstance(ctx, instance)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			r.drop(DropUnknownInstance)
			r.logger.Warn("message for unknown instance", "instance", instance)
			return nil, DropUnknownInstance, nil
		}
		return nil, "", fmt.Errorf("resolve company: %w", err)
	}

	member, err := r.repo.FindCompanyMemberByPhone(ctx, company.ID, phone)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, "", fmt.Errorf("resolve member: %w", err)
	}
	if member != nil {
		kind := PersonaOwner
		if company.Step == repo.CompanyStepOnboarding {
			kind = PersonaOnboarding
		}
		return &Conversation{
			Kind:     kind,
			Company:  company,
			Instance: instance,
			Member:   member,
		}, "", nil
	}

	if !company.ClientsSupportEnabled {
		r.drop(DropSupportDisabled)
		return nil, DropSupportDisabled, nil
	}

	contact, err := r.repo.FindContactByPhone(ctx, company.ID, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Contacts are never auto-created from inbound traffic.
			r.drop(DropUnknownContact)
			r.logger.Warn("message from unknown contact", "instance", instance, "phone", phone)
			return nil, DropUnknownContact, nil
		}
		return nil, "", fmt.Errorf("resolve contact: %w", err)
	}

	if contact.IgnoreUntil != nil && contact.IgnoreUntil.After(time.Now()) {
		r.drop(DropPaused)
		return nil, DropPaused, nil
	}

	return &Conversation{
		Kind:     PersonaClient,
		Company:  company,
		Instance: instance,
		Contact:  contact,
	}, "", nil
}

func (r *Router) drop(reason string) {
	if r.metrics != nil {
		r.metrics.DroppedMessages.WithLabelValues(reason).Inc()
	}
}
