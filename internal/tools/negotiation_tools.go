package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"juliabot/internal/repo"
)

func negotiationParameters(create bool) map[string]any {
	properties := map[string]any{
		"description": map[string]any{
			"type":        "string",
			"description": "O que está sendo negociado",
		},
		"expectedResult": map[string]any{
			"type":        "string",
			"description": "Condição de encerramento da negociação",
		},
		"interactionPending": map[string]any{
			"type":        "string",
			"description": "De quem é a vez de responder: user ou contact",
		},
	}
	required := []string{"id"}
	if create {
		properties["contactId"] = map[string]any{
			"type":        "string",
			"description": "Id do cliente envolvido. Na conversa com o cliente, pode ser omitido.",
		}
		properties["userId"] = map[string]any{
			"type":        "string",
			"description": "Id do membro responsável. Se omitido, é resolvido automaticamente.",
		}
		required = []string{"description", "expectedResult", "interactionPending"}
	} else {
		properties["id"] = map[string]any{
			"type":        "string",
			"description": "Id da negociação",
		}
		properties["status"] = map[string]any{
			"type":        "string",
			"description": "active ou closed",
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func (r *Registry) registerNegotiationTools() {
	kinds := []struct {
		kind   string
		suffix string
		label  string
	}{
		{repo.NegotiationConfirmation, "confirmation", "confirmação"},
		{repo.NegotiationMediation, "mediation", "mediação"},
	}

	for _, k := range kinds {
		kind := k.kind
		r.Register(&Tool{
			Name:        "create_" + k.suffix,
			Description: fmt.Sprintf("Abre uma %s pendente entre o responsável e um cliente, registrando o que está em negociação e quando ela termina.", k.label),
			Parameters:  negotiationParameters(true),
			Handler: func(ctx context.Context, tc Context, args map[string]any) (string, error) {
				return r.handleCreateNegotiation(ctx, tc, args, kind)
			},
		})
		r.Register(&Tool{
			Name:        "update_" + k.suffix,
			Description: fmt.Sprintf("Atualiza uma %s: passa a vez para a outra parte ou encerra quando o resultado esperado foi alcançado.", k.label),
			Parameters:  negotiationParameters(false),
			Handler:     r.handleUpdateNegotiation,
		})
		r.Register(&Tool{
			Name:        "search_" + k.suffix,
			Description: fmt.Sprintf("Lista %ss da empresa, das mais recentes para as mais antigas.", k.label),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type":        "string",
						"description": "active ou closed",
					},
					"contactId": map[string]any{
						"type":        "string",
						"description": "Filtra por cliente",
					},
				},
				"required": []string{},
			},
			Handler: func(ctx context.Context, tc Context, args map[string]any) (string, error) {
				return r.handleSearchNegotiation(ctx, tc, args, kind)
			},
		})
	}
}

func (r *Registry) handleCreateNegotiation(ctx context.Context, tc Context, args map[string]any, kind string) (string, error) {
	pending := stringArg(args, "interactionPending")
	if pending != repo.PendingUser && pending != repo.PendingContact {
		return "", errors.New("interactionPending deve ser user ou contact")
	}

	contactID := stringArg(args, "contactId")
	if contactID == "" {
		contactID = tc.ContactID
	}
	if contactID == "" {
		return "", errors.New("contactId é obrigatório nesta conversa")
	}

	userID := stringArg(args, "userId")
	if userID == "" {
		contact, err := r.repo.GetContact(ctx, tc.CompanyID, contactID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", errors.New("cliente não encontrado")
			}
			return "", fmt.Errorf("não foi possível carregar o cliente: %w", err)
		}
		member, err := repo.ResolveResponsibleUser(ctx, r.repo, tc.CompanyID, contact)
		if err != nil {
			return "", fmt.Errorf("não foi possível resolver o responsável: %w", err)
		}
		userID = member.ID
	}

	created, err := r.repo.CreateNegotiation(ctx, repo.Negotiation{
		CompanyID:          tc.CompanyID,
		UserID:             userID,
		ContactID:          contactID,
		Kind:               kind,
		InteractionPending: pending,
		Description:        stringArg(args, "description"),
		ExpectedResult:     stringArg(args, "expectedResult"),
	})
	if err != nil {
		return "", fmt.Errorf("não foi possível criar a negociação: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"id":                 created.ID,
		"status":             created.Status,
		"interactionPending": created.InteractionPending,
	})
	if err != nil {
		return "", fmt.Errorf("marshal negotiation: %w", err)
	}
	return string(payload), nil
}

func (r *Registry) handleUpdateNegotiation(ctx context.Context, tc Context, args map[string]any) (string, error) {
	update := repo.NegotiationUpdate{
		Description:    optionalStringArg(args, "description"),
		ExpectedResult: optionalStringArg(args, "expectedResult"),
	}
	if status := stringArg(args, "status"); status != "" {
		if status != repo.NegotiationActive && status != repo.NegotiationClosed {
			return "", errors.New("status deve ser active ou closed")
		}
		update.Status = &status
	}

	id := stringArg(args, "id")

	// Turn handoffs go through the conditional flip so two concurrent
	// updaters cannot both win the turn.
	if pending := stringArg(args, "interactionPending"); pending != "" {
		if pending != repo.PendingUser && pending != repo.PendingContact {
			return "", errors.New("interactionPending deve ser user ou contact")
		}
		current, err := r.repo.GetNegotiation(ctx, tc.CompanyID, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", errors.New("negociação não encontrada")
			}
			return "", fmt.Errorf("não foi possível carregar a negociação: %w", err)
		}
		if current.InteractionPending != pending {
			if err := r.repo.FlipNegotiationTurn(ctx, id, current.InteractionPending, pending); err != nil {
				if errors.Is(err, repo.ErrConflict) {
					return "", errors.New("a negociação mudou de estado, consulte novamente antes de atualizar")
				}
				return "", fmt.Errorf("não foi possível passar a vez: %w", err)
			}
		}
	}

	updated, err := r.repo.UpdateNegotiation(ctx, tc.CompanyID, id, update)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", errors.New("negociação não encontrada")
		}
		return "", fmt.Errorf("não foi possível atualizar a negociação: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"id":                 updated.ID,
		"status":             updated.Status,
		"interactionPending": updated.InteractionPending,
	})
	if err != nil {
		return "", fmt.Errorf("marshal negotiation: %w", err)
	}
	return string(payload), nil
}

func (r *Registry) handleSearchNegotiation(ctx context.Context, tc Context, args map[string]any, kind string) (string, error) {
	filter := repo.NegotiationFilter{
		CompanyID: tc.CompanyID,
		Kind:      kind,
		Status:    stringArg(args, "status"),
		ContactID: stringArg(args, "contactId"),
		Limit:     10,
	}
	if tc.Persona == PersonaClient {
		filter.ContactID = tc.ContactID
	}

	negotiations, err := r.repo.SearchNegotiations(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("falha na busca de negociações: %w", err)
	}
	if len(negotiations) == 0 {
		return "Nenhuma negociação encontrada.", nil
	}

	summaries := make([]map[string]any, 0, len(negotiations))
	for _, n := range negotiations {
		summaries = append(summaries, map[string]any{
			"id":                 n.ID,
			"status":             n.Status,
			"interactionPending": n.InteractionPending,
			"description":        n.Description,
			"expectedResult":     n.ExpectedResult,
			"createdAt":          n.CreatedAt.Format(time.RFC3339),
		})
	}
	payload, err := json.Marshal(summaries)
	if err != nil {
		return "", fmt.Errorf("marshal negotiations: %w", err)
	}
	return string(payload), nil
}
