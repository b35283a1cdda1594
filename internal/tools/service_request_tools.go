package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"juliabot/internal/repo"
)

func (r *Registry) registerServiceRequestTools() {
	r.Register(&Tool{
		Name:        "create_service_request",
		Description: "Abre uma solicitação de serviço para um cliente. A solicitação sempre começa com status pending.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"contactId": map[string]any{
					"type":        "string",
					"description": "Id do cliente. Na conversa com o cliente, pode ser omitido.",
				},
				"requestType": map[string]any{
					"type":        "string",
					"description": "Tipo do serviço solicitado",
				},
				"scheduledFor": map[string]any{
					"type":        "string",
					"description": "Data e hora agendadas, formato RFC 3339",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Observações visíveis ao cliente",
				},
				"assignedToUserId": map[string]any{
					"type":        "string",
					"description": "Id do membro responsável pelo serviço",
				},
			},
			"required": []string{"requestType"},
		},
		Handler: r.handleCreateServiceRequest,
	})

	r.Register(&Tool{
		Name:        "update_service_request",
		Description: "Atualiza parcialmente uma solicitação de serviço. Anotações internas são acrescentadas, nunca substituídas. Status possíveis: pending, confirmed, in_progress, waiting_parts, ready, completed, cancelled.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"requestId": map[string]any{
					"type":        "string",
					"description": "Id da solicitação",
				},
				"status": map[string]any{
					"type":        "string",
					"description": "Novo status",
				},
				"requestType": map[string]any{
					"type":        "string",
					"description": "Novo tipo de serviço",
				},
				"scheduledFor": map[string]any{
					"type":        "string",
					"description": "Nova data e hora, formato RFC 3339",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Observações visíveis ao cliente",
				},
				"internalNotes": map[string]any{
					"type":        "string",
					"description": "Anotação interna a acrescentar",
				},
				"assignedToUserId": map[string]any{
					"type":        "string",
					"description": "Id do membro responsável",
				},
			},
			"required": []string{"requestId"},
		},
		Handler: r.handleUpdateServiceRequest,
	})

	r.Register(&Tool{
		Name:        "search_service_request",
		Description: "Lista solicitações de serviço da empresa, das mais recentes para as mais antigas.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"contactId": map[string]any{
					"type":        "string",
					"description": "Filtra por cliente",
				},
				"status": map[string]any{
					"type":        "string",
					"description": "Filtra por status",
				},
			},
			"required": []string{},
		},
		Handler: r.handleSearchServiceRequest,
	})
}

func (r *Registry) handleCreateServiceRequest(ctx context.Context, tc Context, args map[string]any) (string, error) {
	contactID := stringArg(args, "contactId")
	if contactID == "" {
		contactID = tc.ContactID
	}
	if contactID == "" {
		return "", errors.New("contactId é obrigatório nesta conversa")
	}

	request := repo.ServiceRequest{
		CompanyID:        tc.CompanyID,
		ContactID:        contactID,
		RequestType:      stringArg(args, "requestType"),
		Notes:            optionalStringArg(args, "notes"),
		AssignedToUserID: optionalStringArg(args, "assignedToUserId"),
	}
	if scheduled := stringArg(args, "scheduledFor"); scheduled != "" {
		parsed, err := time.Parse(time.RFC3339, scheduled)
		if err != nil {
			return "", fmt.Errorf("scheduledFor inválido, use RFC 3339: %v", err)
		}
		request.ScheduledFor = &parsed
	}

	created, err := r.repo.CreateServiceRequest(ctx, request)
	if err != nil {
		return "", fmt.Errorf("não foi possível criar a solicitação: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":          created.ID,
		"requestType": created.RequestType,
		"status":      created.Status,
	})
	if err != nil {
		return "", fmt.Errorf("marshal service request: %w", err)
	}
	return string(payload), nil
}

func (r *Registry) handleUpdateServiceRequest(ctx context.Context, tc Context, args map[string]any) (string, error) {
	update := repo.ServiceRequestUpdate{
		RequestType:      optionalStringArg(args, "requestType"),
		Status:           optionalStringArg(args, "status"),
		Notes:            optionalStringArg(args, "notes"),
		InternalNotes:    optionalStringArg(args, "internalNotes"),
		AssignedToUserID: optionalStringArg(args, "assignedToUserId"),
	}
	if scheduled := stringArg(args, "scheduledFor"); scheduled != "" {
		parsed, err := time.Parse(time.RFC3339, scheduled)
		if err != nil {
			return "", fmt.Errorf("scheduledFor inválido, use RFC 3339: %v", err)
		}
		update.ScheduledFor = &parsed
	}

	updated, err := r.repo.UpdateServiceRequest(ctx, tc.CompanyID, stringArg(args, "requestId"), update)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", errors.New("solicitação não encontrada")
		}
		return "", fmt.Errorf("não foi possível atualizar a solicitação: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":     updated.ID,
		"status": updated.Status,
	})
	if err != nil {
		return "", fmt.Errorf("marshal service request: %w", err)
	}
	return string(payload), nil
}

func (r *Registry) handleSearchServiceRequest(ctx context.Context, tc Context, args map[string]any) (string, error) {
	contactID := stringArg(args, "contactId")
	if tc.Persona == PersonaClient {
		// Clients only ever see their own requests.
		contactID = tc.ContactID
	}
	requests, err := r.repo.ListServiceRequests(ctx, tc.CompanyID, contactID, stringArg(args, "status"), 10)
	if err != nil {
		return "", fmt.Errorf("falha na busca de solicitações: %w", err)
	}
	if len(requests) == 0 {
		return "Nenhuma solicitação encontrada.", nil
	}

	summaries := make([]map[string]any, 0, len(requests))
	for _, req := range requests {
		summary := map[string]any{
			"id":          req.ID,
			"requestType": req.RequestType,
			"status":      req.Status,
		}
		if req.ScheduledFor != nil {
			summary["scheduledFor"] = req.ScheduledFor.Format(time.RFC3339)
		}
		summaries = append(summaries, summary)
	}
	payload, err := json.Marshal(summaries)
	if err != nil {
		return "", fmt.Errorf("marshal service requests: %w", err)
	}
	return string(payload), nil
}
