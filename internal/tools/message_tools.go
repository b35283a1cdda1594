package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"juliabot/internal/repo"
)

func (r *Registry) registerMessageTools() {
	r.Register(&Tool{
		Name:        "send_message",
		Description: "Envia uma mensagem de WhatsApp para um cliente ou membro da equipe. A mensagem fica registrada na conversa do destinatário.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"recipientId": map[string]any{
					"type":        "string",
					"description": "Id do destinatário",
				},
				"recipientType": map[string]any{
					"type":        "string",
					"description": "contact ou user",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "Texto da mensagem",
				},
			},
			"required": []string{"recipientId", "recipientType", "text"},
		},
		Personas: []string{PersonaOwner},
		Handler:  r.handleSendMessage,
	})

	r.Register(&Tool{
		Name:        "search_conversation",
		Description: "Consulta as últimas mensagens trocadas com um cliente ou membro da equipe.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessionId": map[string]any{
					"type":        "string",
					"description": "Id do cliente ou do membro cuja conversa será consultada",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Quantidade de mensagens, padrão 10",
				},
			},
			"required": []string{"sessionId"},
		},
		Personas: []string{PersonaOwner},
		Handler:  r.handleSearchConversation,
	})
}

func (r *Registry) handleSendMessage(ctx context.Context, tc Context, args map[string]any) (string, error) {
	recipientID := stringArg(args, "recipientId")
	recipientType := stringArg(args, "recipientType")
	text := stringArg(args, "text")

	var phone string
	switch recipientType {
	case "contact":
		contact, err := r.repo.GetContact(ctx, tc.CompanyID, recipientID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", errors.New("cliente não encontrado")
			}
			return "", fmt.Errorf("não foi possível carregar o cliente: %w", err)
		}
		if contact.Phone == nil || *contact.Phone == "" {
			return "", errors.New("o cliente não tem telefone cadastrado")
		}
		phone = *contact.Phone
	case "user":
		member, err := r.repo.GetCompanyMember(ctx, tc.CompanyID, recipientID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", errors.New("membro não encontrado nesta empresa")
			}
			return "", fmt.Errorf("não foi possível carregar o membro: %w", err)
		}
		if member.Phone == "" {
			return "", errors.New("o membro não tem telefone cadastrado")
		}
		phone = member.Phone
	default:
		return "", errors.New("recipientType deve ser contact ou user")
	}

	if err := r.gateway.SendText(ctx, tc.Instance, phone, text); err != nil {
		return "", fmt.Errorf("não foi possível enviar a mensagem: %w", err)
	}

	// The sent text joins the recipient's transcript so it shows up in their
	// future context.
	if err := r.repo.AppendMemory(ctx, repo.MemoryEntry{
		SessionID: recipientID,
		Role:      repo.RoleAssistant,
		Content:   text,
		Metadata:  map[string]any{"sentBy": "send_message"},
	}); err != nil {
		r.logger.Warn("failed recording sent message", "recipient", recipientID, "error", err)
	}

	return "Mensagem enviada.", nil
}

func (r *Registry) handleSearchConversation(ctx context.Context, tc Context, args map[string]any) (string, error) {
	limit := 10
	if v, ok := floatArg(args, "limit"); ok && v > 0 {
		limit = int(v)
	}
	entries, err := r.repo.ListRecentMemory(ctx, stringArg(args, "sessionId"), limit)
	if err != nil {
		return "", fmt.Errorf("falha na consulta da conversa: %w", err)
	}
	if len(entries) == 0 {
		return "Nenhuma mensagem encontrada.", nil
	}

	var b strings.Builder
	for _, e := range entries {
		speaker := "cliente"
		if e.Role == repo.RoleAssistant {
			speaker = "julia"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", e.CreatedAt.Format("02/01 15:04"), speaker, e.Content))
	}
	return strings.TrimSpace(b.String()), nil
}
