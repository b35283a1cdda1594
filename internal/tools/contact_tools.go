package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"juliabot/internal/repo"
)

func (r *Registry) registerContactTools() {
	r.Register(&Tool{
		Name:        "create_contact",
		Description: "Cadastra um novo cliente da empresa. Se já existir um contato com o mesmo telefone, retorna o contato existente.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Nome do cliente",
				},
				"phone": map[string]any{
					"type":        "string",
					"description": "Telefone com DDD, somente dígitos",
				},
				"email": map[string]any{
					"type":        "string",
					"description": "E-mail do cliente",
				},
				"instagram": map[string]any{
					"type":        "string",
					"description": "Usuário do Instagram",
				},
			},
			"required": []string{"name"},
		},
		Personas: []string{PersonaOwner},
		Handler:  r.handleCreateContact,
	})

	r.Register(&Tool{
		Name:        "search_contact",
		Description: "Busca clientes da empresa por nome, telefone, e-mail ou Instagram. Retorna no máximo 10 resultados.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Trecho do nome, telefone, e-mail ou Instagram",
				},
			},
			"required": []string{"query"},
		},
		Personas: []string{PersonaOwner},
		Handler:  r.handleSearchContact,
	})

	r.Register(&Tool{
		Name:        "search_user",
		Description: "Busca membros da equipe da empresa por nome, telefone ou e-mail. Retorna no máximo 10 resultados.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Trecho do nome, telefone ou e-mail",
				},
			},
			"required": []string{"query"},
		},
		Personas: []string{PersonaOwner},
		Handler:  r.handleSearchUser,
	})
}

func (r *Registry) handleCreateContact(ctx context.Context, tc Context, args map[string]any) (string, error) {
	contact := repo.Contact{
		CompanyID: tc.CompanyID,
		Name:      stringArg(args, "name"),
		Phone:     optionalStringArg(args, "phone"),
		Email:     optionalStringArg(args, "email"),
		Instagram: optionalStringArg(args, "instagram"),
	}
	created, err := r.repo.CreateContact(ctx, contact)
	if err != nil {
		return "", fmt.Errorf("não foi possível cadastrar o contato: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":    created.ID,
		"name":  created.Name,
		"phone": created.Phone,
	})
	if err != nil {
		return "", fmt.Errorf("marshal contact: %w", err)
	}
	return string(payload), nil
}

func (r *Registry) handleSearchContact(ctx context.Context, tc Context, args map[string]any) (string, error) {
	contacts, err := r.repo.SearchContacts(ctx, tc.CompanyID, stringArg(args, "query"), 10)
	if err != nil {
		return "", fmt.Errorf("falha na busca de contatos: %w", err)
	}
	if len(contacts) == 0 {
		return "Nenhum contato encontrado.", nil
	}

	var b strings.Builder
	for _, c := range contacts {
		b.WriteString(fmt.Sprintf("- %s (id %s)", c.Name, c.ID))
		if c.Phone != nil {
			b.WriteString(", tel " + *c.Phone)
		}
		if c.Email != nil {
			b.WriteString(", email " + *c.Email)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func (r *Registry) handleSearchUser(ctx context.Context, tc Context, args map[string]any) (string, error) {
	members, err := r.repo.SearchUsers(ctx, tc.CompanyID, stringArg(args, "query"), 10)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "Nenhum membro encontrado.", nil
		}
		return "", fmt.Errorf("falha na busca de membros: %w", err)
	}
	if len(members) == 0 {
		return "Nenhum membro encontrado.", nil
	}

	var b strings.Builder
	for _, m := range members {
		b.WriteString(fmt.Sprintf("- %s (id %s, %s), tel %s\n", m.Name, m.ID, m.Role, m.Phone))
	}
	return strings.TrimSpace(b.String()), nil
}
