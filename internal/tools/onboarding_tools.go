package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"juliabot/internal/llm"
	"juliabot/internal/repo"
)

const onboardingSummaryPrompt = `Você recebe a transcrição da conversa de cadastro de uma empresa.
Escreva uma descrição estruturada do negócio em português, cobrindo: o que a empresa faz,
serviços oferecidos, horários de atendimento, políticas de agendamento e qualquer regra
que a secretária virtual deva seguir ao atender clientes. Responda apenas com a descrição.`

func (r *Registry) registerOnboardingTools() {
	r.Register(&Tool{
		Name:        "finish_onboarding",
		Description: "Conclui o cadastro da empresa: gera a descrição do negócio a partir da conversa, ativa o atendimento a clientes e encerra a etapa de configuração. Use apenas quando todas as informações necessárias foram coletadas.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		Personas: []string{PersonaOnboarding},
		Handler:  r.handleFinishOnboarding,
	})
}

func (r *Registry) handleFinishOnboarding(ctx context.Context, tc Context, args map[string]any) (string, error) {
	if tc.UserID == "" {
		return "", errors.New("contexto sem userId para finish_onboarding")
	}

	entries, err := r.repo.ListRecentMemory(ctx, tc.SessionID, 200)
	if err != nil {
		return "", fmt.Errorf("não foi possível carregar a conversa de cadastro: %w", err)
	}
	if len(entries) == 0 {
		return "", errors.New("a conversa de cadastro está vazia")
	}

	var transcript strings.Builder
	for _, e := range entries {
		speaker := "empresa"
		if e.Role == repo.RoleAssistant {
			speaker = "julia"
		}
		transcript.WriteString(speaker + ": " + e.Content + "\n")
	}

	resp, err := r.llm.Invoke(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: onboardingSummaryPrompt},
		{Role: llm.RoleUser, Content: transcript.String()},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("não foi possível gerar a descrição da empresa: %w", err)
	}
	description := strings.TrimSpace(resp.Text)
	if description == "" {
		return "", errors.New("a descrição gerada veio vazia")
	}

	if err := r.repo.FinishCompanyOnboarding(ctx, tc.CompanyID, description); err != nil {
		return "", fmt.Errorf("não foi possível concluir o cadastro: %w", err)
	}

	return "Cadastro concluído. O atendimento a clientes está ativado.", nil
}
