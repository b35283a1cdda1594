package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"juliabot/internal/llm"
	"juliabot/internal/repo"
)

// NotificationComposer phrases the notification sent to the responsible user
// when a conversation is handed off to a human.
type NotificationComposer interface {
	ComposeHandoffNotice(ctx context.Context, contact *repo.Contact, reason, lastMessage string) (string, error)
}

// LLMComposer asks the model to phrase the notification naturally, falling
// back to the deterministic template when inference fails.
type LLMComposer struct {
	llm    llm.Invoker
	logger *slog.Logger
}

// NewLLMComposer creates the composer.
func NewLLMComposer(invoker llm.Invoker, logger *slog.Logger) *LLMComposer {
	return &LLMComposer{
		llm:    invoker,
		logger: logger.With("component", "notify"),
	}
}

const composeNoticePrompt = `Escreva uma mensagem curta de WhatsApp, em português, avisando um
membro da equipe que um cliente precisa de atendimento humano. Inclua o nome do cliente,
o motivo e a última mensagem dele. Responda apenas com a mensagem.`

// ComposeHandoffNotice phrases the notice for the responsible user.
func (c *LLMComposer) ComposeHandoffNotice(ctx context.Context, contact *repo.Contact, reason, lastMessage string) (string, error) {
	input := fmt.Sprintf("Cliente: %s\nMotivo: %s\nÚltima mensagem: %s", contact.Name, reason, lastMessage)
	resp, err := c.llm.Invoke(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: composeNoticePrompt},
		{Role: llm.RoleUser, Content: input},
	}, nil)
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		if err != nil {
			c.logger.Warn("notice composition failed, using template", "error", err)
		}
		return TemplateComposer{}.ComposeHandoffNotice(ctx, contact, reason, lastMessage)
	}
	return strings.TrimSpace(resp.Text), nil
}

// TemplateComposer produces a deterministic notice. Used as the LLM fallback
// and directly in tests.
type TemplateComposer struct{}

// ComposeHandoffNotice formats the fixed template.
func (TemplateComposer) ComposeHandoffNotice(_ context.Context, contact *repo.Contact, reason, lastMessage string) (string, error) {
	notice := fmt.Sprintf("O cliente %s precisa de atendimento humano.", contact.Name)
	if reason != "" {
		notice += " Motivo: " + reason + "."
	}
	if lastMessage != "" {
		notice += " Última mensagem: \"" + lastMessage + "\""
	}
	return notice, nil
}
