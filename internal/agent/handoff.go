package agent

import (
	"context"
	"log/slog"
	"strings"

	"juliabot/internal/llm"
	"juliabot/internal/repo"
)

const handoffClassifierPrompt = `Você classifica a última mensagem de um cliente em uma conversa de
atendimento. Decida se o cliente precisa ser transferido para um atendente humano.

Transfira APENAS quando:
- o cliente pede explicitamente para falar com uma pessoa, atendente ou humano; ou
- o cliente está hostil, agressivo ou usa linguagem abusiva.

NUNCA transfira por dúvida, confusão ou pergunta comum: na dúvida, o atendimento
automático continua.

Responda somente com JSON: {"needsHumanSupport": bool, "reason": "motivo curto"}`

// HandoffDecision is the detector output.
type HandoffDecision struct {
	NeedsHumanSupport bool   `json:"needsHumanSupport"`
	Reason            string `json:"reason"`
}

// HandoffDetector is the fast pre-check that runs before the main agent on
// client-facing turns.
type HandoffDetector struct {
	llm    llm.Invoker
	logger *slog.Logger
}

// NewHandoffDetector creates the detector.
func NewHandoffDetector(invoker llm.Invoker, logger *slog.Logger) *HandoffDetector {
	return &HandoffDetector{
		llm:    invoker,
		logger: logger.With("component", "handoff"),
	}
}

// Detect classifies the last turns of the transcript. Inference failures bias
// toward continuing automated handling.
func (d *HandoffDetector) Detect(ctx context.Context, turns []repo.MemoryEntry) HandoffDecision {
	if len(turns) == 0 {
		return HandoffDecision{}
	}
	if len(turns) > 3 {
		turns = turns[len(turns)-3:]
	}

	var b strings.Builder
	for _, t := range turns {
		speaker := "cliente"
		if t.Role == repo.RoleAssistant {
			speaker = "julia"
		}
		b.WriteString(speaker + ": " + t.Content + "\n")
	}

	var decision HandoffDecision
	err := d.llm.InvokeStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: handoffClassifierPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}, &decision)
	if err != nil {
		d.logger.Warn("handoff classification failed, continuing automated", "error", err)
		return HandoffDecision{}
	}
	return decision
}
