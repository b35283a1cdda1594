// Package actions implements the post-turn action pass: after every agent
// reply the recent conversation is re-read by the model, which proposes
// structured side effects (notifications, profile updates, service requests)
// that are then filtered and executed.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"juliabot/internal/llm"
	"juliabot/internal/repo"
)

// Known action types. Anything else coming back from the model is discarded.
const (
	TypeSendMessage          = "SEND_MESSAGE"
	TypeNotifyUser           = "NOTIFY_USER"
	TypeUpdateCompany        = "UPDATE_COMPANY"
	TypeFinishOnboarding     = "FINISH_ONBOARDING"
	TypeCreateServiceRequest = "CREATE_SERVICE_REQUEST"
	TypeUpdateContact        = "UPDATE_CONTACT"
)

// DefaultConfidenceThreshold is the cutoff below which a proposed action is
// dropped.
const DefaultConfidenceThreshold = 0.5

// DefaultWindow is how many recent turns the detector re-reads.
const DefaultWindow = 5

var knownTypes = map[string]bool{
	TypeSendMessage:          true,
	TypeNotifyUser:           true,
	TypeUpdateCompany:        true,
	TypeFinishOnboarding:     true,
	TypeCreateServiceRequest: true,
	TypeUpdateContact:        true,
}

// Action is one side effect proposed by the model.
type Action struct {
	Type       string          `json:"type"`
	Confidence float64         `json:"confidence"`
	Payload    json.RawMessage `json:"payload"`
}

// Detection is the model's verdict over the recent window.
type Detection struct {
	RequiresAction bool     `json:"requiresAction"`
	Actions        []Action `json:"actions"`
}

const detectorPrompt = `Você analisa o trecho final de uma conversa entre um assistente virtual e um usuário, e decide se alguma ação de sistema deve ser executada.

Tipos de ação disponíveis:
- SEND_MESSAGE: enviar uma mensagem a outro contato. Payload: {"contactId": "...", "message": "..."}
- NOTIFY_USER: avisar um usuário da empresa. Payload: {"userId": "...", "message": "..."}
- UPDATE_COMPANY: atualizar a descrição da empresa. Payload: {"description": "..."}
- FINISH_ONBOARDING: o dono concluiu o cadastro inicial. Payload: {}
- CREATE_SERVICE_REQUEST: registrar uma solicitação de serviço. Payload: {"contactId": "...", "description": "...", "scheduledFor": "..."}
- UPDATE_CONTACT: atualizar dados de um contato. Payload: {"contactId": "...", "name": "...", "email": "...", "instagram": "..."}

Regras:
- Proponha uma ação apenas quando a conversa a justifica claramente.
- Nunca invente identificadores: use apenas os presentes no contexto.
- confidence é um número entre 0 e 1 refletindo sua certeza.
- Se nada precisa ser feito, responda {"requiresAction": false, "actions": []}.

Responda APENAS com JSON no formato:
{"requiresAction": true|false, "actions": [{"type": "...", "confidence": 0.0, "payload": {...}}]}`

// Detector proposes actions from the recent conversation.
type Detector struct {
	llm       llm.Invoker
	logger    *slog.Logger
	window    int
	threshold float64
}

// NewDetector builds a detector. Zero window and threshold take the defaults.
func NewDetector(invoker llm.Invoker, logger *slog.Logger, window int, threshold float64) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Detector{
		llm:       invoker,
		logger:    logger.With("component", "action_detector"),
		window:    window,
		threshold: threshold,
	}
}

// Detect runs the model over the last turns and returns the filtered
// detection. The raw model output is repaired and filtered before anything
// reaches the executor.
func (d *Detector) Detect(ctx context.Context, history []repo.MemoryEntry) (*Detection, error) {
	window := history
	if len(window) > d.window {
		window = window[len(window)-d.window:]
	}
	if len(window) == 0 {
		return &Detection{}, nil
	}

	var transcript strings.Builder
	for _, entry := range window {
		fmt.Fprintf(&transcript, "[%s] %s\n", entry.Role, entry.Content)
	}

	var det Detection
	err := d.llm.InvokeStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: detectorPrompt},
		{Role: llm.RoleUser, Content: transcript.String()},
	}, &det)
	if err != nil {
		return nil, fmt.Errorf("invoke action detector: %w", err)
	}

	filtered := Filter(&det, d.threshold)
	for _, a := range filtered.Actions {
		d.logger.Debug("action detected", "type", a.Type, "confidence", a.Confidence)
	}
	return filtered, nil
}

// Filter drops unknown action types and low-confidence proposals. When
// nothing survives, RequiresAction flips to false regardless of what the
// model claimed.
func Filter(det *Detection, threshold float64) *Detection {
	out := &Detection{}
	for _, a := range det.Actions {
		if !knownTypes[a.Type] {
			continue
		}
		if a.Confidence < threshold {
			continue
		}
		out.Actions = append(out.Actions, a)
	}
	out.RequiresAction = len(out.Actions) > 0
	return out
}
