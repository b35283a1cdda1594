package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"juliabot/internal/llm"
	"juliabot/internal/metrics"
	"juliabot/internal/repo"
	"juliabot/internal/tools"
)

// Node identifies a position in the agent state machine.
type Node string

const (
	NodeDetectTransfer Node = "detect_transfer"
	NodeRequestHuman   Node = "request_human"
	NodeAssistant      Node = "assistant"
	NodeTools          Node = "tools"
	NodeEnd            Node = "end"
)

// DefaultMaxToolRounds bounds the assistant-tools cycle so a turn always
// terminates even when the model keeps requesting tools.
const DefaultMaxToolRounds = 8

const (
	handoffAck      = "Claro! Vou chamar alguém da equipe para falar com você. Só um momento."
	overflowReply   = "Desculpe, preciso de mais informações para resolver isso. Pode me dar mais detalhes?"
	emptyModelReply = "Desculpe, não consegui entender. Pode repetir?"
)

// Result is the outcome of one agent turn.
type Result struct {
	Reply         string
	NeedsHuman    bool
	HandoffReason string
	TerminalNode  Node
}

// loopState is the checkpointed scratchpad of one in-flight turn. It is
// separate from the business transcript: Messages carries the tool-call
// history the model sees, not what gets persisted as Memory.
type loopState struct {
	Node          Node          `json:"node"`
	Messages      []llm.Message `json:"messages"`
	Rounds        int           `json:"rounds"`
	Reply         string        `json:"reply,omitempty"`
	HandoffReason string        `json:"handoffReason,omitempty"`
	NeedsHuman    bool          `json:"needsHuman,omitempty"`
}

// Loop drives the model through detect-transfer, assistant and tool nodes
// until a final textual answer, checkpointing after every transition.
type Loop struct {
	repo      repo.Repository
	llm       llm.Invoker
	registry  *tools.Registry
	detector  *HandoffDetector
	logger    *slog.Logger
	metrics   *metrics.Metrics
	maxRounds int
}

// NewLoop creates an agent loop.
func NewLoop(repository repo.Repository, invoker llm.Invoker, registry *tools.Registry, detector *HandoffDetector, logger *slog.Logger, metricRegistry *metrics.Metrics, maxRounds int) *Loop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	return &Loop{
		repo:      repository,
		llm:       invoker,
		registry:  registry,
		detector:  detector,
		logger:    logger.With("component", "loop"),
		metrics:   metricRegistry,
		maxRounds: maxRounds,
	}
}

// Run executes one turn for the conversation. history is the persisted
// transcript up to (and excluding) userText. A crashed turn resumes from the
// last checkpointed node instead of restarting.
func (l *Loop) Run(ctx context.Context, conv *Conversation, history []repo.MemoryEntry, userText string) (*Result, error) {
	sessionID := conv.SessionID()

	state, err := l.restore(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = l.initialState(conv, history, userText)
	}

	for {
		switch state.Node {
		case NodeDetectTransfer:
			l.runDetectTransfer(ctx, state, history, userText)
		case NodeRequestHuman:
			state.Reply = handoffAck
			state.NeedsHuman = true
			state.Node = NodeEnd
		case NodeAssistant:
			if err := l.runAssistant(ctx, conv, state); err != nil {
				return nil, err
			}
		case NodeTools:
			l.runTools(ctx, conv, state)
		case NodeEnd:
			if l.metrics != nil {
				terminal := "end"
				if state.NeedsHuman {
					terminal = "request_human"
				}
				l.metrics.AgentTurns.WithLabelValues(terminal).Inc()
			}
			if err := l.repo.ClearCheckpoint(ctx, sessionID); err != nil {
				l.logger.Warn("failed clearing checkpoint", "session", sessionID, "error", err)
			}
			return &Result{
				Reply:         state.Reply,
				NeedsHuman:    state.NeedsHuman,
				HandoffReason: state.HandoffReason,
				TerminalNode:  state.Node,
			}, nil
		default:
			return nil, fmt.Errorf("unknown loop node %q", state.Node)
		}

		if err := l.checkpoint(ctx, sessionID, state); err != nil {
			l.logger.Warn("failed saving checkpoint", "session", sessionID, "error", err)
		}
	}
}

func (l *Loop) initialState(conv *Conversation, history []repo.MemoryEntry, userText string) *loopState {
	// Index 0 is a placeholder: the assistant node rebuilds the system
	// prompt from live state on every entry.
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem})
	for _, entry := range history {
		role := llm.RoleUser
		if entry.Role == repo.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: entry.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})

	node := NodeAssistant
	if conv.Kind == PersonaClient {
		node = NodeDetectTransfer
	}
	return &loopState{Node: node, Messages: messages}
}

func (l *Loop) runDetectTransfer(ctx context.Context, state *loopState, history []repo.MemoryEntry, userText string) {
	turns := append(append([]repo.MemoryEntry{}, history...), repo.MemoryEntry{
		Role:    repo.RoleUserMsg,
		Content: userText,
	})
	decision := l.detector.Detect(ctx, turns)
	if decision.NeedsHumanSupport {
		state.HandoffReason = decision.Reason
		state.Node = NodeRequestHuman
		return
	}
	state.Node = NodeAssistant
}

func (l *Loop) runAssistant(ctx context.Context, conv *Conversation, state *loopState) error {
	// Pending negotiations are queried fresh on every assistant entry,
	// never cached across transitions.
	negotiations, err := l.pendingNegotiations(ctx, conv)
	if err != nil {
		l.logger.Warn("failed loading negotiations for prompt", "error", err)
	}
	state.Messages[0] = llm.Message{
		Role: llm.RoleSystem,
		Content: BuildSystemPrompt(PromptInput{
			Conversation: conv,
			Negotiations: negotiations,
			Now:          time.Now(),
		}),
	}

	resp, err := l.llm.Invoke(ctx, state.Messages, l.registry.Schemas(conv.Kind.String()))
	if err != nil {
		return fmt.Errorf("assistant invocation: %w", err)
	}

	state.Messages = append(state.Messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   resp.Text,
		ToolCalls: resp.ToolCalls,
	})

	if resp.HasToolCalls() {
		if state.Rounds >= l.maxRounds {
			l.logger.Warn("tool round limit reached, forcing terminal reply", "session", conv.SessionID(), "rounds", state.Rounds)
			state.Reply = overflowReply
			state.Node = NodeEnd
			return nil
		}
		state.Node = NodeTools
		return nil
	}

	state.Reply = resp.Text
	if state.Reply == "" {
		state.Reply = emptyModelReply
	}
	state.Node = NodeEnd
	return nil
}

func (l *Loop) runTools(ctx context.Context, conv *Conversation, state *loopState) {
	last := state.Messages[len(state.Messages)-1]
	tc := conv.ToolContext()

	for _, call := range last.ToolCalls {
		result, err := l.registry.Execute(ctx, tc, call.Function.Name, call.Function.Arguments)
		if err != nil {
			// Tool failures never abort the turn: the model sees the
			// error text and can self-correct.
			result = "Erro: " + err.Error()
		}
		state.Messages = append(state.Messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}

	state.Rounds++
	state.Node = NodeAssistant
}

func (l *Loop) pendingNegotiations(ctx context.Context, conv *Conversation) ([]repo.Negotiation, error) {
	filter := repo.NegotiationFilter{
		CompanyID: conv.Company.ID,
		Status:    repo.NegotiationActive,
	}
	switch conv.Kind {
	case PersonaClient:
		filter.ContactID = conv.Contact.ID
	case PersonaOwner:
		filter.UserID = conv.Member.ID
	default:
		return nil, nil
	}
	return l.repo.SearchNegotiations(ctx, filter)
}

func (l *Loop) restore(ctx context.Context, sessionID string) (*loopState, error) {
	cp, err := l.repo.LoadCheckpoint(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("restore loop state: %w", err)
	}
	var state loopState
	if err := json.Unmarshal(cp.State, &state); err != nil {
		l.logger.Warn("discarding unreadable checkpoint", "session", sessionID, "error", err)
		return nil, nil
	}
	if state.Node == "" || state.Node == NodeEnd || len(state.Messages) == 0 {
		return nil, nil
	}
	l.logger.Info("resuming checkpointed turn", "session", sessionID, "node", state.Node)
	return &state, nil
}

func (l *Loop) checkpoint(ctx context.Context, sessionID string, state *loopState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal loop state: %w", err)
	}
	return l.repo.SaveCheckpoint(ctx, repo.AgentCheckpoint{
		SessionID: sessionID,
		Node:      string(state.Node),
		State:     payload,
	})
}
