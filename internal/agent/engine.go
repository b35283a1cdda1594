package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"juliabot/internal/metrics"
	"juliabot/internal/repo"
	"juliabot/internal/transcribe"
	"juliabot/internal/wa"
)

// ActionRunner is the post-hoc action detection pass the engine fires after a
// reply is delivered. Implemented by the actions package.
type ActionRunner interface {
	Run(ctx context.Context, conv ActionInput)
}

// SessionLocker serializes turns of the same session. Satisfied by
// cache.Redis.
type SessionLocker interface {
	WaitLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// ActionInput carries the routing context of the finished turn.
type ActionInput struct {
	CompanyID string
	Instance  string
	SessionID string
	Persona   string
	UserID    string
	ContactID string
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	SessionLockTTL time.Duration
	HandoffPause   time.Duration
	HistoryWindow  int
}

// Engine orchestrates one inbound message end to end: transcription, routing,
// the agent loop, delivery and the secondary action pass.
type Engine struct {
	repo        repo.Repository
	router      *Router
	loop        *Loop
	gateway     wa.Gateway
	locks       SessionLocker
	transcriber transcribe.Transcriber
	composer    NotificationComposer
	actions     ActionRunner
	logger      *slog.Logger
	metrics     *metrics.Metrics
	cfg         EngineConfig
}

var _ wa.MessageProcessor = (*Engine)(nil)

// NewEngine wires the engine.
func NewEngine(
	repository repo.Repository,
	router *Router,
	loop *Loop,
	gateway wa.Gateway,
	locks SessionLocker,
	transcriber transcribe.Transcriber,
	composer NotificationComposer,
	actionRunner ActionRunner,
	logger *slog.Logger,
	metricRegistry *metrics.Metrics,
	cfg EngineConfig,
) *Engine {
	if cfg.SessionLockTTL <= 0 {
		cfg.SessionLockTTL = 2 * time.Minute
	}
	if cfg.HandoffPause <= 0 {
		cfg.HandoffPause = 24 * time.Hour
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	return &Engine{
		repo:        repository,
		router:      router,
		loop:        loop,
		gateway:     gateway,
		locks:       locks,
		transcriber: transcriber,
		composer:    composer,
		actions:     actionRunner,
		logger:      logger.With("component", "engine"),
		metrics:     metricRegistry,
		cfg:         cfg,
	}
}

// ProcessInbound handles one inbound message. Drops are silent; only real
// failures are logged as errors.
func (e *Engine) ProcessInbound(ctx context.Context, msg wa.Inbound) {
	if msg.FromMe {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" && len(msg.Audio) > 0 {
		text = e.transcribeAudio(ctx, msg)
	}
	if text == "" {
		return
	}

	conv, dropReason, err := e.router.Resolve(ctx, msg.Instance, msg.SenderPhone)
	if err != nil {
		e.fail("router", "routing failed", err, "instance", msg.Instance)
		return
	}
	if conv == nil {
		e.logger.Debug("message dropped", "reason", dropReason, "instance", msg.Instance)
		return
	}

	if e.metrics != nil {
		e.metrics.InboundMessages.WithLabelValues(conv.Kind.String()).Inc()
	}

	sessionID := conv.SessionID()

	// Concurrent messages for the same session serialize here so two turns
	// never interleave their tool-call histories.
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.SessionLockTTL)
	token, err := e.locks.WaitLock(lockCtx, "session_lock:"+sessionID, e.cfg.SessionLockTTL)
	cancel()
	if err != nil {
		e.fail("engine", "failed acquiring session lock", err, "session", sessionID)
		return
	}
	defer func() {
		if err := e.locks.ReleaseLock(context.Background(), "session_lock:"+sessionID, token); err != nil {
			e.logger.Warn("failed releasing session lock", "session", sessionID, "error", err)
		}
	}()

	history, err := e.repo.ListRecentMemory(ctx, sessionID, e.cfg.HistoryWindow)
	if err != nil {
		e.fail("engine", "failed loading memory", err, "session", sessionID)
		return
	}

	if err := e.appendMemory(ctx, sessionID, repo.RoleUserMsg, text); err != nil {
		e.fail("engine", "failed appending inbound memory", err, "session", sessionID)
		return
	}

	_ = e.gateway.SendPresence(ctx, conv.Instance, conv.Phone(), "composing")

	result, err := e.loop.Run(ctx, conv, history, text)
	if err != nil {
		e.fail("loop", "agent turn failed", err, "session", sessionID)
		return
	}

	if result.NeedsHuman {
		e.applyHandoff(ctx, conv, result.HandoffReason, text)
	}

	if result.Reply != "" {
		if err := e.gateway.SendText(ctx, conv.Instance, conv.Phone(), result.Reply); err != nil {
			e.fail("gateway", "failed delivering reply", err, "session", sessionID)
			return
		}
		if err := e.appendMemory(ctx, sessionID, repo.RoleAssistant, result.Reply); err != nil {
			e.logger.Warn("failed appending reply memory", "session", sessionID, "error", err)
		}
	}

	if e.actions != nil && !result.NeedsHuman {
		input := ActionInput{
			CompanyID: conv.Company.ID,
			Instance:  conv.Instance,
			SessionID: sessionID,
			Persona:   conv.Kind.String(),
		}
		if conv.Kind == PersonaClient {
			input.ContactID = conv.Contact.ID
		} else {
			input.UserID = conv.Member.ID
		}
		// Best effort, detached from this turn: a detection failure must
		// never affect the reply that was already sent.
		go e.actions.Run(context.Background(), input)
	}
}

// applyHandoff pauses automation for the contact and notifies the responsible
// user exactly once.
func (e *Engine) applyHandoff(ctx context.Context, conv *Conversation, reason, lastMessage string) {
	if conv.Kind != PersonaClient {
		return
	}
	if e.metrics != nil {
		e.metrics.HumanHandoffs.Inc()
	}

	until := time.Now().Add(e.cfg.HandoffPause)
	if err := e.repo.SetContactIgnoreUntil(ctx, conv.Company.ID, conv.Contact.ID, until); err != nil {
		e.fail("engine", "failed pausing contact", err, "contact", conv.Contact.ID)
	}

	member, err := repo.ResolveResponsibleUser(ctx, e.repo, conv.Company.ID, conv.Contact)
	if err != nil {
		e.fail("engine", "failed resolving responsible user for handoff", err, "contact", conv.Contact.ID)
		return
	}

	notice, err := e.composer.ComposeHandoffNotice(ctx, conv.Contact, reason, lastMessage)
	if err != nil {
		e.fail("engine", "failed composing handoff notice", err, "contact", conv.Contact.ID)
		return
	}

	if err := e.gateway.SendText(ctx, conv.Instance, member.Phone, notice); err != nil {
		e.fail("gateway", "failed notifying responsible user", err, "user", member.ID)
		return
	}
	if err := e.appendMemory(ctx, member.ID, repo.RoleAssistant, notice); err != nil {
		e.logger.Warn("failed appending notice memory", "user", member.ID, "error", err)
	}
}

func (e *Engine) transcribeAudio(ctx context.Context, msg wa.Inbound) string {
	if e.transcriber == nil {
		e.logger.Debug("audio message ignored, transcription disabled", "instance", msg.Instance)
		return ""
	}
	text, err := e.transcriber.Transcribe(ctx, msg.Audio, msg.AudioMime)
	if err != nil {
		e.fail("transcribe", "transcription failed", err, "instance", msg.Instance)
		return ""
	}
	return text
}

func (e *Engine) appendMemory(ctx context.Context, sessionID, role, content string) error {
	return e.repo.AppendMemory(ctx, repo.MemoryEntry{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
}

func (e *Engine) fail(component, msg string, err error, args ...any) {
	if e.metrics != nil {
		e.metrics.Errors.WithLabelValues(component).Inc()
	}
	e.logger.Error(msg, append(args, "error", err)...)
}
