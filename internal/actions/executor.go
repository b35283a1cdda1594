package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"juliabot/internal/metrics"
	"juliabot/internal/repo"
	"juliabot/internal/wa"
)

// Context scopes an action execution to a tenant and, optionally, to the
// user or contact whose conversation produced it.
type Context struct {
	CompanyID    string `json:"companyId"`
	InstanceName string `json:"instanceName"`
	UserID       string `json:"userId,omitempty"`
	ContactID    string `json:"contactId,omitempty"`
}

// ExecResult is the outcome of one executed action. Data carries structured
// results such as created record ids.
type ExecResult struct {
	Type    string         `json:"type"`
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Executor applies detected actions. Each action type maps to one handler;
// a failing action never blocks the others.
type Executor struct {
	repo    repo.Repository
	gateway wa.Gateway
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExecutor builds an executor.
func NewExecutor(repository repo.Repository, gateway wa.Gateway, logger *slog.Logger, metricRegistry *metrics.Metrics) *Executor {
	return &Executor{
		repo:    repository,
		gateway: gateway,
		logger:  logger.With("component", "action_executor"),
		metrics: metricRegistry,
	}
}

// Execute runs one action. Unknown types fail cleanly instead of panicking so
// the HTTP surface can report them.
func (e *Executor) Execute(ctx context.Context, action Action, ec Context) ExecResult {
	if ec.CompanyID == "" {
		return e.failure(action.Type, fmt.Errorf("companyId obrigatório"))
	}

	var err error
	var message string
	var data map[string]any
	switch action.Type {
	case TypeSendMessage:
		message, err = e.sendMessage(ctx, action.Payload, ec)
	case TypeNotifyUser:
		message, err = e.notifyUser(ctx, action.Payload, ec)
	case TypeUpdateCompany:
		message, err = e.updateCompany(ctx, action.Payload, ec)
	case TypeFinishOnboarding:
		message, err = e.finishOnboarding(ctx, ec)
	case TypeCreateServiceRequest:
		message, data, err = e.createServiceRequest(ctx, action.Payload, ec)
	case TypeUpdateContact:
		message, err = e.updateContact(ctx, action.Payload, ec)
	default:
		err = fmt.Errorf("tipo de ação desconhecido: %s", action.Type)
	}

	if err != nil {
		return e.failure(action.Type, err)
	}
	if e.metrics != nil {
		e.metrics.ActionsDetected.WithLabelValues(action.Type, "ok").Inc()
	}
	return ExecResult{Type: action.Type, Success: true, Message: message, Data: data}
}

// ExecuteAll runs every action in order, collecting per-action results.
func (e *Executor) ExecuteAll(ctx context.Context, actions []Action, ec Context) []ExecResult {
	results := make([]ExecResult, 0, len(actions))
	for _, action := range actions {
		results = append(results, e.Execute(ctx, action, ec))
	}
	return results
}

func (e *Executor) failure(actionType string, err error) ExecResult {
	if e.metrics != nil {
		e.metrics.ActionsDetected.WithLabelValues(actionType, "error").Inc()
	}
	e.logger.Warn("action failed", "type", actionType, "error", err)
	return ExecResult{Type: actionType, Error: err.Error()}
}

func (e *Executor) sendMessage(ctx context.Context, payload json.RawMessage, ec Context) (string, error) {
	var p struct {
		ContactID string `json:"contactId"`
		Message   string `json:"message"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}
	if p.ContactID == "" || p.Message == "" {
		return "", fmt.Errorf("contactId e message são obrigatórios")
	}
	contact, err := e.repo.GetContact(ctx, ec.CompanyID, p.ContactID)
	if err != nil {
		return "", fmt.Errorf("buscar contato: %w", err)
	}
	if contact.Phone == nil || *contact.Phone == "" {
		return "", fmt.Errorf("contato sem telefone cadastrado")
	}
	if err := e.gateway.SendText(ctx, ec.InstanceName, *contact.Phone, p.Message); err != nil {
		return "", fmt.Errorf("enviar mensagem: %w", err)
	}
	if err := e.repo.AppendMemory(ctx, repo.MemoryEntry{
		SessionID: contact.ID,
		Role:      repo.RoleAssistant,
		Content:   p.Message,
		Metadata:  map[string]any{"source": "action"},
	}); err != nil {
		e.logger.Warn("failed recording sent message", "contact", contact.ID, "error", err)
	}
	return fmt.Sprintf("Mensagem enviada para %s.", contact.Name), nil
}

func (e *Executor) notifyUser(ctx context.Context, payload json.RawMessage, ec Context) (string, error) {
	var p struct {
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}
	if p.Message == "" {
		return "", fmt.Errorf("message é obrigatório")
	}
	userID := p.UserID
	if userID == "" {
		userID = ec.UserID
	}
	if userID == "" {
		return "", fmt.Errorf("userId é obrigatório")
	}
	member, err := e.repo.GetCompanyMember(ctx, ec.CompanyID, userID)
	if err != nil {
		return "", fmt.Errorf("buscar membro da empresa: %w", err)
	}
	if err := e.gateway.SendText(ctx, ec.InstanceName, member.Phone, p.Message); err != nil {
		return "", fmt.Errorf("notificar usuário: %w", err)
	}
	return fmt.Sprintf("Notificação enviada para %s.", member.Name), nil
}

func (e *Executor) updateCompany(ctx context.Context, payload json.RawMessage, ec Context) (string, error) {
	var p struct {
		Description string `json:"description"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.Description) == "" {
		return "", fmt.Errorf("description é obrigatório")
	}
	if err := e.repo.UpdateCompanyDescription(ctx, ec.CompanyID, p.Description); err != nil {
		return "", fmt.Errorf("atualizar empresa: %w", err)
	}
	return "Descrição da empresa atualizada.", nil
}

func (e *Executor) finishOnboarding(ctx context.Context, ec Context) (string, error) {
	company, err := e.repo.GetCompany(ctx, ec.CompanyID)
	if err != nil {
		return "", fmt.Errorf("buscar empresa: %w", err)
	}
	if company.Step == repo.CompanyStepRunning {
		return "Cadastro já estava concluído.", nil
	}
	if err := e.repo.FinishCompanyOnboarding(ctx, ec.CompanyID, company.Description); err != nil {
		return "", fmt.Errorf("concluir cadastro: %w", err)
	}
	return "Cadastro concluído.", nil
}

func (e *Executor) createServiceRequest(ctx context.Context, payload json.RawMessage, ec Context) (string, map[string]any, error) {
	var p struct {
		ContactID    string `json:"contactId"`
		Description  string `json:"description"`
		ScheduledFor string `json:"scheduledFor"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return "", nil, err
	}
	contactID := p.ContactID
	if contactID == "" {
		contactID = ec.ContactID
	}
	if contactID == "" || p.Description == "" {
		return "", nil, fmt.Errorf("contactId e description são obrigatórios")
	}
	request := repo.ServiceRequest{
		CompanyID:   ec.CompanyID,
		ContactID:   contactID,
		RequestType: "general",
		Status:      repo.RequestStatusPending,
		Notes:       &p.Description,
	}
	if p.ScheduledFor != "" {
		scheduled, err := time.Parse(time.RFC3339, p.ScheduledFor)
		if err != nil {
			return "", nil, fmt.Errorf("scheduledFor inválido: %w", err)
		}
		request.ScheduledFor = &scheduled
	}
	created, err := e.repo.CreateServiceRequest(ctx, request)
	if err != nil {
		return "", nil, fmt.Errorf("criar solicitação: %w", err)
	}
	data := map[string]any{"requestId": created.ID, "status": created.Status}
	return fmt.Sprintf("Solicitação %s registrada.", created.ID), data, nil
}

func (e *Executor) updateContact(ctx context.Context, payload json.RawMessage, ec Context) (string, error) {
	var p struct {
		ContactID string  `json:"contactId"`
		Name      *string `json:"name"`
		Email     *string `json:"email"`
		Instagram *string `json:"instagram"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}
	contactID := p.ContactID
	if contactID == "" {
		contactID = ec.ContactID
	}
	if contactID == "" {
		return "", fmt.Errorf("contactId é obrigatório")
	}
	if p.Name == nil && p.Email == nil && p.Instagram == nil {
		return "", fmt.Errorf("nenhum campo para atualizar")
	}
	contact, err := e.repo.UpdateContact(ctx, ec.CompanyID, contactID, repo.ContactUpdate{
		Name:      p.Name,
		Email:     p.Email,
		Instagram: p.Instagram,
	})
	if err != nil {
		return "", fmt.Errorf("atualizar contato: %w", err)
	}
	return fmt.Sprintf("Contato %s atualizado.", contact.Name), nil
}

func decodePayload(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("payload inválido: %w", err)
	}
	return nil
}
