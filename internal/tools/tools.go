// Package tools defines the side-effecting operations the model may invoke
// mid-turn. Every tool validates its arguments and its routing context before
// touching anything; failures come back as descriptive errors the agent loop
// converts into tool results.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"juliabot/internal/llm"
	"juliabot/internal/metrics"
	"juliabot/internal/repo"
	"juliabot/internal/wa"

	"github.com/kaptinlin/jsonrepair"
)

// Personas a tool can be exposed to.
const (
	PersonaClient     = "client"
	PersonaOwner      = "owner"
	PersonaOnboarding = "onboarding"
)

// Context carries the routing fields every tool execution needs. CompanyID is
// always present; UserID or ContactID depends on the persona.
type Context struct {
	CompanyID string
	Instance  string
	Persona   string
	UserID    string
	ContactID string
	SessionID string
}

// Tool represents a callable tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Personas    []string
	Handler     func(ctx context.Context, tc Context, args map[string]any) (string, error)
}

// Registry holds available tools and their shared dependencies.
type Registry struct {
	tools   map[string]*Tool
	order   []string
	repo    repo.Repository
	gateway wa.Gateway
	llm     llm.Invoker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates a tool registry with every built-in tool registered.
func NewRegistry(repository repo.Repository, gateway wa.Gateway, invoker llm.Invoker, logger *slog.Logger, metricRegistry *metrics.Metrics) *Registry {
	r := &Registry{
		tools:   make(map[string]*Tool),
		repo:    repository,
		gateway: gateway,
		llm:     invoker,
		logger:  logger.With("component", "tools"),
		metrics: metricRegistry,
	}
	r.registerContactTools()
	r.registerServiceRequestTools()
	r.registerNegotiationTools()
	r.registerMessageTools()
	r.registerOnboardingTools()
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Schemas returns the wire schemas of every tool visible to the persona, in
// registration order.
func (r *Registry) Schemas(persona string) []llm.ToolSchema {
	var schemas []llm.ToolSchema
	for _, name := range r.order {
		t := r.tools[name]
		if !t.visibleTo(persona) {
			continue
		}
		schemas = append(schemas, llm.NewToolSchema(t.Name, t.Description, t.Parameters))
	}
	return schemas
}

func (t *Tool) visibleTo(persona string) bool {
	if len(t.Personas) == 0 {
		return true
	}
	for _, p := range t.Personas {
		if p == persona {
			return true
		}
	}
	return false
}

// Execute runs the named tool with raw JSON arguments. Argument or context
// problems surface as errors; the agent loop turns them into tool results so
// the model can self-correct.
func (r *Registry) Execute(ctx context.Context, tc Context, name, rawArgs string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		r.countTool(name, "unknown")
		return "", fmt.Errorf("ferramenta desconhecida: %s", name)
	}
	if !t.visibleTo(tc.Persona) {
		r.countTool(name, "forbidden")
		return "", fmt.Errorf("ferramenta %s não disponível nesta conversa", name)
	}
	if tc.CompanyID == "" {
		r.countTool(name, "error")
		return "", fmt.Errorf("contexto sem companyId para %s", name)
	}

	args, err := parseArgs(rawArgs)
	if err != nil {
		r.countTool(name, "bad_args")
		return "", fmt.Errorf("argumentos inválidos para %s: %v", name, err)
	}
	if err := validateRequired(t.Parameters, args); err != nil {
		r.countTool(name, "bad_args")
		return "", fmt.Errorf("argumentos inválidos para %s: %v", name, err)
	}

	result, err := t.Handler(ctx, tc, args)
	if err != nil {
		r.countTool(name, "error")
		return "", err
	}
	r.countTool(name, "success")
	return result, nil
}

func (r *Registry) countTool(name, status string) {
	if r.metrics != nil {
		r.metrics.ToolExecutions.WithLabelValues(name, status).Inc()
	}
}

func parseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("json inválido")
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("json inválido")
	}
	return args, nil
}

func validateRequired(parameters, args map[string]any) error {
	required, _ := parameters["required"].([]string)
	var missing []string
	for _, field := range required {
		val, ok := args[field]
		if !ok || val == nil || val == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("campos obrigatórios ausentes: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Argument accessors shared by the tool files.

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func optionalStringArg(args map[string]any, key string) *string {
	v := stringArg(args, key)
	if v == "" {
		return nil
	}
	return &v
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
