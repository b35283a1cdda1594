package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"juliabot/internal/metrics"

	"github.com/kaptinlin/jsonrepair"
)

// Invoker is the inference capability the agent depends on.
type Invoker interface {
	Invoke(ctx context.Context, messages []Message, tools []ToolSchema) (*ChatResponse, error)
	InvokeStructured(ctx context.Context, messages []Message, out any) error
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client provides typed access to an OpenAI-compatible chat completions API.
type Client struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds inference client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New creates a new inference client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "llm"),
		baseURL: base,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Tools          []ToolSchema   `json:"tools,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponseBody struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke sends the conversation to the model, optionally binding tool schemas,
// and returns the text and/or tool calls it produced.
func (c *Client) Invoke(ctx context.Context, messages []Message, tools []ToolSchema) (*ChatResponse, error) {
	return c.chat(ctx, "chat", chatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
	})
}

// InvokeStructured requests a JSON-object response and decodes it into out.
// Sloppy model JSON is repaired before decoding.
func (c *Client) InvokeStructured(ctx context.Context, messages []Message, out any) error {
	resp, err := c.chat(ctx, "structured", chatRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return err
	}
	raw := strings.TrimSpace(resp.Text)
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("repair structured response: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("decode structured response: %w", err)
	}
	return nil
}

func (c *Client) chat(ctx context.Context, kind string, reqBody chatRequest) (*ChatResponse, error) {
	started := time.Now()
	status := "success"
	defer func() {
		if c.metrics != nil {
			c.metrics.LLMRequests.WithLabelValues(kind, status).Inc()
			c.metrics.LLMLatency.WithLabelValues(kind, status).Observe(time.Since(started).Seconds())
		}
	}()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		status = "error"
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		status = "error"
		return nil, fmt.Errorf("inference service: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		status = "error"
		return nil, fmt.Errorf("inference service status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		status = "error"
		return nil, fmt.Errorf("inference service returned no choices")
	}

	choice := parsed.Choices[0]
	return &ChatResponse{
		Text:         choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponseBody struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: "text-embedding-3-small", Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	var parsed embedResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding service: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding service returned no data")
	}
	return parsed.Data[0].Embedding, nil
}
