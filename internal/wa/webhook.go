package wa

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"juliabot/internal/metrics"
)

// webhookEvent mirrors the hosted-gateway webhook payload. Deployments that
// run the WhatsApp session on an external gateway post inbound messages here
// instead of pairing a local device.
type webhookEvent struct {
	Instance      string `json:"instance"`
	SenderAddress string `json:"senderAddress"`
	SenderName    string `json:"senderName"`
	FromMe        bool   `json:"fromMe"`
	Text          string `json:"text"`
	AudioBase64   string `json:"audio"`
	AudioMime     string `json:"audioMime"`
}

// WebhookHandler verifies the gateway token and forwards inbound events to
// the same processor the local WhatsApp client feeds.
type WebhookHandler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	token     string
	processor MessageProcessor
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, token string, processor MessageProcessor) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "wa_webhook"),
		metrics:   metricRegistry,
		token:     token,
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.validateAuth(r) {
		h.countError("wa_webhook_auth")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		h.countError("wa_webhook")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.countError("wa_webhook")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if event.Instance == "" || event.SenderAddress == "" {
		http.Error(w, "instance and senderAddress are required", http.StatusBadRequest)
		return
	}

	inbound := Inbound{
		Instance:    event.Instance,
		SenderPhone: normalizeAddress(event.SenderAddress),
		SenderName:  event.SenderName,
		FromMe:      event.FromMe,
		Text:        event.Text,
		AudioMime:   event.AudioMime,
	}
	if event.AudioBase64 != "" {
		audio, err := base64.StdEncoding.DecodeString(event.AudioBase64)
		if err != nil {
			http.Error(w, "invalid audio encoding", http.StatusBadRequest)
			return
		}
		inbound.Audio = audio
	}

	if h.processor != nil {
		// The request context dies when this handler returns; processing
		// continues on its own context.
		go h.processor.ProcessInbound(context.Background(), inbound)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *WebhookHandler) countError(label string) {
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues(label).Inc()
	}
}

func (h *WebhookHandler) validateAuth(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	header = strings.TrimPrefix(header, "Bearer ")
	if header == "" {
		header = strings.TrimSpace(r.Header.Get("X-Webhook-Token"))
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(h.token)) == 1
}

// normalizeAddress strips a WhatsApp JID suffix so the router sees a raw
// phone number regardless of transport.
func normalizeAddress(address string) string {
	if at := strings.IndexByte(address, '@'); at >= 0 {
		address = address[:at]
	}
	return strings.TrimLeft(strings.TrimSpace(address), "+")
}
