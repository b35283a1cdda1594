package wa

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturingProcessor struct {
	mu       sync.Mutex
	inbounds []Inbound
}

func (p *capturingProcessor) ProcessInbound(_ context.Context, msg Inbound) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbounds = append(p.inbounds, msg)
}

func (p *capturingProcessor) wait(t *testing.T, n int) []Inbound {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		if len(p.inbounds) >= n {
			got := append([]Inbound{}, p.inbounds...)
			p.mu.Unlock()
			return got
		}
		p.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("processor did not receive %d messages in time", n)
	return nil
}

func postEvent(handler http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadToken(t *testing.T) {
	proc := &capturingProcessor{}
	handler := NewWebhookHandler(slog.Default(), nil, "secret", proc)

	rec := postEvent(handler, "wrong", `{"instance":"acme","senderAddress":"5511888880000"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookRejectsMissingFields(t *testing.T) {
	handler := NewWebhookHandler(slog.Default(), nil, "", &capturingProcessor{})

	rec := postEvent(handler, "", `{"text":"oi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookForwardsNormalizedInbound(t *testing.T) {
	proc := &capturingProcessor{}
	handler := NewWebhookHandler(slog.Default(), nil, "secret", proc)

	rec := postEvent(handler, "secret", `{"instance":"acme","senderAddress":"+5511888880000@s.whatsapp.net","senderName":"Maria","text":"oi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	got := proc.wait(t, 1)
	if got[0].SenderPhone != "5511888880000" {
		t.Fatalf("address must be normalized to a bare phone, got %q", got[0].SenderPhone)
	}
	if got[0].Instance != "acme" || got[0].Text != "oi" {
		t.Fatalf("unexpected inbound %+v", got[0])
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"5511888880000@s.whatsapp.net": "5511888880000",
		"+5511888880000":               "5511888880000",
		" 5511888880000 ":              "5511888880000",
		"5511888880000":                "5511888880000",
		"5511888880000@g.us":           "5511888880000",
	}
	for in, want := range cases {
		if got := normalizeAddress(in); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
