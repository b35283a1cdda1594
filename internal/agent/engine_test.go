package agent

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"juliabot/internal/llm"
	"juliabot/internal/repo"
	"juliabot/internal/tools"
	"juliabot/internal/wa"
)

func newTestEngine(f *fakeRepo, invoker *fakeInvoker, gateway *fakeGateway) *Engine {
	logger := slog.Default()
	registry := tools.NewRegistry(f, gateway, invoker, logger, nil)
	router := NewRouter(f, logger, nil)
	detector := NewHandoffDetector(invoker, logger)
	loop := NewLoop(f, invoker, registry, detector, logger, nil, 0)
	return NewEngine(f, router, loop, gateway, fakeLocker{}, nil, TemplateComposer{}, nil, logger, nil, EngineConfig{
		HandoffPause: 24 * time.Hour,
	})
}

func clientFixture(f *fakeRepo) {
	f.companies["acme"] = testCompany(repo.CompanyStepRunning, true)
	f.contacts["5511888880000"] = &repo.Contact{
		ID:        "contact-1",
		CompanyID: "company-1",
		Name:      "Maria",
		Phone:     strPtr("5511888880000"),
	}
	f.memberList = []repo.CompanyMember{{
		User:      repo.User{ID: "user-1", Name: "Zé", Phone: "5511999990000"},
		CompanyID: "company-1",
		Role:      repo.RoleOwner,
	}}
}

func TestProcessInboundIgnoresOwnMessages(t *testing.T) {
	f := newFakeRepo()
	gateway := &fakeGateway{}
	engine := newTestEngine(f, &fakeInvoker{}, gateway)

	engine.ProcessInbound(context.Background(), wa.Inbound{
		Instance:    "acme",
		SenderPhone: "5511888880000",
		FromMe:      true,
		Text:        "oi",
	})

	if len(gateway.messages()) != 0 {
		t.Fatal("own messages must not produce replies")
	}
}

func TestProcessInboundDropsUnknownContactSilently(t *testing.T) {
	f := newFakeRepo()
	f.companies["acme"] = testCompany(repo.CompanyStepRunning, true)
	gateway := &fakeGateway{}
	engine := newTestEngine(f, &fakeInvoker{}, gateway)

	engine.ProcessInbound(context.Background(), wa.Inbound{
		Instance:    "acme",
		SenderPhone: "5511777770000",
		Text:        "oi",
	})

	if len(gateway.messages()) != 0 {
		t.Fatal("dropped messages must not produce replies")
	}
	if len(f.memory) != 0 {
		t.Fatal("dropped messages must not be recorded")
	}
}

func TestProcessInboundRepliesAndPersistsTranscript(t *testing.T) {
	f := newFakeRepo()
	clientFixture(f)
	gateway := &fakeGateway{}
	invoker := &fakeInvoker{
		structured: `{"needsHumanSupport": false}`,
		responses:  []*llm.ChatResponse{{Text: "Oi Maria! Em que posso ajudar?"}},
	}
	engine := newTestEngine(f, invoker, gateway)

	engine.ProcessInbound(context.Background(), wa.Inbound{
		Instance:    "acme",
		SenderPhone: "5511888880000",
		Text:        "oi, tudo bem?",
	})

	sent := gateway.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sent))
	}
	if sent[0].Phone != "5511888880000" {
		t.Fatalf("reply went to %s", sent[0].Phone)
	}

	transcript := f.memory["contact-1"]
	if len(transcript) != 2 {
		t.Fatalf("expected user and assistant rows, got %d", len(transcript))
	}
	if transcript[0].Role != repo.RoleUserMsg || transcript[1].Role != repo.RoleAssistant {
		t.Fatalf("unexpected transcript roles %s/%s", transcript[0].Role, transcript[1].Role)
	}
}

func TestProcessInboundHandoffPausesContactAndNotifiesOwnerOnce(t *testing.T) {
	f := newFakeRepo()
	clientFixture(f)
	gateway := &fakeGateway{}
	invoker := &fakeInvoker{
		structured: `{"needsHumanSupport": true, "reason": "pediu atendente"}`,
	}
	engine := newTestEngine(f, invoker, gateway)

	before := time.Now()
	engine.ProcessInbound(context.Background(), wa.Inbound{
		Instance:    "acme",
		SenderPhone: "5511888880000",
		Text:        "quero falar com uma pessoa",
	})

	until, ok := f.ignoredUntil["contact-1"]
	if !ok {
		t.Fatal("contact must be paused after handoff")
	}
	if got := until.Sub(before); got < 23*time.Hour || got > 25*time.Hour {
		t.Fatalf("pause must be about 24h, got %s", got)
	}

	sent := gateway.messages()
	if len(sent) != 2 {
		t.Fatalf("expected owner notice plus client acknowledgement, got %d messages", len(sent))
	}

	var ownerNotices, clientReplies int
	for _, m := range sent {
		switch m.Phone {
		case "5511999990000":
			ownerNotices++
			if !strings.Contains(m.Text, "Maria") {
				t.Fatalf("notice must name the client, got %q", m.Text)
			}
		case "5511888880000":
			clientReplies++
			if m.Text != handoffAck {
				t.Fatalf("unexpected client reply %q", m.Text)
			}
		default:
			t.Fatalf("unexpected recipient %s", m.Phone)
		}
	}
	if ownerNotices != 1 {
		t.Fatalf("the responsible user is notified exactly once, got %d", ownerNotices)
	}
	if clientReplies != 1 {
		t.Fatalf("expected exactly one client acknowledgement, got %d", clientReplies)
	}
}

func TestProcessInboundDropsAudioWhenTranscriptionDisabled(t *testing.T) {
	f := newFakeRepo()
	clientFixture(f)
	gateway := &fakeGateway{}
	engine := newTestEngine(f, &fakeInvoker{}, gateway)

	engine.ProcessInbound(context.Background(), wa.Inbound{
		Instance:    "acme",
		SenderPhone: "5511888880000",
		Audio:       []byte{0x4f, 0x67, 0x67},
		AudioMime:   "audio/ogg",
	})

	if len(gateway.messages()) != 0 {
		t.Fatal("audio without a transcriber must be dropped")
	}
}
