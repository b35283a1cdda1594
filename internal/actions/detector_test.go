package actions

import (
	"encoding/json"
	"testing"
)

func TestFilterKeepsOnlyConfidentKnownActions(t *testing.T) {
	det := &Detection{
		RequiresAction: true,
		Actions: []Action{
			{Type: TypeSendMessage, Confidence: 0.9},
			{Type: "MAKE_COFFEE", Confidence: 0.9},
			{Type: TypeNotifyUser, Confidence: 0.3},
		},
	}

	got := Filter(det, DefaultConfidenceThreshold)
	if len(got.Actions) != 1 {
		t.Fatalf("expected exactly one surviving action, got %d", len(got.Actions))
	}
	if got.Actions[0].Type != TypeSendMessage {
		t.Fatalf("expected %s, got %s", TypeSendMessage, got.Actions[0].Type)
	}
	if !got.RequiresAction {
		t.Fatal("requiresAction must stay true while actions survive")
	}
}

func TestFilterFlipsRequiresActionWhenNothingSurvives(t *testing.T) {
	det := &Detection{
		RequiresAction: true,
		Actions: []Action{
			{Type: "UNKNOWN_TYPE", Confidence: 0.99},
			{Type: TypeUpdateContact, Confidence: 0.1},
		},
	}

	got := Filter(det, DefaultConfidenceThreshold)
	if got.RequiresAction {
		t.Fatal("requiresAction must flip to false when every action is dropped")
	}
	if len(got.Actions) != 0 {
		t.Fatalf("expected no actions, got %d", len(got.Actions))
	}
}

func TestFilterThresholdIsInclusive(t *testing.T) {
	det := &Detection{Actions: []Action{{Type: TypeSendMessage, Confidence: 0.5}}}
	got := Filter(det, 0.5)
	if len(got.Actions) != 1 {
		t.Fatal("confidence equal to the threshold must pass")
	}
}

func TestDetectionDecodesModelShape(t *testing.T) {
	raw := `{"requiresAction": true, "actions": [{"type": "SEND_MESSAGE", "confidence": 0.8, "payload": {"contactId": "c1", "message": "oi"}}]}`
	var det Detection
	if err := json.Unmarshal([]byte(raw), &det); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(det.Actions) != 1 || det.Actions[0].Type != TypeSendMessage {
		t.Fatalf("unexpected detection %+v", det)
	}
	var payload struct {
		ContactID string `json:"contactId"`
	}
	if err := json.Unmarshal(det.Actions[0].Payload, &payload); err != nil {
		t.Fatalf("payload must stay raw json: %v", err)
	}
	if payload.ContactID != "c1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
