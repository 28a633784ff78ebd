package bus

import (
	"testing"
)

func TestNewCanonicalMessage(t *testing.T) {
	msg, err := NewCanonicalMessage(" 42 ", " hello ", "telegram", map[string]string{"locale": "en"})
	if err != nil {
		t.Fatalf("NewCanonicalMessage: %v", err)
	}
	if msg.SenderID != "42" {
		t.Fatalf("sender id = %q, want 42", msg.SenderID)
	}
	if msg.Text != "hello" {
		t.Fatalf("text = %q, want hello", msg.Text)
	}
	if msg.InputChannel != "telegram" {
		t.Fatalf("input channel = %q, want telegram", msg.InputChannel)
	}
	if msg.MessageID == "" {
		t.Fatal("expected a message id to be stamped")
	}
	if msg.Metadata["locale"] != "en" {
		t.Fatal("metadata not carried through")
	}
}

func TestNewCanonicalMessageRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		sender string
		text   string
		input  string
	}{
		{"missing sender", "", "hi", "vk"},
		{"missing text", "1", "   ", "vk"},
		{"missing channel", "1", "hi", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCanonicalMessage(tc.sender, tc.text, tc.input, nil); err == nil {
				t.Fatal("expected construction to fail")
			}
		})
	}
}
