package bus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CanonicalMessage is the platform-independent representation of one inbound
// user turn. Inbound channels construct it once per recognized webhook event
// and hand it to the dispatch callback; nothing in this package persists it.
type CanonicalMessage struct {
	MessageID    string            `json:"message_id"`
	SenderID     string            `json:"sender_id"`
	Text         string            `json:"text"`
	InputChannel string            `json:"input_channel"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewCanonicalMessage builds an envelope and stamps a fresh message id.
//
// Sender id, text, and input channel are required; empty or unsupported
// updates must be dropped by the inbound channel before this point.
func NewCanonicalMessage(senderID string, text string, inputChannel string, metadata map[string]string) (CanonicalMessage, error) {
	senderID = strings.TrimSpace(senderID)
	text = strings.TrimSpace(text)
	inputChannel = strings.TrimSpace(inputChannel)

	if senderID == "" {
		return CanonicalMessage{}, errors.New("canonical message requires a sender id")
	}
	if text == "" {
		return CanonicalMessage{}, errors.New("canonical message requires text")
	}
	if inputChannel == "" {
		return CanonicalMessage{}, errors.New("canonical message requires an input channel")
	}

	return CanonicalMessage{
		MessageID:    uuid.NewString(),
		SenderID:     senderID,
		Text:         text,
		InputChannel: inputChannel,
		Metadata:     metadata,
	}, nil
}

func (m CanonicalMessage) String() string {
	return fmt.Sprintf("%s/%s: %s", m.InputChannel, m.SenderID, m.Text)
}
