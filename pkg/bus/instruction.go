package bus

import (
	"errors"
	"fmt"
)

// InstructionKind tags the variant carried by an OutboundInstruction.
type InstructionKind string

const (
	KindText    InstructionKind = "text"
	KindButtons InstructionKind = "buttons"
	KindCustom  InstructionKind = "custom"
)

// ButtonStyle selects how a platform renders interactive buttons.
type ButtonStyle string

const (
	StyleInline ButtonStyle = "inline"
	StyleReply  ButtonStyle = "reply"
)

// maxButtonsPerRow is shared by every platform keyboard renderer.
const maxButtonsPerRow = 3

// Button describes one interactive button attached to an outbound message.
type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// OutboundInstruction is a platform-independent description of one response
// turn. Exactly one variant is populated, selected by Kind. Instances are
// consumed by an outbound channel immediately and never retained.
type OutboundInstruction struct {
	Kind        InstructionKind `json:"kind"`
	Text        string          `json:"text,omitempty"`
	Buttons     []Button        `json:"buttons,omitempty"`
	ButtonStyle ButtonStyle     `json:"button_style,omitempty"`
	Custom      map[string]any  `json:"custom,omitempty"`
}

// Text builds a plain-text instruction.
func Text(text string) OutboundInstruction {
	return OutboundInstruction{Kind: KindText, Text: text}
}

// WithButtons builds a text-with-buttons instruction.
func WithButtons(text string, buttons []Button, style ButtonStyle) OutboundInstruction {
	return OutboundInstruction{Kind: KindButtons, Text: text, Buttons: buttons, ButtonStyle: style}
}

// Custom builds an instruction carrying an arbitrary structured payload whose
// keys select the platform send operation.
func Custom(payload map[string]any) OutboundInstruction {
	return OutboundInstruction{Kind: KindCustom, Custom: payload}
}

// Validate checks the exactly-one-variant invariant.
func (i OutboundInstruction) Validate() error {
	switch i.Kind {
	case KindText:
		if i.Text == "" {
			return errors.New("text instruction requires text")
		}
		if len(i.Buttons) > 0 || i.Custom != nil {
			return errors.New("text instruction must not carry buttons or custom payload")
		}
	case KindButtons:
		if len(i.Buttons) == 0 {
			return errors.New("buttons instruction requires at least one button")
		}
		if i.Custom != nil {
			return errors.New("buttons instruction must not carry a custom payload")
		}
	case KindCustom:
		if len(i.Custom) == 0 {
			return errors.New("custom instruction requires a payload")
		}
		if i.Text != "" || len(i.Buttons) > 0 {
			return errors.New("custom instruction must not carry text or buttons")
		}
	default:
		return fmt.Errorf("unknown instruction kind %q", i.Kind)
	}

	return nil
}

// ChunkButtons lays buttons out into keyboard rows of at most three,
// preserving encounter order.
func ChunkButtons(buttons []Button) [][]Button {
	if len(buttons) == 0 {
		return nil
	}

	rows := make([][]Button, 0, (len(buttons)+maxButtonsPerRow-1)/maxButtonsPerRow)
	for start := 0; start < len(buttons); start += maxButtonsPerRow {
		end := start + maxButtonsPerRow
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[start:end])
	}

	return rows
}
