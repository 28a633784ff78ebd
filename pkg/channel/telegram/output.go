package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
)

// Output renders outbound instructions into Telegram Bot API calls.
type Output struct {
	api api
	log *slog.Logger
}

func newOutput(client api, log *slog.Logger) *Output {
	return &Output{api: client, log: log}
}

// Name returns the platform tag.
func (o *Output) Name() string {
	return channelName
}

// Send delivers one instruction, blocking until every resulting API call has
// been acknowledged. Failures are reported to the caller; nothing is retried
// here.
func (o *Output) Send(ctx context.Context, recipientID string, instruction bus.OutboundInstruction) error {
	if err := instruction.Validate(); err != nil {
		return err
	}

	switch instruction.Kind {
	case bus.KindText:
		return o.sendText(ctx, recipientID, instruction.Text)
	case bus.KindButtons:
		return o.sendButtons(ctx, recipientID, instruction)
	case bus.KindCustom:
		return o.sendCustom(ctx, recipientID, instruction.Custom)
	}

	return fmt.Errorf("unknown instruction kind %q", instruction.Kind)
}

// sendText splits double-newline-separated segments into independent sends,
// preserving order. Segments are not atomic: a later failure does not undo
// earlier deliveries, so every segment is attempted.
func (o *Output) sendText(ctx context.Context, recipientID string, text string) error {
	chatID, err := parseChatID(recipientID)
	if err != nil {
		return err
	}

	var errs []error
	for _, segment := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if err := o.api.SendMessage(ctx, chatID, segment, nil, nil); err != nil {
			o.log.Error("Failed to send message segment", "chat_id", chatID, "error", err)
			errs = append(errs, fmt.Errorf("%w: %v", channel.ErrDelivery, err))
		}
	}

	return errors.Join(errs...)
}

func (o *Output) sendButtons(ctx context.Context, recipientID string, instruction bus.OutboundInstruction) error {
	chatID, err := parseChatID(recipientID)
	if err != nil {
		return err
	}

	markup, ok := keyboardMarkup(instruction.Buttons, instruction.ButtonStyle)
	if !ok {
		// Documented gap: the send is abandoned without surfacing an error
		// to the caller.
		o.log.Error("Unknown button style, send abandoned", "style", string(instruction.ButtonStyle))
		return nil
	}

	if err := o.api.SendMessage(ctx, chatID, instruction.Text, markup, nil); err != nil {
		o.log.Error("Failed to send message with buttons", "chat_id", chatID, "error", err)
		return fmt.Errorf("%w: %v", channel.ErrDelivery, err)
	}

	return nil
}

// keyboardMarkup lays buttons out into rows of at most three and tags the
// keyboard per style. Unknown styles report !ok.
func keyboardMarkup(buttons []bus.Button, style bus.ButtonStyle) (telego.ReplyMarkup, bool) {
	rows := bus.ChunkButtons(buttons)

	switch style {
	case bus.StyleInline:
		inlineRows := make([][]telego.InlineKeyboardButton, 0, len(rows))
		for _, row := range rows {
			inlineRow := make([]telego.InlineKeyboardButton, 0, len(row))
			for _, button := range row {
				inlineRow = append(inlineRow, telego.InlineKeyboardButton{
					Text:         button.Title,
					CallbackData: button.Payload,
				})
			}
			inlineRows = append(inlineRows, inlineRow)
		}
		return &telego.InlineKeyboardMarkup{InlineKeyboard: inlineRows}, true

	case bus.StyleReply:
		replyRows := make([][]telego.KeyboardButton, 0, len(rows))
		for _, row := range rows {
			replyRow := make([]telego.KeyboardButton, 0, len(row))
			for _, button := range row {
				replyRow = append(replyRow, tu.KeyboardButton(button.Title))
			}
			replyRows = append(replyRows, replyRow)
		}
		return &telego.ReplyKeyboardMarkup{
			Keyboard:        replyRows,
			ResizeKeyboard:  false,
			OneTimeKeyboard: true,
		}, true
	}

	return nil, false
}

// Custom payload routing: an ordered table of required-field-sets mapped to
// send operations. Larger sets precede their subsets so a venue payload is
// never mis-routed to a plain location.
const (
	opMessage    = "message"
	opVenue      = "venue"
	opLocation   = "location"
	opContact    = "contact"
	opChatAction = "chat_action"
)

var customRules = []struct {
	operation string
	fields    []string
}{
	{opVenue, []string{"latitude", "longitude", "title", "address"}},
	{opLocation, []string{"latitude", "longitude"}},
	{opContact, []string{"phone_number", "first_name"}},
	{opMessage, []string{"text"}},
	{opChatAction, []string{"action"}},
}

// customMatch is one routed custom payload: the target operation, exactly
// the matched fields, and the remaining fields after removal.
type customMatch struct {
	Operation string
	Args      map[string]any
	Rest      map[string]any
}

// routeCustom evaluates the rule table top to bottom against a payload that
// has already had chat_id removed. The first rule whose fields are all
// present wins; its fields are extracted and deleted from the payload, which
// then becomes Rest.
func routeCustom(payload map[string]any) (customMatch, bool) {
	for _, rule := range customRules {
		matched := true
		for _, field := range rule.fields {
			if payload[field] == nil {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		args := make(map[string]any, len(rule.fields))
		for _, field := range rule.fields {
			args[field] = payload[field]
			delete(payload, field)
		}

		return customMatch{Operation: rule.operation, Args: args, Rest: payload}, true
	}

	return customMatch{}, false
}

func (o *Output) sendCustom(ctx context.Context, recipientID string, custom map[string]any) error {
	payload := make(map[string]any, len(custom))
	for key, value := range custom {
		payload[key] = value
	}

	if value, ok := payload["chat_id"]; ok {
		recipientID = coerceString(value)
		delete(payload, "chat_id")
	}

	match, ok := routeCustom(payload)
	if !ok {
		// Known gap preserved from the routing table design: an unroutable
		// payload is dropped without error.
		o.log.Debug("Custom payload matched no routing rule, dropped", "recipient_id", recipientID)
		return nil
	}

	chatID, err := parseChatID(recipientID)
	if err != nil {
		return err
	}

	if err := o.dispatchCustom(ctx, chatID, match); err != nil {
		o.log.Error("Failed to send custom payload", "chat_id", chatID, "operation", match.Operation, "error", err)
		return fmt.Errorf("%w: %v", channel.ErrDelivery, err)
	}

	return nil
}

// dispatchCustom issues the matched operation; Rest rides the call as
// operation-specific optional parameters.
func (o *Output) dispatchCustom(ctx context.Context, chatID int64, match customMatch) error {
	switch match.Operation {
	case opVenue:
		latitude, longitude, err := coerceCoordinates(match.Args)
		if err != nil {
			return err
		}
		return o.api.SendVenue(ctx, chatID, latitude, longitude,
			coerceString(match.Args["title"]),
			coerceString(match.Args["address"]),
			match.Rest,
		)
	case opLocation:
		latitude, longitude, err := coerceCoordinates(match.Args)
		if err != nil {
			return err
		}
		return o.api.SendLocation(ctx, chatID, latitude, longitude, match.Rest)
	case opContact:
		return o.api.SendContact(ctx, chatID,
			coerceString(match.Args["phone_number"]),
			coerceString(match.Args["first_name"]),
			match.Rest,
		)
	case opMessage:
		return o.api.SendMessage(ctx, chatID, coerceString(match.Args["text"]), nil, match.Rest)
	case opChatAction:
		return o.api.SendChatAction(ctx, chatID, coerceString(match.Args["action"]), match.Rest)
	}

	return fmt.Errorf("unknown custom operation %q", match.Operation)
}

func coerceCoordinates(args map[string]any) (latitude, longitude float64, err error) {
	latitude, err = coerceFloat(args["latitude"])
	if err != nil {
		return 0, 0, fmt.Errorf("latitude: %w", err)
	}
	longitude, err = coerceFloat(args["longitude"])
	if err != nil {
		return 0, 0, fmt.Errorf("longitude: %w", err)
	}

	return latitude, longitude, nil
}

func parseChatID(recipientID string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(recipientID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram recipient id %q: %w", recipientID, err)
	}

	return chatID, nil
}

func coerceString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func coerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid coordinate %q: %w", v, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("invalid coordinate value %v (%T)", value, value)
	}
}
