package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
)

const (
	defaultBaseURL = "https://api.vk.com/method"
	apiVersion     = "5.131"
	sendTimeout    = 10 * time.Second
)

// Output renders outbound instructions into VK messages.send calls.
//
// The HTTP client is scoped to one send call rather than held long-term;
// per-call state can never leak between sends.
type Output struct {
	accessToken string
	baseURL     string
	timeout     time.Duration
	log         *slog.Logger
	randomID    func() int64
}

func newOutput(accessToken string, log *slog.Logger) *Output {
	return &Output{
		accessToken: accessToken,
		baseURL:     defaultBaseURL,
		timeout:     sendTimeout,
		log:         log,
		randomID:    func() int64 { return rand.Int63() },
	}
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
// preserving order. Every segment is attempted even when an earlier one
// fails.
func (o *Output) sendText(ctx context.Context, recipientID string, text string) error {
	userID, err := parseUserID(recipientID)
	if err != nil {
		return err
	}

	var errs []error
	for _, segment := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if err := o.sendMessage(ctx, userID, segment, nil); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (o *Output) sendButtons(ctx context.Context, recipientID string, instruction bus.OutboundInstruction) error {
	userID, err := parseUserID(recipientID)
	if err != nil {
		return err
	}

	keyboard, ok := renderKeyboard(instruction.Buttons, instruction.ButtonStyle)
	if !ok {
		// Documented gap: the send is abandoned without surfacing an error
		// to the caller.
		o.log.Error("Unknown button style, send abandoned", "style", string(instruction.ButtonStyle))
		return nil
	}

	extra := url.Values{}
	extra.Set("keyboard", keyboard)

	return o.sendMessage(ctx, userID, instruction.Text, extra)
}

// Custom payload routing for VK: coordinates ride the messages.send lat/long
// parameters, plain text maps to a normal send. Larger field sets precede
// subsets; unroutable payloads are dropped (documented gap).
var customRules = []struct {
	operation string
	fields    []string
}{
	{"coordinates", []string{"latitude", "longitude"}},
	{"message", []string{"text"}},
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

	userID, err := parseUserID(recipientID)
	if err != nil {
		return err
	}

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

		switch rule.operation {
		case "coordinates":
			extra := url.Values{}
			extra.Set("lat", coerceString(args["latitude"]))
			extra.Set("long", coerceString(args["longitude"]))
			// Remaining text, if any, rides the same call.
			text := coerceString(payload["text"])
			delete(payload, "text")
			return o.sendMessage(ctx, userID, text, extra)
		case "message":
			return o.sendMessage(ctx, userID, coerceString(args["text"]), nil)
		}
	}

	o.log.Debug("Custom payload matched no routing rule, dropped", "recipient_id", recipientID)
	return nil
}

// sendMessage issues one messages.send call and interprets the response body
// for an embedded error object.
func (o *Output) sendMessage(ctx context.Context, userID int64, message string, extra url.Values) error {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("peer_id", strconv.FormatInt(userID, 10))
	params.Set("random_id", strconv.FormatInt(o.randomID(), 10))
	params.Set("message", message)
	params.Set("access_token", o.accessToken)
	params.Set("v", apiVersion)
	for key, values := range extra {
		for _, value := range values {
			params.Set(key, value)
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/messages.send", strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", channel.ErrDelivery, err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: o.timeout}
	response, err := client.Do(request)
	if err != nil {
		o.log.Error("Failed to reach VK API", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %v", channel.ErrDelivery, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", channel.ErrDelivery, err)
	}

	var result struct {
		Error *struct {
			Code    int    `json:"error_code"`
			Message string `json:"error_msg"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: decode response: %v", channel.ErrDelivery, err)
	}

	if result.Error != nil {
		o.log.Error("VK reported a send error", "user_id", userID, "code", result.Error.Code, "message", result.Error.Message)
		return fmt.Errorf("%w: vk error %d: %s", channel.ErrDelivery, result.Error.Code, result.Error.Message)
	}

	return nil
}

// vkKeyboard is the VK bots keyboard wire format.
type vkKeyboard struct {
	Inline  bool         `json:"inline"`
	OneTime bool         `json:"one_time"`
	Buttons [][]vkButton `json:"buttons"`
}

type vkButton struct {
	Action vkButtonAction `json:"action"`
}

type vkButtonAction struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Payload string `json:"payload,omitempty"`
}

// renderKeyboard lays buttons out into rows of at most three and encodes the
// VK keyboard JSON. Unknown styles report !ok.
func renderKeyboard(buttons []bus.Button, style bus.ButtonStyle) (string, bool) {
	keyboard := vkKeyboard{Buttons: make([][]vkButton, 0)}

	switch style {
	case bus.StyleInline:
		keyboard.Inline = true
	case bus.StyleReply:
		keyboard.OneTime = true
	default:
		return "", false
	}

	for _, row := range bus.ChunkButtons(buttons) {
		encoded := make([]vkButton, 0, len(row))
		for _, button := range row {
			encoded = append(encoded, vkButton{
				Action: vkButtonAction{
					Type:    "text",
					Label:   button.Title,
					Payload: button.Payload,
				},
			})
		}
		keyboard.Buttons = append(keyboard.Buttons, encoded)
	}

	rendered, err := json.Marshal(keyboard)
	if err != nil {
		return "", false
	}

	return string(rendered), true
}

func parseUserID(recipientID string) (int64, error) {
	userID, err := strconv.ParseInt(strings.TrimSpace(recipientID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid vk recipient id %q: %w", recipientID, err)
	}

	return userID, nil
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
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
