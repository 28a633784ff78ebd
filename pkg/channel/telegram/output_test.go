package telegram

import (
	"context"
	"log/slog"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"

	"chatbridge/pkg/bus"
)

func TestSendTextSplitsSegments(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "42", bus.Text("a\n\nb\n\nc"))
	require.NoError(t, err)

	require.Len(t, client.messages, 3)
	require.Equal(t, "a", client.messages[0].text)
	require.Equal(t, "b", client.messages[1].text)
	require.Equal(t, "c", client.messages[2].text)
	for _, message := range client.messages {
		require.Equal(t, int64(42), message.chatID)
	}
}

func TestSendTextSingleSegment(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	require.NoError(t, output.Send(context.Background(), "1", bus.Text("one line\nstill one send")))
	require.Len(t, client.messages, 1)
	require.Equal(t, "one line\nstill one send", client.messages[0].text)
}

func TestSendButtonsInlineRowLayout(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	buttons := make([]bus.Button, 7)
	for i := range buttons {
		buttons[i] = bus.Button{Title: string(rune('a' + i)), Payload: "/p"}
	}

	err := output.Send(context.Background(), "5", bus.WithButtons("pick one", buttons, bus.StyleInline))
	require.NoError(t, err)
	require.Len(t, client.messages, 1)

	markup, ok := client.messages[0].markup.(*telego.InlineKeyboardMarkup)
	require.True(t, ok, "expected inline keyboard markup")

	rows := markup.InlineKeyboard
	require.Len(t, rows, 3)
	require.Len(t, rows[0], 3)
	require.Len(t, rows[1], 3)
	require.Len(t, rows[2], 1)
	require.Equal(t, "a", rows[0][0].Text)
	require.Equal(t, "g", rows[2][0].Text)
}

func TestSendButtonsReplyStyle(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	buttons := []bus.Button{{Title: "yes"}, {Title: "no"}}
	err := output.Send(context.Background(), "5", bus.WithButtons("sure?", buttons, bus.StyleReply))
	require.NoError(t, err)
	require.Len(t, client.messages, 1)

	markup, ok := client.messages[0].markup.(*telego.ReplyKeyboardMarkup)
	require.True(t, ok, "expected reply keyboard markup")
	require.True(t, markup.OneTimeKeyboard)
	require.False(t, markup.ResizeKeyboard)
	require.Len(t, markup.Keyboard, 1)
	require.Len(t, markup.Keyboard[0], 2)
}

func TestSendButtonsUnknownStyleAbandoned(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	buttons := []bus.Button{{Title: "a"}}
	err := output.Send(context.Background(), "5", bus.WithButtons("pick", buttons, "hover"))
	require.NoError(t, err)
	require.Empty(t, client.messages, "no send call for unknown button style")
}

func TestSendCustomVenueBeatsLocation(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	payload := map[string]any{
		"latitude":  50.45,
		"longitude": 30.52,
		"title":     "Golden Gate",
		"address":   "Volodymyrska St",
	}
	err := output.Send(context.Background(), "77", bus.Custom(payload))
	require.NoError(t, err)

	require.Len(t, client.venues, 1)
	require.Empty(t, client.locations, "venue payload must not fall through to location")
	require.Equal(t, int64(77), client.venues[0].chatID)
	require.Equal(t, 50.45, client.venues[0].latitude)
	require.Equal(t, "Golden Gate", client.venues[0].title)
}

func TestSendCustomLocationOnly(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "77", bus.Custom(map[string]any{
		"latitude":  1.0,
		"longitude": 2.0,
	}))
	require.NoError(t, err)
	require.Len(t, client.locations, 1)
	require.Empty(t, client.venues)
}

func TestSendCustomChatIDOverride(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "77", bus.Custom(map[string]any{
		"chat_id": float64(99),
		"text":    "routed elsewhere",
	}))
	require.NoError(t, err)
	require.Len(t, client.messages, 1)
	require.Equal(t, int64(99), client.messages[0].chatID)
}

func TestSendCustomUnroutableDropped(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "77", bus.Custom(map[string]any{"sticker": "id123"}))
	require.NoError(t, err)
	require.Empty(t, client.messages)
	require.Empty(t, client.venues)
	require.Empty(t, client.locations)
}

func TestRouteCustomRemovesMatchedFields(t *testing.T) {
	payload := map[string]any{
		"latitude":             50.45,
		"longitude":            30.52,
		"title":                "Golden Gate",
		"address":              "Volodymyrska St",
		"disable_notification": true,
	}

	match, ok := routeCustom(payload)
	require.True(t, ok)
	require.Equal(t, opVenue, match.Operation)
	require.Len(t, match.Args, 4)
	require.Equal(t, map[string]any{"disable_notification": true}, match.Rest)

	for _, field := range []string{"latitude", "longitude", "title", "address"} {
		require.NotContains(t, match.Rest, field)
	}
}

func TestRouteCustomOrderIsFirstMatchWins(t *testing.T) {
	// Contact fields plus text: contact precedes message in the table.
	match, ok := routeCustom(map[string]any{
		"phone_number": "+123",
		"first_name":   "Ada",
		"text":         "hi",
	})
	require.True(t, ok)
	require.Equal(t, opContact, match.Operation)
	require.Equal(t, map[string]any{"text": "hi"}, match.Rest)
}

func TestSendCustomForwardsRemainingFields(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "77", bus.Custom(map[string]any{
		"latitude":             50.45,
		"longitude":            30.52,
		"title":                "Golden Gate",
		"address":              "Volodymyrska St",
		"disable_notification": true,
	}))
	require.NoError(t, err)

	require.Len(t, client.venues, 1)
	require.Equal(t, map[string]any{"disable_notification": true}, client.venues[0].extras)
}

func TestSendCustomMessageForwardsRemainingFields(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "77", bus.Custom(map[string]any{
		"text":       "quiet hello",
		"parse_mode": "MarkdownV2",
	}))
	require.NoError(t, err)

	require.Len(t, client.messages, 1)
	require.Equal(t, "quiet hello", client.messages[0].text)
	require.Equal(t, map[string]any{"parse_mode": "MarkdownV2"}, client.messages[0].extras)
}

func TestApplyExtrasSetsOptionalParams(t *testing.T) {
	params := &telego.SendVenueParams{}
	err := applyExtras(params, map[string]any{
		"disable_notification": true,
		"foursquare_id":        "4sq-id",
		"no_such_field":        1,
	})
	require.NoError(t, err)
	require.True(t, params.DisableNotification)
	require.Equal(t, "4sq-id", params.FoursquareID)
}

func TestSendCustomRejectsMalformedCoordinates(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "77", bus.Custom(map[string]any{
		"latitude":  "north-ish",
		"longitude": 2.0,
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "latitude")
	require.Empty(t, client.locations, "malformed coordinates must not reach the API")
	require.Empty(t, client.venues)
}

func TestSendCustomChatAction(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "4", bus.Custom(map[string]any{"action": "typing"}))
	require.NoError(t, err)
	require.Equal(t, []string{"typing"}, client.chatActions)
}

func TestSendInvalidRecipient(t *testing.T) {
	client := &fakeAPI{}
	output := newOutput(client, slog.Default())

	err := output.Send(context.Background(), "not-a-number", bus.Text("hi"))
	require.Error(t, err)
	require.Empty(t, client.messages)
}

func TestCoercions(t *testing.T) {
	require.Equal(t, "99", coerceString(float64(99)))
	require.Equal(t, "x", coerceString("x"))

	parsed, err := coerceFloat("1.5")
	require.NoError(t, err)
	require.Equal(t, 1.5, parsed)

	parsed, err = coerceFloat(2)
	require.NoError(t, err)
	require.Equal(t, 2.0, parsed)

	_, err = coerceFloat("not-a-coordinate")
	require.Error(t, err)

	_, err = coerceFloat(nil)
	require.Error(t, err)
}
