package telegram

import (
	"context"
	"encoding/json"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// api is the slice of the Telegram Bot API used by this channel. The real
// implementation wraps a telego bot; tests substitute a recorder. The extras
// mapping carries leftover custom-payload fields onto the outgoing call as
// optional Bot API parameters.
type api interface {
	Me(ctx context.Context) (username string, err error)
	SetWebhook(ctx context.Context, url string) error
	SendMessage(ctx context.Context, chatID int64, text string, markup telego.ReplyMarkup, extras map[string]any) error
	SendVenue(ctx context.Context, chatID int64, latitude, longitude float64, title, address string, extras map[string]any) error
	SendLocation(ctx context.Context, chatID int64, latitude, longitude float64, extras map[string]any) error
	SendContact(ctx context.Context, chatID int64, phoneNumber, firstName string, extras map[string]any) error
	SendChatAction(ctx context.Context, chatID int64, action string, extras map[string]any) error
}

type botAPI struct {
	bot *telego.Bot
}

func newBotAPI(token string) (*botAPI, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, err
	}

	return &botAPI{bot: bot}, nil
}

// applyExtras overlays leftover payload fields onto a params struct through
// its JSON form, so e.g. disable_notification lands on the matching optional
// field. Keys the method does not define are dropped by the unmarshal.
func applyExtras(params any, extras map[string]any) error {
	if len(extras) == 0 {
		return nil
	}

	encoded, err := json.Marshal(extras)
	if err != nil {
		return err
	}

	return json.Unmarshal(encoded, params)
}

func (b *botAPI) Me(ctx context.Context) (string, error) {
	me, err := b.bot.GetMe(ctx)
	if err != nil {
		return "", err
	}

	return me.Username, nil
}

func (b *botAPI) SetWebhook(ctx context.Context, url string) error {
	return b.bot.SetWebhook(ctx, &telego.SetWebhookParams{URL: url})
}

func (b *botAPI) SendMessage(ctx context.Context, chatID int64, text string, markup telego.ReplyMarkup, extras map[string]any) error {
	params := tu.Message(tu.ID(chatID), text)
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	if err := applyExtras(params, extras); err != nil {
		return err
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}

func (b *botAPI) SendVenue(ctx context.Context, chatID int64, latitude, longitude float64, title, address string, extras map[string]any) error {
	params := &telego.SendVenueParams{
		Latitude:  latitude,
		Longitude: longitude,
		Title:     title,
		Address:   address,
	}
	if err := applyExtras(params, extras); err != nil {
		return err
	}
	params.ChatID = tu.ID(chatID)

	_, err := b.bot.SendVenue(ctx, params)
	return err
}

func (b *botAPI) SendLocation(ctx context.Context, chatID int64, latitude, longitude float64, extras map[string]any) error {
	params := &telego.SendLocationParams{
		Latitude:  latitude,
		Longitude: longitude,
	}
	if err := applyExtras(params, extras); err != nil {
		return err
	}
	params.ChatID = tu.ID(chatID)

	_, err := b.bot.SendLocation(ctx, params)
	return err
}

func (b *botAPI) SendContact(ctx context.Context, chatID int64, phoneNumber, firstName string, extras map[string]any) error {
	params := &telego.SendContactParams{
		PhoneNumber: phoneNumber,
		FirstName:   firstName,
	}
	if err := applyExtras(params, extras); err != nil {
		return err
	}
	params.ChatID = tu.ID(chatID)

	_, err := b.bot.SendContact(ctx, params)
	return err
}

func (b *botAPI) SendChatAction(ctx context.Context, chatID int64, action string, extras map[string]any) error {
	params := &telego.SendChatActionParams{Action: action}
	if err := applyExtras(params, extras); err != nil {
		return err
	}
	params.ChatID = tu.ID(chatID)

	return b.bot.SendChatAction(ctx, params)
}
