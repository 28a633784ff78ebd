package telegram

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
)

const channelName = "telegram"

const (
	restartIntent = "/restart"
	startCommand  = "/start"
)

const (
	ackSuccess = "success"
	ackFailed  = "failed"
)

// FromCredentials builds the Telegram inbound/outbound pair from the opaque
// credential mapping. Required keys: access_token, verify. Optional:
// webhook_url (used by the set_webhook route).
func FromCredentials(creds channel.Credentials, opts channel.Options) (channel.Inbound, channel.Outbound, error) {
	token, err := creds.Require("access_token")
	if err != nil {
		return nil, nil, err
	}
	verify, err := creds.Require("verify")
	if err != nil {
		return nil, nil, err
	}

	client, err := newBotAPI(token)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	output := newOutput(client, opts.ComponentLogger("channel.telegram.output"))
	input := &Input{
		api:        client,
		verify:     verify,
		webhookURL: creds.Optional("webhook_url"),
		debug:      opts.Debug,
		output:     output,
		log:        opts.ComponentLogger("channel.telegram"),
	}

	return input, output, nil
}

// Input is the Telegram webhook channel. It verifies each update against the
// configured bot identity, normalizes recognized updates into canonical
// messages, and acknowledges everything else so Telegram never retries.
type Input struct {
	api        api
	verify     string
	webhookURL string
	debug      bool
	output     *Output
	log        *slog.Logger
}

// Name returns the platform tag used in envelopes, routes, and logs.
func (i *Input) Name() string {
	return channelName
}

// Output returns the cached outbound channel paired with this input, for
// synchronous replies within the same webhook turn.
func (i *Input) Output() *Output {
	return i.output
}

// Routes mounts the Telegram webhook surface.
func (i *Input) Routes(r chi.Router, dispatch channel.Dispatcher) {
	webhook := i.webhookHandler(dispatch)

	r.Get("/", i.handleHealth)
	r.Get("/set_webhook", i.handleSetWebhook)
	r.Post("/set_webhook", i.handleSetWebhook)
	r.Get("/webhook", webhook)
	r.Post("/webhook", webhook)
}

func (i *Input) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (i *Input) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	if err := i.api.SetWebhook(r.Context(), i.webhookURL); err != nil {
		i.log.Warn("Webhook setup failed", "url", i.webhookURL, "error", err)
		respondText(w, "Invalid webhook")
		return
	}

	i.log.Info("Webhook setup successful", "url", i.webhookURL)
	respondText(w, "Webhook setup successful")
}

// update mirrors the consumed subset of the native Telegram update JSON.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text     string `json:"text"`
		Chat     chat   `json:"chat"`
		Location *struct {
			Longitude float64 `json:"longitude"`
			Latitude  float64 `json:"latitude"`
		} `json:"location"`
	} `json:"message"`
	CallbackQuery *struct {
		Data    string `json:"data"`
		Message struct {
			Chat chat `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

type chat struct {
	ID int64 `json:"id"`
}

func (i *Input) webhookHandler(dispatch channel.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondText(w, ackSuccess)
			return
		}

		var u update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			i.log.Debug("Ignoring undecodable update body", "error", err)
			respondText(w, ackSuccess)
			return
		}

		username, err := i.api.Me(r.Context())
		if err != nil || username != i.verify {
			i.log.Error("Bot identity does not match configured verify value", "verify", i.verify, "error", err)
			respondText(w, ackFailed)
			return
		}

		result := classify(u)
		switch result.Verdict {
		case channel.VerdictIgnored:
			respondText(w, ackSuccess)
			return
		case channel.VerdictRejected:
			respondText(w, ackFailed)
			return
		}

		if strings.TrimSpace(result.Text) == "" {
			// e.g. a callback query with empty data, or text that stripped
			// down to nothing. Same quiet drop as any unsupported update.
			i.log.Debug("Dropping update with empty normalized text", "sender_id", result.SenderID)
			respondText(w, ackSuccess)
			return
		}

		metadata := map[string]string{"update_id": strconv.FormatInt(u.UpdateID, 10)}

		texts := []string{result.Text}
		if result.Text == restartIntent {
			// A restart is always chased by a synthetic session opener,
			// dispatched strictly after the restart itself.
			texts = append(texts, startCommand)
		}

		for _, text := range texts {
			msg, err := bus.NewCanonicalMessage(result.SenderID, text, channelName, metadata)
			if err != nil {
				i.log.Error("Failed to build canonical message", "sender_id", result.SenderID, "error", err)
				respondText(w, ackSuccess)
				return
			}

			if err := dispatch(r.Context(), msg); err != nil {
				i.log.Error("Dispatch failed for inbound message", "sender_id", result.SenderID, "error", err)
				i.log.Debug("Dispatch failure detail", "sender_id", result.SenderID, "text", text, "error", err)
				if i.debug {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				// Swallowed: Telegram must still see success or it retries
				// the update indefinitely.
				respondText(w, ackSuccess)
				return
			}
		}

		respondText(w, ackSuccess)
	}
}

// classify maps one raw update to a normalized message or a drop decision.
func classify(u update) channel.Classification {
	if u.CallbackQuery != nil {
		return channel.Message(
			strconv.FormatInt(u.CallbackQuery.Message.Chat.ID, 10),
			u.CallbackQuery.Data,
		)
	}

	if u.Message == nil {
		return channel.Ignored()
	}

	senderID := strconv.FormatInt(u.Message.Chat.ID, 10)

	if u.Message.Text != "" {
		return channel.Message(senderID, strings.ReplaceAll(u.Message.Text, "/bot", ""))
	}

	if u.Message.Location != nil {
		text := fmt.Sprintf(`{"lng":%v, "lat":%v}`, u.Message.Location.Longitude, u.Message.Location.Latitude)
		return channel.Message(senderID, text)
	}

	return channel.Ignored()
}

func respondText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
