package vk

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
)

const channelName = "vk"

const (
	eventConfirmation = "confirmation"
	eventMessageNew   = "message_new"
)

const (
	ackOK       = "ok"
	ackRejected = "verification failed"
)

// FromCredentials builds the VK inbound/outbound pair from the opaque
// credential mapping. Required keys: access_token, verify (the group
// confirmation string), secret_key.
func FromCredentials(creds channel.Credentials, opts channel.Options) (channel.Inbound, channel.Outbound, error) {
	token, err := creds.Require("access_token")
	if err != nil {
		return nil, nil, err
	}
	confirmation, err := creds.Require("verify")
	if err != nil {
		return nil, nil, err
	}
	secret, err := creds.Require("secret_key")
	if err != nil {
		return nil, nil, err
	}

	output := newOutput(token, opts.ComponentLogger("channel.vk.output"))
	input := &Input{
		confirmation: confirmation,
		secret:       secret,
		debug:        opts.Debug,
		output:       output,
		log:          opts.ComponentLogger("channel.vk"),
	}

	return input, output, nil
}

// Input is the VK callback-API channel. Confirmation events are answered
// with the configured confirmation string; every other event must carry the
// shared secret before anything is dispatched.
type Input struct {
	confirmation string
	secret       string
	debug        bool
	output       *Output
	log          *slog.Logger
}

// Name returns the platform tag used in envelopes, routes, and logs.
func (i *Input) Name() string {
	return channelName
}

// Output returns the cached outbound channel paired with this input.
func (i *Input) Output() *Output {
	return i.output
}

// Routes mounts the VK callback surface.
func (i *Input) Routes(r chi.Router, dispatch channel.Dispatcher) {
	r.Get("/", i.handleHealth)
	r.Post("/", i.eventHandler(dispatch))
}

func (i *Input) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// event mirrors the consumed subset of a VK callback payload.
type event struct {
	Type   string `json:"type"`
	Secret string `json:"secret"`
	Object struct {
		Message struct {
			FromID  int64  `json:"from_id"`
			Text    string `json:"text"`
			Payload string `json:"payload"`
		} `json:"message"`
	} `json:"object"`
}

func (i *Input) eventHandler(dispatch channel.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			i.log.Debug("Ignoring undecodable event body", "error", err)
			respondText(w, ackOK)
			return
		}

		// Confirmation is VK's deployment handshake: echo the configured
		// string and never dispatch.
		if e.Type == eventConfirmation {
			respondText(w, i.confirmation)
			return
		}

		if e.Secret == "" || e.Secret != i.secret {
			i.log.Error("Event rejected: secret missing or mismatched", "type", e.Type)
			respondText(w, ackRejected)
			return
		}

		result := i.classify(e)
		if result.Verdict != channel.VerdictMessage {
			respondText(w, ackOK)
			return
		}

		msg, err := bus.NewCanonicalMessage(result.SenderID, result.Text, channelName, nil)
		if err != nil {
			i.log.Error("Failed to build canonical message", "sender_id", result.SenderID, "error", err)
			respondText(w, ackOK)
			return
		}

		if err := dispatch(r.Context(), msg); err != nil {
			i.log.Error("Dispatch failed for inbound message", "sender_id", result.SenderID, "error", err)
			i.log.Debug("Dispatch failure detail", "sender_id", result.SenderID, "text", result.Text, "error", err)
			if i.debug {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			respondText(w, ackOK)
			return
		}

		respondText(w, ackOK)
	}
}

// classify maps one verified event to a normalized message or a drop
// decision. A structured message payload, when present, overrides the text.
func (i *Input) classify(e event) channel.Classification {
	if e.Type != eventMessageNew {
		i.log.Debug("Ignoring unsupported event type", "type", e.Type)
		return channel.Ignored()
	}

	text := e.Object.Message.Text
	if e.Object.Message.Payload != "" {
		text = e.Object.Message.Payload
	}
	if text == "" {
		return channel.Ignored()
	}

	return channel.Message(strconv.FormatInt(e.Object.Message.FromID, 10), text)
}

func respondText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
