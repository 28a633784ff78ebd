package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatbridge/pkg/bus"
)

// Dispatcher routes one canonical message into the downstream dialogue
// system. It is supplied by the gateway owner; inbound channels invoke it
// exactly once per recognized update and treat its error per channel policy.
type Dispatcher func(context.Context, bus.CanonicalMessage) error

// Inbound receives platform webhook traffic and normalizes it.
//
// Routes mounts the platform's webhook handlers on the given router; the
// dispatcher is captured once at mount time and used for every request.
type Inbound interface {
	Name() string
	Routes(r chi.Router, dispatch Dispatcher)
}

// Outbound renders one platform-independent instruction into platform API
// calls. Send blocks until every resulting API call has been acknowledged;
// retries are the caller's responsibility.
type Outbound interface {
	Name() string
	Send(ctx context.Context, recipientID string, instruction bus.OutboundInstruction) error
}

// Credentials is the opaque per-platform configuration mapping (tokens,
// verification secrets, webhook URLs). Immutable after load.
type Credentials map[string]string

// ErrMissingCredentials marks a fatal configuration error raised at channel
// construction when a required credential field is absent.
var ErrMissingCredentials = errors.New("missing credentials")

// ErrDelivery marks a failed outbound send reported back to the caller.
var ErrDelivery = errors.New("delivery failed")

// Require returns the named credential or a wrapped ErrMissingCredentials.
func (c Credentials) Require(key string) (string, error) {
	value := strings.TrimSpace(c[key])
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingCredentials, key)
	}

	return value, nil
}

// Optional returns the named credential or empty when absent.
func (c Credentials) Optional(key string) string {
	return strings.TrimSpace(c[key])
}

// Options carries process-wide immutable settings passed explicitly into
// every channel at construction.
//
// Debug controls dispatch-failure behavior: in debug mode a downstream
// handler error propagates out of the webhook handler; otherwise it is
// logged and swallowed so the platform never retries the update.
type Options struct {
	Logger *slog.Logger
	Debug  bool
}

// ComponentLogger returns the configured logger scoped to one component,
// falling back to the process default.
func (o Options) ComponentLogger(component string) *slog.Logger {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}

	return log.With("component", component)
}
