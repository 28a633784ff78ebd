package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
	"chatbridge/pkg/config"
)

// echoInbound mounts a single POST route that dispatches its body as a
// canonical message, standing in for a real platform webhook.
type echoInbound struct {
	name string
}

func (e *echoInbound) Name() string {
	return e.name
}

func (e *echoInbound) Routes(r chi.Router, dispatch channel.Dispatcher) {
	r.Post("/webhook", func(w http.ResponseWriter, req *http.Request) {
		buf := make([]byte, 1024)
		n, _ := req.Body.Read(buf)

		msg, err := bus.NewCanonicalMessage("1", strings.TrimSpace(string(buf[:n])), e.name, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := dispatch(req.Context(), msg); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	})
}

type nullOutbound struct{ name string }

func (n nullOutbound) Name() string { return n.name }
func (n nullOutbound) Send(context.Context, string, bus.OutboundInstruction) error {
	return nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []bus.CanonicalMessage
	err      error
}

func (d *recordingDispatcher) dispatch(_ context.Context, msg bus.CanonicalMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
	return d.err
}

func newTestService(t *testing.T, dispatcher *recordingDispatcher) *Service {
	t.Helper()

	cfg := &config.Config{Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: 0}}
	pairs := []Pair{
		{Name: "fake", Inbound: &echoInbound{name: "fake"}, Outbound: nullOutbound{name: "fake"}},
	}

	svc, err := NewService(cfg, pairs, dispatcher.dispatch, slog.Default())
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidation(t *testing.T) {
	cfg := &config.Config{}
	dispatch := func(context.Context, bus.CanonicalMessage) error { return nil }
	pair := Pair{Name: "x", Inbound: &echoInbound{name: "x"}, Outbound: nullOutbound{name: "x"}}

	_, err := NewService(nil, []Pair{pair}, dispatch, nil)
	require.Error(t, err)

	_, err = NewService(cfg, nil, dispatch, nil)
	require.Error(t, err)

	_, err = NewService(cfg, []Pair{pair}, nil, nil)
	require.Error(t, err)
}

func TestRouterMountsWebhooks(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := newTestService(t, dispatcher)
	router := svc.Router()

	request := httptest.NewRequest(http.MethodPost, "/webhooks/fake/webhook", strings.NewReader("hello"))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "success", recorder.Body.String())
	require.Len(t, dispatcher.messages, 1)
	require.Equal(t, "hello", dispatcher.messages[0].Text)
	require.Equal(t, "fake", dispatcher.messages[0].InputChannel)
}

func TestReadyzReflectsMountedChannels(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := newTestService(t, dispatcher)

	// Not ready until Router() has mounted the channels.
	require.False(t, svc.isReady())

	router := svc.Router()
	require.True(t, svc.isReady())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"status":"ready"`)
}

func TestHealthzReportsDispatchCounts(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := newTestService(t, dispatcher)
	router := svc.Router()

	request := httptest.NewRequest(http.MethodPost, "/webhooks/fake/webhook", strings.NewReader("one"))
	router.ServeHTTP(httptest.NewRecorder(), request)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"dispatched":1`)
}

func TestWrapDispatchRecordsLastError(t *testing.T) {
	dispatcher := &recordingDispatcher{err: errors.New("downstream exploded")}
	svc := newTestService(t, dispatcher)
	router := svc.Router()

	request := httptest.NewRequest(http.MethodPost, "/webhooks/fake/webhook", strings.NewReader("boom"))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusInternalServerError, recorder.Code)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Contains(t, recorder.Body.String(), "downstream exploded")
}

func TestOutboundLookup(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := newTestService(t, dispatcher)

	outbound, ok := svc.Outbound("fake")
	require.True(t, ok)
	require.Equal(t, "fake", outbound.Name())

	_, ok = svc.Outbound("missing")
	require.False(t, ok)
}
