package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
	"chatbridge/pkg/config"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 18790
)

// Pair is one resolved platform: its inbound webhook surface and outbound
// sender, mounted together under /webhooks/<name>.
type Pair struct {
	Name     string
	Inbound  channel.Inbound
	Outbound channel.Outbound
}

// Service hosts the webhook HTTP surface for every configured platform and
// fans inbound canonical messages into the externally supplied dispatcher.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	dispatch channel.Dispatcher
	pairs    []Pair

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Mounted    bool   `json:"mounted"`
	Dispatched uint64 `json:"dispatched"`
	LastError  string `json:"last_error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService wires resolved channel pairs and the dispatch callback into a
// runnable gateway.
func NewService(cfg *config.Config, pairs []Pair, dispatch channel.Dispatcher, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(pairs) == 0 {
		return nil, errors.New("at least one channel pair is required")
	}
	if dispatch == nil {
		return nil, errors.New("dispatcher is required")
	}
	if log == nil {
		log = slog.Default()
	}

	channelStates := make(map[string]channelState, len(pairs))
	for _, pair := range pairs {
		channelStates[pair.Name] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		dispatch:      dispatch,
		pairs:         pairs,
		channelStates: channelStates,
	}, nil
}

// Outbound returns the outbound channel for one platform name.
func (s *Service) Outbound(name string) (channel.Outbound, bool) {
	for _, pair := range s.pairs {
		if pair.Name == name {
			return pair.Outbound, true
		}
	}

	return nil, false
}

// Router builds the full HTTP surface: health endpoints plus one webhook
// mount per platform.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	for _, pair := range s.pairs {
		pair := pair
		r.Route("/webhooks/"+pair.Name, func(mount chi.Router) {
			pair.Inbound.Routes(mount, s.wrapDispatch(pair.Name))
		})
		s.setChannelState(pair.Name, channelState{Mounted: true})
		s.log.Info("Webhook channel mounted", "channel", pair.Name, "path", "/webhooks/"+pair.Name)
	}

	return r
}

// wrapDispatch decorates the external dispatcher with per-channel counters
// so /readyz and /healthz can report activity.
func (s *Service) wrapDispatch(name string) channel.Dispatcher {
	return func(ctx context.Context, msg bus.CanonicalMessage) error {
		err := s.dispatch(ctx, msg)

		s.mu.Lock()
		state := s.channelStates[name]
		state.Dispatched++
		state.LastError = errorString(err)
		s.channelStates[name] = state
		s.mu.Unlock()

		return err
	}
}

// Run serves the gateway until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHost
	}
	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultPort
	}

	server := &http.Server{
		Addr:              host + ":" + strconv.Itoa(port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("Gateway started", "address", server.Addr, "channels", s.channelNames())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("serve gateway: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErrors:
		return err
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Mounted {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.channelStates[name]
	state.Dispatched = previous.Dispatched
	state.LastError = previous.LastError
	s.channelStates[name] = state
}

func (s *Service) channelNames() string {
	names := make([]string, 0, len(s.pairs))
	for _, pair := range s.pairs {
		names = append(names, pair.Name)
	}

	return strings.Join(names, ",")
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
