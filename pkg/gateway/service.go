package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ocppgate/pkg/bus"
	"ocppgate/pkg/channel"
	"ocppgate/pkg/config"
	"ocppgate/pkg/soap"
	"ocppgate/pkg/wire"
)

type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	router     *soap.Router
	serializer *wire.Serializer
	bus        *bus.MessageBus
	channels   []channel.Adapter
	stations   *stationManager

	soapEndpoints []soapEndpoint
	callHandlers  map[string]CallHandler

	// registryMu serializes registry rebuilds; readers go through the
	// router's atomic pointer.
	registryMu sync.Mutex

	mu            sync.RWMutex
	startedAt     time.Time
	listening     bool
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status         string                  `json:"status"`
	UptimeSeconds  int64                   `json:"uptime_seconds"`
	SOAPNamespaces []string                `json:"soap_namespaces"`
	ChargeBoxes    int                     `json:"charge_boxes"`
	Channels       map[string]channelState `json:"channels"`
}

// Option customizes a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	observers    map[string]soap.Observer
	callHandlers map[string]CallHandler
	bus          *bus.MessageBus
}

// WithSOAPObserver installs the service behind one payload namespace. Version
// endpoints without an observer answer with a SOAP fault.
func WithSOAPObserver(namespace string, observer soap.Observer) Option {
	return func(o *serviceOptions) {
		o.observers[namespace] = observer
	}
}

// WithCallHandler handles inbound JSON calls for one action.
func WithCallHandler(action string, handler CallHandler) Option {
	return func(o *serviceOptions) {
		o.callHandlers[action] = handler
	}
}

// WithBus shares an existing bus, for example with transport adapters.
func WithBus(mb *bus.MessageBus) Option {
	return func(o *serviceOptions) {
		o.bus = mb
	}
}

// NewService validates configuration and builds the routing registry. An
// empty registry is a configuration error and fails here.
func NewService(cfg *config.Config, adapters []channel.Adapter, log *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = slog.Default()
	}

	o := serviceOptions{
		observers:    make(map[string]soap.Observer),
		callHandlers: make(map[string]CallHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = bus.NewMessageBus()
	}

	s := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		serializer:    wire.NewSerializer(log),
		bus:           o.bus,
		channels:      adapters,
		callHandlers:  o.callHandlers,
		channelStates: make(map[string]channelState, len(adapters)),
	}
	for _, adapter := range adapters {
		s.channelStates[adapter.Name()] = channelState{}
	}

	stations, err := newStationManager(cfg.JSON.Versions, log)
	if err != nil {
		return nil, err
	}
	s.stations = stations

	endpoints, err := soapEndpointsFromConfig(cfg, o.observers)
	if err != nil {
		return nil, err
	}
	s.soapEndpoints = endpoints

	registry, err := s.buildRegistry(endpoints)
	if err != nil {
		return nil, fmt.Errorf("build soap routing registry: %w", err)
	}
	s.router, err = soap.NewRouter(registry,
		soap.WithLogger(log),
		soap.WithLookaheadLimit(cfg.SOAP.LookaheadLimit),
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Bus is the queue adapters drain outbound frames from.
func (s *Service) Bus() *bus.MessageBus {
	return s.bus
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.bus.Close()
	defer s.stations.Close()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	addr := net.JoinHostPort(s.cfg.Gateway.Host, strconv.Itoa(s.cfg.Gateway.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	serverErrors := make(chan error, 1)
	go s.serveHTTP(ctx, listener, serverErrors)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		adapter := adapter
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Service) serveHTTP(ctx context.Context, listener net.Listener, errCh chan<- error) {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.mu.Lock()
	s.listening = true
	s.mu.Unlock()

	s.log.Info("Gateway HTTP server started", "address", listener.Addr().String(), "router_path", s.cfg.SOAP.RouterPath)
	err := server.Serve(listener)

	s.mu.Lock()
	s.listening = false
	s.mu.Unlock()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("serve http: %w", err)
	}
}

// Handler returns the HTTP surface: the SOAP router path, every version
// endpoint, and health probes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.SOAP.RouterPath, s.handleSOAPRouter)
	for _, ep := range s.soapEndpoints {
		mux.HandleFunc(ep.path, s.handleSOAPEndpoint(ep.namespace))
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	return mux
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
		Status:         status,
		UptimeSeconds:  uptime,
		SOAPNamespaces: s.router.Registry().Namespaces(),
		ChargeBoxes:    len(s.stations.Known()),
		Channels:       channels,
	}
}

// isReady requires the HTTP listener and every configured channel to be up.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.listening {
		return false
	}
	for _, state := range s.channelStates {
		if !state.Running {
			return false
		}
	}
	return s.router.Registry().Len() > 0
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
