package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connstated/internal/connstate"
)

const shutdownTimeout = 5 * time.Second

// Service represents the HTTP server for the API
type Service struct {
	address string
	port    int

	state   StateProvider
	events  EventSource
	metrics http.Handler

	mu     sync.Mutex
	server *http.Server
	closed bool
}

func NewService(host string, port int) *Service {
	return &Service{
		address: host,
		port:    port,
	}
}

// Attach wires the connection state and the event stream behind the API.
func (s *Service) Attach(state StateProvider, events EventSource) {
	s.state = state
	s.events = events
}

// AttachMetrics serves h on /metrics.
func (s *Service) AttachMetrics(h http.Handler) {
	s.metrics = h
}

// Start serves the API until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	log.Infof("Starting connstated API service at %s:%d", s.address, s.port)
	defer log.Info("Stopping connstated API service")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("API service did not shut down cleanly")
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Handler builds the API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if s.state == nil || s.events == nil {
				http.Error(w, "Connection monitor not attached", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.state == nil {
			http.Error(w, "Connection monitor not attached", http.StatusServiceUnavailable)
			return
		}

		infos := s.state.ConnectionState()
		if name := r.URL.Query().Get("type"); name != "" {
			ct, ok := connstate.ParseConnectionType(name)
			if !ok {
				http.Error(w, fmt.Sprintf("Unknown connection type %q", name), http.StatusBadRequest)
				return
			}
			infos = filterByType(infos, ct)
		}

		w.Header().Add("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		if err := enc.Encode(infos); err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode connection state: %v", err), http.StatusInternalServerError)
			return
		}
	})
	mux.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		if s.state == nil || s.events == nil {
			http.Error(w, "Connection monitor not attached", http.StatusServiceUnavailable)
			return
		}
		StreamEvents(s, w, r)
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func filterByType(infos []connstate.ConnectionInfo, ct connstate.ConnectionType) []connstate.ConnectionInfo {
	out := make([]connstate.ConnectionInfo, 0, len(infos))
	for _, info := range infos {
		if info.Type == ct {
			out = append(out, info)
		}
	}
	return out
}
