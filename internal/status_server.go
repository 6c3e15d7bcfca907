package internal

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// StatusServer exposes monitor states (/status), a websocket event feed (/events) and metrics (/metrics).
type StatusServer struct {
	addr     string
	tracker  *StateTracker
	events   *EventBus
	metrics  *Metrics
	server   *http.Server
	upgrader websocket.Upgrader
	log      *log.Entry
}

func NewStatusServer(addr string, tracker *StateTracker, events *EventBus, metrics *Metrics, logger *log.Logger) *StatusServer {
	return &StatusServer{
		addr:     addr,
		tracker:  tracker,
		events:   events,
		metrics:  metrics,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      logger.WithField(SourceField, SystemSource),
	}
}

func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the listener and serves in the background.
func (s *StatusServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.log.Infof("Status server listening on %s", ln.Addr())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("Status server error: %v", err)
		}
	}()
	return nil
}

func (s *StatusServer) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.tracker.Snapshot())
}

// handleEvents streams monitor events as JSON text frames. ?camera=<name> narrows the feed to one camera.
func (s *StatusServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event feed disabled", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	stream := s.events.Subscribe(r.URL.Query().Get("camera"))
	subscribed := true
	defer func() {
		if subscribed {
			s.events.Unsubscribe(stream)
		}
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-stream:
			if !ok {
				subscribed = false
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debugf("Websocket client dropped: %v", err)
				return
			}
		}
	}
}
