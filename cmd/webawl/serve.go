package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/webawl/worker"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve awl workers over HTTP",
	Long: `Start an HTTP server that exposes one awl worker per session. A browser
terminal posts messages and reads the worker's replies as server-sent events.

Endpoints:
  POST   /sessions                Start a worker, returns {"session_id":"..."}
  POST   /sessions/{id}/messages  Post {"message":"eval","value":"..."} or {"message":"version"}
  GET    /sessions/{id}/events    Stream worker messages (text/event-stream)
  DELETE /sessions/{id}           Terminate the worker
  GET    /health                  Health check`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("session-ttl", 15*time.Minute, "Close sessions idle for this long")
	rootCmd.AddCommand(serveCmd)
}

type sessionManager struct {
	load   worker.Loader
	logger *slog.Logger

	sessions map[string]*serverSession
	mu       sync.Mutex
	ttl      time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type serverSession struct {
	worker    *worker.Worker
	lastUsed  time.Time
	streaming atomic.Bool
}

func newSessionManager(load worker.Loader, ttl time.Duration, logger *slog.Logger) *sessionManager {
	sm := &sessionManager{
		load:     load,
		logger:   logger,
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go sm.cleanup()
	return sm
}

// create starts a worker. The interpreter keeps loading in the background;
// messages posted meanwhile are queued by the worker.
func (sm *sessionManager) create() string {
	id := generateSessionID()
	w := worker.Start(context.Background(), sm.load,
		worker.WithLogger(sm.logger), worker.WithName("session "+id))

	sm.mu.Lock()
	sm.sessions[id] = &serverSession{
		worker:   w,
		lastUsed: time.Now(),
	}
	sm.mu.Unlock()

	go func() {
		select {
		case err := <-w.Err():
			sm.logger.Error("session worker failed", "session", id, "error", err)
		case <-w.Done():
		}
	}()
	return id
}

func (sm *sessionManager) get(id string) (*serverSession, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ss, ok := sm.sessions[id]
	if ok {
		ss.lastUsed = time.Now()
	}
	return ss, ok
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if ok {
		ss.worker.Terminate()
	}
	return ok
}

func (sm *sessionManager) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.expire(time.Now())
		}
	}
}

// expire terminates sessions idle since before now-ttl. Sessions with an
// open event stream never expire.
func (sm *sessionManager) expire(now time.Time) {
	var expired []*serverSession

	sm.mu.Lock()
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl && !ss.streaming.Load() {
			expired = append(expired, ss)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, ss := range expired {
		ss.worker.Terminate()
	}
}

func (sm *sessionManager) closeAll() {
	sm.stopOnce.Do(func() { close(sm.stop) })

	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()

	for _, ss := range all {
		ss.worker.Terminate()
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

func newServeMux(sessions *sessionManager) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		id := sessions.create()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(createSessionResponse{SessionID: id})
	})

	mux.HandleFunc("POST /sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		ss, ok := sessions.get(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		var m worker.Message
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if m.Kind == "" {
			http.Error(w, "message required", http.StatusBadRequest)
			return
		}

		ss.worker.PostMessage(m)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("GET /sessions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ss, ok := sessions.get(id)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		if !ss.streaming.CompareAndSwap(false, true) {
			http.Error(w, "session already has a subscriber", http.StatusConflict)
			return
		}
		defer ss.streaming.Store(false)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			m, err := ss.worker.Recv(r.Context())
			if err != nil {
				if !errors.Is(err, worker.ErrTerminated) && !errors.Is(err, context.Canceled) {
					sessions.logger.Warn("event stream", "session", id, "error", err)
				}
				return
			}

			data, err := json.Marshal(m)
			if err != nil {
				sessions.logger.Error("encode event", "session", id, "message", m.Kind, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				sessions.logger.Warn("event stream write", "session", id, "message", m.Kind, "error", err)
				return
			}
			flusher.Flush()
			sessions.get(id)
		}
	})

	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if sessions.close(r.PathValue("id")) {
			w.WriteHeader(http.StatusNoContent)
		} else {
			http.Error(w, "session not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	ttl, _ := cmd.Flags().GetDuration("session-ttl")

	_, logger, rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	sessions := newSessionManager(interpreterLoader(rt), ttl, logger)
	defer sessions.closeAll()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: newServeMux(sessions),
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "webawl server listening on %s\n", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
