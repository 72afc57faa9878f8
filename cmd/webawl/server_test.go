package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/webawl/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoEngine prints "=> " and the evaluated source as two chunks.
type echoEngine struct {
	mu    sync.Mutex
	print func(string)
}

func (e *echoEngine) Version() string { return "v0.2.0" }

func (e *echoEngine) RegisterPrintFn(ctx context.Context, fn func(string)) error {
	e.mu.Lock()
	e.print = fn
	e.mu.Unlock()
	return nil
}

func (e *echoEngine) Eval(ctx context.Context, source string) error {
	e.mu.Lock()
	print := e.print
	e.mu.Unlock()
	print("=> ")
	print(source + "\n")
	return nil
}

func (e *echoEngine) Close(ctx context.Context) error { return nil }

func setupTestServer(t *testing.T) (*httptest.Server, *sessionManager) {
	t.Helper()

	load := func(context.Context) (worker.Engine, error) {
		return &echoEngine{}, nil
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := newSessionManager(load, 15*time.Minute, logger)
	srv := httptest.NewServer(newServeMux(sessions))

	t.Cleanup(func() {
		sessions.closeAll()
		srv.Close()
	})
	return srv, sessions
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.SessionID, 32)
	return created.SessionID
}

func postMessage(t *testing.T, srv *httptest.Server, id, body string) int {
	t.Helper()
	resp, err := http.Post(srv.URL+"/sessions/"+id+"/messages", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

// readEvent returns the payload of the next server-sent event.
func readEvent(t *testing.T, r *bufio.Reader) worker.Message {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var m worker.Message
			require.NoError(t, json.Unmarshal([]byte(data), &m))
			return m
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestSessionEventStream(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createSession(t, srv)

	// posted before anyone listens: the worker queues the replies
	assert.Equal(t, http.StatusAccepted, postMessage(t, srv, id, `{"message":"version"}`))

	resp, err := http.Get(srv.URL + "/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	assert.Equal(t, http.StatusAccepted, postMessage(t, srv, id, `{"message":"eval","value":"(+ 1 2)"}`))

	events := bufio.NewReader(resp.Body)
	assert.Equal(t, worker.Message{Kind: worker.KindVersion, Value: "v0.2.0"}, readEvent(t, events))
	assert.Equal(t, worker.Message{Kind: worker.KindPrint, Value: "=> "}, readEvent(t, events))
	assert.Equal(t, worker.Message{Kind: worker.KindPrint, Value: "(+ 1 2)\n"}, readEvent(t, events))
}

func TestSessionSingleSubscriber(t *testing.T) {
	srv, sessions := setupTestServer(t)
	id := createSession(t, srv)

	first, err := http.Get(srv.URL + "/sessions/" + id + "/events")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(srv.URL + "/sessions/" + id + "/events")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	first.Body.Close()

	ss, ok := sessions.get(id)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return !ss.streaming.Load() }, 5*time.Second, 10*time.Millisecond)
}

func TestSessionMessageErrors(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createSession(t, srv)

	assert.Equal(t, http.StatusBadRequest, postMessage(t, srv, id, `not json`))
	assert.Equal(t, http.StatusBadRequest, postMessage(t, srv, id, `{"value":"x"}`))
	assert.Equal(t, http.StatusNotFound, postMessage(t, srv, "nope", `{"message":"version"}`))

	// unknown kinds are accepted and dropped by the worker
	assert.Equal(t, http.StatusAccepted, postMessage(t, srv, id, `{"message":"bogus"}`))
}

func TestDeleteSession(t *testing.T) {
	srv, sessions := setupTestServer(t)
	id := createSession(t, srv)

	ss, ok := sessions.get(id)
	require.True(t, ok)

	del := func() int {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, http.StatusNotFound, del())

	select {
	case <-ss.worker.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker not terminated")
	}

	resp, err := http.Get(srv.URL + "/sessions/" + id + "/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionExpiry(t *testing.T) {
	srv, sessions := setupTestServer(t)
	idle := createSession(t, srv)
	fresh := createSession(t, srv)

	sessions.mu.Lock()
	sessions.sessions[idle].lastUsed = time.Now().Add(-time.Hour)
	sessions.mu.Unlock()

	sessions.expire(time.Now())

	_, ok := sessions.get(idle)
	assert.False(t, ok)
	_, ok = sessions.get(fresh)
	assert.True(t, ok)
}

func TestSessionManagerConcurrentAccess(t *testing.T) {
	_, sessions := setupTestServer(t)
	id := sessions.create()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, ok := sessions.get(id)
				assert.True(t, ok)
				sessions.expire(time.Now())
			}
		}()
	}
	wg.Wait()

	_, ok := sessions.get(id)
	assert.True(t, ok, "a session in use never expires")
}
