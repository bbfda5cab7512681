package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:9000"

// newTestServer builds an isolated Server. mutate may adjust the defaults.
func newTestServer(t *testing.T, clock clockwork.Clock, mutate func(*Config)) *Server {
	t.Helper()

	cfg := NewConfig()
	if mutate != nil {
		mutate(cfg)
	}
	s := NewServer(cfg, clock)
	t.Cleanup(func() { _ = s.Shutdown(time.Second) })
	return s
}

// startHTTP serves s on a real listener for streaming tests.
func startHTTP(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postPhrases(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// sseStream reads frames (blocks of lines ended by a blank line) from an
// event-stream response in the background.
type sseStream struct {
	resp   *http.Response
	cancel context.CancelFunc
	frames chan string
}

func openStream(t *testing.T, url string) *sseStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stream := &sseStream{resp: resp, cancel: cancel, frames: make(chan string, 64)}
	go stream.readFrames()
	t.Cleanup(stream.Close)
	return stream
}

func (s *sseStream) readFrames() {
	defer close(s.frames)

	reader := bufio.NewReader(s.resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			s.frames <- strings.Join(lines, "\n")
			lines = nil
			continue
		}
		lines = append(lines, line)
	}
}

// next returns the next frame, failing the test if none arrives within d.
func (s *sseStream) next(t *testing.T, d time.Duration) string {
	t.Helper()
	select {
	case frame, ok := <-s.frames:
		require.True(t, ok, "stream ended unexpectedly")
		return frame
	case <-time.After(d):
		t.Fatal("timed out waiting for stream frame")
		return ""
	}
}

// expectNone asserts no frame arrives within d.
func (s *sseStream) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case frame, ok := <-s.frames:
		if ok {
			t.Fatalf("unexpected frame: %q", frame)
		}
	case <-time.After(d):
	}
}

// expectEnd waits for the server to end the stream.
func (s *sseStream) expectEnd(t *testing.T, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case _, ok := <-s.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not end")
		}
	}
}

func (s *sseStream) Close() {
	s.cancel()
	_ = s.resp.Body.Close()
}

// eventData extracts the data line of an event frame.
func eventData(t *testing.T, frame string) (id, data string) {
	t.Helper()
	for _, line := range strings.Split(frame, "\n") {
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NotEmpty(t, data, "frame has no data: %q", frame)
	return id, data
}
