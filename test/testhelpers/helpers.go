// Package testhelpers provides common utilities for the end-to-end tests of
// the phrase hat server.
//
// It covers the client side of every transport the server offers: plain
// HTTP requests, Server-Sent Events streams and WebSocket connections.
package testhelpers

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is an origin the default configuration accepts.
const TestOrigin = "http://localhost:9000"

// FreePort returns a TCP port that was free a moment ago.
func FreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

// WaitForServer polls baseURL until it answers or the timeout elapses.
func WaitForServer(t *testing.T, baseURL string, timeout time.Duration) {
	t.Helper()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	require.Eventually(t, func() bool {
		resp, err := client.Get(baseURL + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, timeout, 20*time.Millisecond, "server at %s never became ready", baseURL)
}

// PostPhrases records phrases through the HTTP endpoint at url.
func PostPhrases(t *testing.T, url string, phrases ...string) *http.Response {
	t.Helper()

	body, err := json.Marshal(map[string][]string{"phrases": phrases})
	require.NoError(t, err)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// Event is one message read from an event stream.
type Event struct {
	ID   string
	Data string
}

// EventStream is the client end of a Server-Sent Events connection. Comment
// frames are skipped.
type EventStream struct {
	resp   *http.Response
	cancel context.CancelFunc
	events chan Event
}

// OpenEventStream connects to url and starts reading events in the background.
func OpenEventStream(t *testing.T, url string) *EventStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("Failed to open event stream: %v", err)
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)

	es := &EventStream{resp: resp, cancel: cancel, events: make(chan Event, 256)}
	go es.read()
	t.Cleanup(es.Close)
	return es
}

func (es *EventStream) read() {
	defer close(es.events)

	scanner := bufio.NewScanner(es.resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Data != "" {
				es.events <- ev
			}
			ev = Event{}
		case strings.HasPrefix(line, "id: "):
			ev.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// Next returns the next event or fails the test after timeout.
func (es *EventStream) Next(t *testing.T, timeout time.Duration) Event {
	t.Helper()

	select {
	case ev, ok := <-es.events:
		require.True(t, ok, "event stream ended")
		return ev
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

// WaitClosed reports whether the server ended the stream within timeout.
func (es *EventStream) WaitClosed(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-es.events:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// Close disconnects the stream.
func (es *EventStream) Close() {
	es.cancel()
	_ = es.resp.Body.Close()
}

// ConnectWebSocket dials url with an allowed Origin header.
func ConnectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReceiveHat reads one hat snapshot from a WebSocket connection.
func ReceiveHat(t *testing.T, conn *websocket.Conn, timeout time.Duration) []string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	var msg struct {
		Hat []string `json:"hat"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Hat
}

// DecodeHat extracts the hat from an event payload.
func DecodeHat(t *testing.T, data string) []string {
	t.Helper()

	var msg struct {
		Hat []string `json:"hat"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	return msg.Hat
}

// WebSocketURL converts an http(s) base URL into its ws(s) form.
func WebSocketURL(baseURL, path string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + path
}
