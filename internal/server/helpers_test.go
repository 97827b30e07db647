package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testOrigin   = "http://localhost:8080"
	readTimeout  = 5 * time.Second
	quietTimeout = 200 * time.Millisecond
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTestRelay runs a RelayServer behind an httptest server. mutate may
// adjust the default configuration first.
func startTestRelay(t *testing.T, mutate func(*Config)) (*RelayServer, *httptest.Server) {
	t.Helper()

	cfg := NewConfig()
	if mutate != nil {
		mutate(cfg)
	}

	relayServer, err := NewRelayServer(cfg, quietLogger())
	require.NoError(t, err)
	relayServer.Start()

	testServer := httptest.NewServer(relayServer.SetupRoutes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = relayServer.Shutdown(ctx)
		testServer.Close()
	})
	return relayServer, testServer
}

func buildWebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// testClient is one WebSocket connection speaking the relay protocol.
type testClient struct {
	t         *testing.T
	conn      *websocket.Conn
	sessionID string
}

func dialWithOrigin(serverURL, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(buildWebSocketURL(serverURL), headers)
}

// connectClient dials the relay and consumes the connected frame.
func connectClient(t *testing.T, serverURL string) *testClient {
	t.Helper()

	conn, resp, err := dialWithOrigin(serverURL, testOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)

	c := &testClient{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })

	var connected ConnectedPayload
	c.expect(EventConnected, &connected)
	require.NotEmpty(t, connected.SessionID)
	c.sessionID = connected.SessionID
	return c
}

func (c *testClient) emit(event string, payload any) {
	c.t.Helper()
	frame, err := encodeEvent(event, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

func (c *testClient) emitRaw(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (c *testClient) next() Envelope {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, raw, err := c.conn.ReadMessage()
	require.NoError(c.t, err)

	var env Envelope
	require.NoError(c.t, json.Unmarshal(raw, &env))
	return env
}

// expect reads the next frame, asserts its event name and decodes its data
// into out when out is not nil.
func (c *testClient) expect(event string, out any) {
	c.t.Helper()
	env := c.next()
	require.Equal(c.t, event, env.Event, "unexpected frame: %s", string(env.Data))
	if out != nil {
		require.NoError(c.t, json.Unmarshal(env.Data, out))
	}
}

func (c *testClient) expectError() string {
	c.t.Helper()
	var msg string
	c.expect(EventError, &msg)
	return msg
}

// expectNothing asserts that no frame arrives for a short while. The
// connection cannot be read after this returns.
func (c *testClient) expectNothing() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(quietTimeout)))
	_, raw, err := c.conn.ReadMessage()
	require.Error(c.t, err, "expected no frame, got %s", string(raw))
}

func (c *testClient) createRoom() string {
	c.t.Helper()
	c.emit(EventCreateRoom, nil)
	var created RoomCreatedPayload
	c.expect(EventRoomCreated, &created)
	require.Equal(c.t, created.RoomCode, created.RoomID)
	return created.RoomCode
}

func (c *testClient) joinRoom(code string) {
	c.t.Helper()
	c.emit(EventJoinRoom, JoinRoomRequest{RoomID: code})
	var joined RoomJoinedPayload
	c.expect(EventRoomJoined, &joined)
}

func (c *testClient) sendText(code, text string) {
	c.t.Helper()
	c.emit(EventSendMessage, SendMessageRequest{
		RoomID:  code,
		Message: TextMessage{Sender: c.sessionID, Text: text, Time: Timestamp(time.Now().UnixMilli())},
	})
}

func (c *testClient) close() {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

// eventually polls cond until it holds or the timeout passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, readTimeout, 10*time.Millisecond)
}

// newDetachedSession builds a session with no connection so registry and
// delivery behavior can be checked without a socket.
func newDetachedSession(t *testing.T, manager *SessionManager, id string) *Session {
	t.Helper()
	return newSession(id, nil, manager, "test")
}

// drain returns every frame queued on a detached session.
func drain(s *Session) []Envelope {
	var frames []Envelope
	for {
		select {
		case raw, ok := <-s.send:
			if !ok {
				return frames
			}
			var env Envelope
			if err := json.Unmarshal(raw, &env); err == nil {
				frames = append(frames, env)
			}
		default:
			return frames
		}
	}
}
