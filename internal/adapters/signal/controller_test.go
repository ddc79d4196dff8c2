package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/meet/internal/app"
	"github.com/dkeye/meet/internal/app/orch"
	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireEvent struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

func (e wireEvent) str(t *testing.T, i int) string {
	t.Helper()
	require.Greater(t, len(e.Args), i)
	var s string
	require.NoError(t, json.Unmarshal(e.Args[i], &s))
	return s
}

func newGateway(t *testing.T, opts Options) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	o := &orch.Orchestrator{Rooms: core.NewRegistry(0, nil), Sessions: app.NewRegistry()}
	loop := orch.NewLoop(o, 64)
	if opts.ReadLimit == 0 {
		opts.ReadLimit = 1 << 16
	}
	ctl := NewController(loop, opts)
	o.Out = ctl

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set(ClientTokenKey, c.GetHeader("X-Client"))
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
	id string
}

func dial(t *testing.T, url, token string) *client {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Client": {token}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	c := &client{t: t, ws: ws}
	ev := c.expect(core.EventConnected)
	c.id = ev.str(t, 0)
	require.NotEmpty(t, c.id)
	return c
}

func (c *client) send(event string, args ...any) {
	c.t.Helper()
	if args == nil {
		args = []any{}
	}
	require.NoError(c.t, c.ws.WriteJSON(map[string]any{"event": event, "args": args}))
}

// expect reads until an event with the given name arrives.
func (c *client) expect(name string) wireEvent {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev wireEvent
		require.NoError(c.t, c.ws.ReadJSON(&ev), "waiting for %s", name)
		if ev.Event == name {
			return ev
		}
	}
}

func TestGatewayJoinChatAndSignal(t *testing.T) {
	url := newGateway(t, Options{})
	a := dial(t, url, "ta")
	b := dial(t, url, "tb")

	a.send(InJoinCall, "room", "Alice")
	a.expect(core.EventUserJoined)
	a.expect(core.EventMeetingStartTime)

	b.send(InJoinCall, "room", "Bob")
	joined := a.expect(core.EventUserJoined)
	assert.Equal(t, b.id, joined.str(t, 0))
	var members []string
	require.NoError(t, json.Unmarshal(joined.Args[1], &members))
	assert.Equal(t, []string{a.id, b.id}, members)
	var names map[string]string
	require.NoError(t, json.Unmarshal(joined.Args[2], &names))
	assert.Equal(t, map[string]string{a.id: "Alice", b.id: "Bob"}, names)

	b.send(InChatMessage, "hi", "Bob")
	msg := a.expect(core.EventChatMessage)
	assert.Equal(t, "hi", msg.str(t, 0))
	assert.Equal(t, "Bob", msg.str(t, 1))
	assert.Equal(t, b.id, msg.str(t, 2))

	a.send(InSignal, b.id, json.RawMessage(`{"sdp":"x"}`))
	sig := b.expect(core.EventSignal)
	assert.Equal(t, a.id, sig.str(t, 0))
	assert.JSONEq(t, `{"sdp":"x"}`, string(sig.Args[1]))
}

func TestGatewayDisconnectNotifiesRoom(t *testing.T) {
	url := newGateway(t, Options{})
	a := dial(t, url, "ta")
	b := dial(t, url, "tb")
	a.send(InJoinCall, "room")
	a.expect(core.EventMeetingStartTime)
	b.send(InJoinCall, "room")
	b.expect(core.EventMeetingStartTime)

	require.NoError(t, b.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = b.ws.Close()

	left := a.expect(core.EventUserLeft)
	assert.Equal(t, b.id, left.str(t, 0))
}

func TestGatewayMediaStateDefaults(t *testing.T) {
	url := newGateway(t, Options{})
	a := dial(t, url, "ta")
	a.send(InJoinCall, "room")
	a.expect(core.EventMeetingStartTime)

	a.send(InMediaState, map[string]any{"audioEnabled": false, "videoEnabled": "yes"})
	ev := a.expect(core.EventMediaState)
	assert.Equal(t, a.id, ev.str(t, 0))
	var state domain.MediaState
	require.NoError(t, json.Unmarshal(ev.Args[1], &state))
	assert.Equal(t, domain.MediaState{AudioEnabled: false, VideoEnabled: true}, state)
}

func TestGatewayIgnoresUnknownEvents(t *testing.T) {
	url := newGateway(t, Options{})
	a := dial(t, url, "ta")

	require.NoError(t, a.ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	a.send("bogus", 1, 2)
	a.send(InPing)

	require.NoError(t, a.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, a.ws.ReadJSON(&ev))
	assert.Equal(t, core.EventPong, ev.Event)
}

func TestGatewayConnectRateLimit(t *testing.T) {
	url := newGateway(t, Options{Limiter: NewConnectLimiter(1, time.Minute)})
	dial(t, url, "same")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Client": {"same"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	dial(t, url, "other")
}

func TestGatewayOriginAllowList(t *testing.T) {
	url := newGateway(t, Options{AllowedOrigins: []string{"https://meet.example.com"}})

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://meet.example.com"}})
	require.NoError(t, err)
	_ = ws.Close()
}

// wsPair returns the server side of a live websocket.
func wsPair(t *testing.T) *websocket.Conn {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		c, err := up.Upgrade(w, r, nil)
		if err == nil {
			accepted <- c
		}
	}))
	t.Cleanup(srv.Close)

	cl, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return <-accepted
}

func TestDeliverBackpressurePolicy(t *testing.T) {
	t.Run("drop", func(t *testing.T) {
		ctl := NewController(nil, Options{Policy: app.SimplePolicy{Action: app.DropFrame}})
		c := newWSConn("a", wsPair(t), 1)
		ctl.conns["a"] = c

		ctl.Deliver("a", core.Pong())
		ctl.Deliver("a", core.Pong())

		assert.Len(t, c.send, 1)
		assert.ErrorIs(t, c.TrySend(nil), ErrBackpressure)
	})
	t.Run("kick", func(t *testing.T) {
		ctl := NewController(nil, Options{Policy: app.SimplePolicy{Action: app.KickMember}})
		c := newWSConn("a", wsPair(t), 1)
		ctl.conns["a"] = c

		ctl.Deliver("a", core.Pong())
		ctl.Deliver("a", core.Pong())

		assert.ErrorIs(t, c.TrySend(nil), ErrConnClosed)
	})
}

func TestDeliverToUnknownConnectionIsNoop(t *testing.T) {
	ctl := NewController(nil, Options{})
	ctl.Deliver("ghost", core.Pong())
	assert.Zero(t, ctl.Connections())
}
