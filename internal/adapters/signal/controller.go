// Package signal is the websocket gateway between browsers and the orchestrator loop.
package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/dkeye/meet/internal/app"
	"github.com/dkeye/meet/internal/app/orch"
	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second

	// ClientTokenKey is the gin context key holding the browser's persistent token.
	ClientTokenKey = "client_token"
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	SendBuffer     int
	AllowedOrigins []string
	Policy         app.Policy
	Limiter        *ConnectLimiter
}

// Controller accepts websocket connections and implements core.Sink for the loop.
type Controller struct {
	loop     *orch.Loop
	opts     Options
	upgrader websocket.Upgrader

	// touched only on the loop goroutine
	conns map[domain.ConnID]*wsConn
}

func NewController(loop *orch.Loop, opts Options) *Controller {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.Policy == nil {
		opts.Policy = app.SimplePolicy{}
	}
	ctl := &Controller{
		loop:  loop,
		opts:  opts,
		conns: make(map[domain.ConnID]*wsConn),
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *Controller) checkOrigin(r *http.Request) bool {
	if len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(ctl.opts.AllowedOrigins, origin)
}

func (ctl *Controller) pongWait() time.Duration {
	return ctl.opts.PingPeriod * 10 / 9
}

// Deliver encodes ev and queues it on the target connection. Runs on the loop.
func (ctl *Controller) Deliver(to domain.ConnID, ev core.Event) {
	c, ok := ctl.conns[to]
	if !ok {
		log.Debug().Str("module", "signal").Str("conn", string(to)).Str("event", ev.Name).Msg("deliver to unknown connection")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", ev.Name).Msg("encode event")
		return
	}
	switch err := c.TrySend(data); err {
	case nil:
	case ErrBackpressure:
		action := ctl.opts.Policy.OnBackPressure(to, ev.Name)
		log.Warn().Str("module", "signal").Str("conn", string(to)).Str("event", ev.Name).Stringer("action", action).Msg("send queue full")
		if action == app.KickMember {
			c.Close()
		}
	default:
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(to)).Str("event", ev.Name).Msg("deliver dropped")
	}
}

// Connections reports how many websockets are registered. Runs on the loop.
func (ctl *Controller) Connections() int { return len(ctl.conns) }

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	client := c.GetString(ClientTokenKey)
	if !ctl.opts.Limiter.Allow(client) {
		log.Warn().Str("module", "signal").Str("client", client).Msg("connect rate limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connections"})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("client", client).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	id := domain.NewConnID()
	conn := newWSConn(id, ws, ctl.opts.SendBuffer)
	registered := ctl.loop.Submit(func(o *orch.Orchestrator) {
		ctl.conns[id] = conn
		o.Connect(id, client)
		ctl.Deliver(id, core.Connected(id))
	})
	if !registered {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("loop stopped, rejecting connection")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", client).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}

func (ctl *Controller) unregister(c *wsConn) {
	ctl.loop.Submit(func(o *orch.Orchestrator) {
		delete(ctl.conns, c.id)
		online := o.Disconnect(c.id)
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Dur("online", online).Msg("connection closed")
	})
}
