package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/meet/internal/adapters/signal"
	"github.com/dkeye/meet/internal/app/orch"
	"github.com/dkeye/meet/internal/config"
	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	sessionName     = "MeetSessions"
	sessionTokenKey = "ct"
	queryTimeout    = 3 * time.Second
	historyPageSize = 50
)

// HistoryLister reads meeting history for one browser.
type HistoryLister interface {
	ListByClient(token string, limit int) ([]domain.Visit, error)
}

type Deps struct {
	Loop    *orch.Loop
	Signal  *signal.Controller
	History HistoryLister
	WebRTC  webrtc.Configuration
}

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a persistent token kept in the session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(sessionTokenKey).(string)
		if token == "" {
			token = genClientToken()
			sess.Set(sessionTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(signal.ClientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{deps: deps}
	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		deps.Signal.HandleSignal(ctx, c)
	})
	api.GET("/health", h.health)
	api.GET("/meetings/:code/status", h.meetingStatus)
	api.GET("/rooms", h.rooms)
	api.GET("/ice-servers", h.iceServers)
	api.GET("/history", h.history)

	return r
}

type handlers struct {
	deps Deps
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) meetingStatus(c *gin.Context) {
	key, err := domain.NormalizeRoomKey(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meeting code required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	var active bool
	if err := h.deps.Loop.Query(ctx, func(o *orch.Orchestrator) {
		active = o.IsRoomActive(string(key))
	}); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(key)).Msg("meeting status")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetingCode": key, "active": active})
}

func (h *handlers) rooms(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	var rooms []core.RoomInfo
	if err := h.deps.Loop.Query(ctx, func(o *orch.Orchestrator) {
		rooms = o.RoomsSnapshot()
	}); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list rooms")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}
	if rooms == nil {
		rooms = []core.RoomInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.deps.WebRTC.ICEServers})
}

func (h *handlers) history(c *gin.Context) {
	visits := []domain.Visit{}
	if h.deps.History != nil {
		list, err := h.deps.History.ListByClient(c.GetString(signal.ClientTokenKey), historyPageSize)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("list history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
			return
		}
		visits = append(visits, list...)
	}
	c.JSON(http.StatusOK, gin.H{"history": visits})
}
