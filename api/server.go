// Package api exposes the engine, keeper and gateway over HTTP for
// machine callers. Mutating routes are gated by a bearer token; the
// event feed is mirrored onto a websocket stream.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raykavin/stopkeep/audit"
	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/engine"
	"github.com/raykavin/stopkeep/event"
	"github.com/raykavin/stopkeep/gateway"
	"github.com/raykavin/stopkeep/keeper"
)

const defaultAddr = ":8080"

// Server is the HTTP automation API.
type Server struct {
	engine  *engine.Engine
	keeper  *keeper.Keeper
	gateway *gateway.Gateway
	journal *audit.Journal
	hub     *Hub
	log     core.Logger
	clock   core.Clock

	addr      string
	token     string
	router    *gin.Engine
	srv       *http.Server
	startedAt time.Time
}

// Option configures optional server parameters.
type Option func(*Server)

// WithAddr sets the listen address, default ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithToken sets the bearer token required on mutating routes. An empty
// token leaves them open, which is only sensible for local use.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithClock overrides the clock used for uptime reporting.
func WithClock(clock core.Clock) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithJournal serves recent audit entries on /v1/events.
func WithJournal(journal *audit.Journal) Option {
	return func(s *Server) {
		s.journal = journal
	}
}

// WithEventFeed mirrors the feed onto the websocket stream. Must be
// applied before the feed is started.
func WithEventFeed(events *event.Feed) Option {
	return func(s *Server) {
		events.SubscribeAll(s.hub.OnEvent)
	}
}

// New builds the server and its router.
func New(eng *engine.Engine, kpr *keeper.Keeper, gw *gateway.Gateway, log core.Logger, options ...Option) *Server {
	log = log.WithField("component", "api")

	server := &Server{
		engine:  eng,
		keeper:  kpr,
		gateway: gw,
		hub:     NewHub(log),
		log:     log,
		clock:   core.NewClock(),
		addr:    defaultAddr,
	}

	for _, option := range options {
		option(server)
	}

	server.startedAt = server.clock.Now()
	server.router = server.buildRouter()
	return server
}

// Hub returns the websocket hub, mainly for wiring and tests.
func (s *Server) Hub() *Hub { return s.hub }

// Router returns the HTTP handler, ready to serve.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1 := router.Group("/v1")

	orders := v1.Group("/orders")
	orders.POST("", s.requireAuth(), s.handleConfigure)
	orders.GET("", s.handleList)
	orders.GET("/:id", s.handleGet)
	orders.DELETE("/:id", s.requireAuth(), s.handleDelete)
	orders.POST("/:id/trigger", s.handleTrigger)
	orders.POST("/:id/execute", s.requireAuth(), s.handleExecute)

	kpr := v1.Group("/keeper")
	kpr.POST("/check", s.handleCheckDue)
	kpr.POST("/cycle", s.requireAuth(), s.handleRunCycle)

	admin := v1.Group("/admin", s.requireAuth())
	admin.POST("/pause", s.handlePause)
	admin.POST("/unpause", s.handleUnpause)

	v1.GET("/status", s.handleStatus)
	v1.GET("/events", s.handleEvents)
	v1.GET("/ws", func(c *gin.Context) {
		s.hub.Handle(c.Writer, c.Request)
	})

	return router
}

// requireAuth rejects requests whose Authorization header does not carry
// the configured bearer token. The comparison is constant time.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Error: "missing bearer token", Class: "auth"})
			return
		}

		provided := strings.TrimSpace(header[7:])
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Error: "invalid bearer token", Class: "auth"})
			return
		}

		c.Next()
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}

	go func() {
		s.log.Infof("API listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("API server stopped")
		}
	}()
}

// Shutdown drains websocket clients and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
