package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"supertrend-core/internal/botconfig"
	"supertrend-core/internal/events"
	"supertrend-core/internal/ledger"
	"supertrend-core/internal/monitor"
	"supertrend-core/internal/supervisor"
	"supertrend-core/pkg/db"
)

// Engine is the lifecycle surface the API drives.
type Engine interface {
	Start(ctx context.Context, cfg botconfig.Config) (supervisor.BotStatus, error)
	Stop() error
	Status() supervisor.BotStatus
}

// Server wires HTTP endpoints around the engine, its config store and the ledger.
type Server struct {
	Router    *gin.Engine
	Engine    Engine
	Config    *botconfig.Store
	DB        *db.Database
	Ledger    *ledger.Ledger
	Bus       *events.Bus
	Metrics   *monitor.Metrics
	JWTSecret string

	now func() time.Time
}

func NewServer(engine Engine, store *botconfig.Store, database *db.Database, l *ledger.Ledger, bus *events.Bus, metrics *monitor.Metrics, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware(newIPLimiter(20, 50, 5*time.Minute)))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Engine:    engine,
		Config:    store,
		DB:        database,
		Ledger:    l,
		Bus:       bus,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		now:       time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	api := s.Router.Group("/api", TimeoutMiddleware(30*time.Second))
	bot := api.Group("/bot")
	{
		bot.GET("/status", s.getStatus)
		bot.GET("/config", s.getConfig)
		bot.GET("/performance", s.getPerformance)
		bot.GET("/trades", s.getTrades)
		bot.GET("/logs", s.getLogs)

		// Mutating routes require a token once a secret is configured.
		protected := bot.Group("")
		if s.JWTSecret != "" {
			protected.Use(AuthMiddleware(s.JWTSecret))
		}
		{
			protected.POST("/start", s.startBot)
			protected.POST("/stop", s.stopBot)
			protected.POST("/config", s.updateConfig)
		}
	}
}

// health answers 503 when the database cannot be reached.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	engine := s.Engine.Status().State
	if err := s.DB.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "engine": engine, "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "engine": engine, "database": "ok"})
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler { return s.Router }
