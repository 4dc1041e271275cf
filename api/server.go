package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/handlers"
	"example.com/backstage/services/giftcard/messaging"
	"example.com/backstage/services/giftcard/metrics"
	"example.com/backstage/services/giftcard/queries"
	"example.com/backstage/services/giftcard/tracing"
)

// Server is the HTTP server for the API
type Server struct {
	cfg        config.Config
	router     *gin.Engine
	httpServer *http.Server
	dispatcher *handlers.Dispatcher
	queries    *queries.Service
	commands   messaging.CommandSender
	tracer     *tracing.Tracer
}

// NewServer creates a new API server. commands is only used when redeem is asynchronous and may be nil otherwise.
func NewServer(cfg config.Config, dispatcher *handlers.Dispatcher, q *queries.Service, commands messaging.CommandSender, tracer *tracing.Tracer) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &Server{
		cfg:        cfg,
		router:     gin.New(),
		dispatcher: dispatcher,
		queries:    q,
		commands:   commands,
		tracer:     tracer,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware adds middleware to the router
func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())
	if s.cfg.Server.CorsEnabled {
		s.router.Use(CORSMiddleware(s.cfg.Server.CorsOrigins))
	}
	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware())
	if app := s.tracer.App(); app != nil {
		s.router.Use(nrgin.Middleware(app))
	}
}

// setupRoutes defines the API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/api/v1", TenantMiddleware())

	giftCards := v1.Group("/gift-cards")
	{
		giftCards.POST("", s.createGiftCard)
		giftCards.GET("", s.listGiftCards)
		giftCards.POST("/commands", s.receiveCommand)
		giftCards.GET("/card-number/:number", s.getGiftCardByCardNumber)
		giftCards.GET("/:id", s.getGiftCard)
		giftCards.GET("/:id/history", s.getGiftCardHistory)
		giftCards.POST("/:id/activate", s.command(handlers.ActivateGiftCard))
		giftCards.POST("/:id/redeem", s.redeemGiftCard)
		giftCards.POST("/:id/suspend", s.command(handlers.SuspendGiftCard))
		giftCards.POST("/:id/reactivate", s.command(handlers.ReactivateGiftCard))
		giftCards.POST("/:id/cancel", s.command(handlers.CancelGiftCard))
		giftCards.POST("/:id/expire", s.command(handlers.ExpireGiftCard))
		giftCards.POST("/:id/adjust-balance", s.command(handlers.AdjustBalance))
		giftCards.POST("/:id/decrease-balance", s.command(handlers.DecreaseBalance))
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Address,
		Handler: s.router,
	}

	log.Info().Msgf("HTTP server starting on %s", s.cfg.Server.Address)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestContext bounds a handler by the configured server timeout
func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Server.Timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.cfg.Server.Timeout)
}
