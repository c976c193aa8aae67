// Package api exposes a small read-only JSON endpoint set for monitoring
// the running bot. No UI is served.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gridscalper/bot"
	"gridscalper/logger"
	"gridscalper/store"
)

// StatusProvider yields the bot's latest cycle snapshot.
type StatusProvider interface {
	Status() bot.Status
}

// Server HTTP API server
type Server struct {
	router     *gin.Engine
	provider   StatusProvider
	store      *store.Store
	httpServer *http.Server
	port       int
}

// NewServer creates the API server.
func NewServer(provider StatusProvider, st *store.Store, port int) *Server {
	// Release mode to reduce log output
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	s := &Server{
		router:   router,
		provider: provider,
		store:    st,
		port:     port,
	}
	s.setupRoutes()

	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	apiGroup := s.router.Group("/api")
	{
		apiGroup.GET("/health", s.handleHealth)
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.GET("/trades", s.handleTrades)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.Status())
}

func (s *Server) handleTrades(c *gin.Context) {
	status := s.provider.Status()
	trades, err := s.store.RecentTrades(status.Symbol, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trades == nil {
		trades = []store.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// Start runs the server. Blocks until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("🌐 API server starting at http://localhost%s", addr)
	logger.Infof("  • GET /api/health - Health check")
	logger.Infof("  • GET /api/status - Bot cycle snapshot")
	logger.Infof("  • GET /api/trades - Recent trade history")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
