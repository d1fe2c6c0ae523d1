// Package httpapi exposes the dashboard-facing REST and websocket surface.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/hub"
	"github.com/cesar59xxx/eeeeeeee/internal/manager"
)

// Server is the HTTP control plane: session CRUD, message send, history
// reads and the websocket upgrade endpoint.
type Server struct {
	mgr    *manager.Manager
	hub    *hub.Hub
	logger *zap.Logger
	http   *http.Server
}

// New builds the server and its routes.
func New(addr string, mgr *manager.Manager, h *hub.Hub, logger *zap.Logger, allowedOrigins []string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		mgr:    mgr,
		hub:    h,
		logger: logger,
	}

	engine.Use(corsMiddleware(allowedOrigins))

	engine.GET("/health", s.health)
	engine.GET("/ws", func(c *gin.Context) { h.ServeWS(c.Writer, c.Request) })

	api := engine.Group("/api", tenantMiddleware())
	{
		api.POST("/sessions", s.createSession)
		api.GET("/sessions", s.listSessions)
		api.GET("/sessions/:id", s.getSession)
		api.POST("/sessions/:id/start", s.startSession)
		api.POST("/sessions/:id/stop", s.stopSession)
		api.DELETE("/sessions/:id", s.deleteSession)
		api.GET("/sessions/:id/qr", s.sessionQR)
		api.POST("/sessions/:id/messages", s.sendMessage)
		api.GET("/sessions/:id/contacts", s.listContacts)
		api.GET("/sessions/:id/contacts/:contactId/messages", s.listMessages)
	}

	s.http = &http.Server{Addr: addr, Handler: engine}
	return s
}

// Start serves until Shutdown. Blocks; run in a goroutine.
func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// tenantMiddleware requires the X-Tenant-ID header on every data route. All
// reads and writes below /api are scoped by it.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader("X-Tenant-ID"))
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-Tenant-ID header"})
			return
		}
		c.Set("tenant", tenant)
		c.Next()
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := "*"
		if len(allowedOrigins) > 0 {
			allowed = ""
			for _, o := range allowedOrigins {
				if origin == o {
					allowed = o
					break
				}
			}
		}
		if allowed != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowed)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Tenant-ID")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func tenantOf(c *gin.Context) string {
	return c.GetString("tenant")
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
