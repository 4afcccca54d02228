package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/chemora/batchup/api/controllers"
	"github.com/chemora/batchup/api/middlewares"
	"github.com/chemora/batchup/api/notifyhub"
	"github.com/chemora/batchup/tool"
)

// Server is the localhost admin API the console UI talks to.
type Server struct {
	port   int
	engine *gin.Engine
	server *http.Server
	hub    *notifyhub.Hub
	mu     sync.RWMutex
}

// NewServer creates the admin API server. hub receives batch progress frames.
func NewServer(port int, hub *notifyhub.Hub) *Server {
	return &Server{
		port: port,
		hub:  hub,
	}
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.Default()

	// the console runs on the same machine; nothing here is safe to expose
	admin := engine.Group("/api/admin/v1", middlewares.OnlyAllowLocal)
	{
		admin.POST("/sessions", controllers.CreateSession)                               // Open a new upload session
		admin.GET("/sessions/:sessionId", controllers.GetSession)                        // Session snapshot + uploaded URLs
		admin.POST("/sessions/:sessionId/files", controllers.SubmitFiles)                // Validate and dispatch a batch
		admin.POST("/sessions/:sessionId/retry", controllers.RetryFailed)                // Re-send exactly the failed items
		admin.POST("/sessions/:sessionId/cancel", controllers.CancelSession)             // Cooperative cancellation
		admin.DELETE("/sessions/:sessionId/items/:itemId", controllers.RemoveItem)       // Remove one item, release its preview
		admin.DELETE("/sessions/:sessionId", controllers.CloseSession)                   // Clear all / teardown
		admin.GET("/sessions/:sessionId/preview/:previewId", controllers.GetPreview)     // Serve local preview blob
		admin.GET("/create-qr-code", controllers.GenerateQRCode)                         // QR PNG for an asset URL
		admin.GET("/status", controllers.Status)                                         // Liveness for the console
		admin.GET("/backend-status", controllers.BackendStatus)                          // Upload endpoint reachability
		if s.hub != nil {
			admin.GET("/notify-ws", HandleNotifyWS(s.hub))
		}
	}

	return engine
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	engine := s.setupRoutes()

	s.mu.Lock()
	s.engine = engine
	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: engine,
	}
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting admin API server on http://127.0.0.1:%d", s.port)
	return s.server.ListenAndServe()
}
