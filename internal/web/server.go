package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/petdoor/watchbox/internal/backend"
	"github.com/petdoor/watchbox/internal/config"
	"github.com/petdoor/watchbox/internal/feed"
	"github.com/petdoor/watchbox/internal/monitor"
	"github.com/petdoor/watchbox/internal/natsserver"
	"github.com/petdoor/watchbox/internal/system"
)

//go:embed templates/*
var templatesFS embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The node serves a local dashboard; cross-origin access is open
	// just like the REST surface below
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ImageSource streams detection snapshots from the backend
type ImageSource interface {
	FetchImage(ctx context.Context, category backend.Category, filename string) (io.ReadCloser, string, error)
}

// Server is the dashboard web server
type Server struct {
	config  *config.Manager
	ctrl    *monitor.Controller
	images  ImageSource
	hub     *feed.Hub
	nats    *natsserver.EmbeddedNATS
	port    int
	router  *gin.Engine
	httpSrv *http.Server
}

// NewServer creates the dashboard server
func NewServer(cfg *config.Manager, ctrl *monitor.Controller, images ImageSource, hub *feed.Hub, nats *natsserver.EmbeddedNATS, port int) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config: cfg,
		ctrl:   ctrl,
		images: images,
		hub:    hub,
		nats:   nats,
		port:   port,
		router: gin.New(),
	}

	s.setupRoutes()
	return s
}

// Start starts the web server
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("🌐 Dashboard starting on http://0.0.0.0:%d", s.port)
	return s.httpSrv.ListenAndServe()
}

// Stop stops the web server
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the gin engine, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(gin.Logger())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	s.router.Use(cors.New(corsCfg))

	tmpl := template.Must(template.ParseFS(templatesFS, "templates/*.html"))
	s.router.SetHTMLTemplate(tmpl)

	// Pages
	s.router.GET("/", s.handleDashboard)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Live snapshot feed
	s.router.GET("/ws", s.handleWebSocket)

	// Detection snapshots proxied from the backend
	s.router.GET("/images/:category/:filename", s.handleImage)

	// API endpoints
	api := s.router.Group("/api")
	{
		api.GET("/view", s.handleAPIView)
		api.GET("/status", s.handleAPIStatus)
		api.GET("/resources", s.handleAPIResources)

		api.POST("/filter", s.handleAPISetFilter)
		api.POST("/select", s.handleAPISelect)
		api.DELETE("/select", s.handleAPIClearSelection)

		api.POST("/toggle", s.handleAPIToggle)
		api.DELETE("/detections/:category/:id", s.handleAPIDelete)

		api.GET("/backend/config", s.handleAPIGetBackendConfig)
		api.PUT("/backend/config", s.handleAPIUpdateBackendConfig)
	}
}

func (s *Server) handleDashboard(c *gin.Context) {
	cfg := s.config.Get()
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"nodeName":   cfg.NodeName,
		"backendUrl": cfg.BackendURL,
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	client := feed.NewClient(s.hub, conn, c.Request.RemoteAddr)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) handleImage(c *gin.Context) {
	category := backend.Category(c.Param("category"))
	filename := c.Param("filename")

	body, contentType, err := s.images.FetchImage(c.Request.Context(), category, filename)
	if err != nil {
		if backend.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer body.Close()

	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	io.Copy(c.Writer, body)
}

// API handlers

func (s *Server) handleAPIView(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleAPIStatus(c *gin.Context) {
	cfg := s.config.Get()

	busInfo := gin.H{"enabled": false}
	if s.nats != nil {
		busInfo = gin.H{
			"enabled": true,
			"address": s.nats.Address(),
			"stats":   s.nats.GetStats(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"nodeName":     cfg.NodeName,
		"backendUrl":   cfg.BackendURL,
		"pollInterval": cfg.PollIntervalSeconds,
		"dashboards":   s.hub.ClientCount(),
		"bus":          busInfo,
	})
}

func (s *Server) handleAPIResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": system.Collect()})
}

func (s *Server) handleAPISetFilter(c *gin.Context) {
	var req struct {
		Category string `json:"category" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.ctrl.SetFilter(backend.Category(req.Category)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPISelect(c *gin.Context) {
	var req struct {
		Category string `json:"category" binding:"required"`
		ID       string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.ctrl.Select(backend.Category(req.Category), req.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPIClearSelection(c *gin.Context) {
	s.ctrl.ClearSelection()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPIToggle(c *gin.Context) {
	result, err := s.ctrl.Toggle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"active":  result.Active,
		"message": result.Message,
	})
}

func (s *Server) handleAPIDelete(c *gin.Context) {
	category := backend.Category(c.Param("category"))
	id := c.Param("id")

	if !category.ItemCategory() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid category %q", category)})
		return
	}

	if err := s.ctrl.Delete(c.Request.Context(), category, id); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPIGetBackendConfig(c *gin.Context) {
	cfg, err := s.ctrl.BackendConfig(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleAPIUpdateBackendConfig(c *gin.Context) {
	var patch backend.Config
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.ctrl.UpdateBackendConfig(c.Request.Context(), patch); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
