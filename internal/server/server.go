package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	v1 "pilotage/internal/api/v1"
	"pilotage/internal/config"
	"pilotage/internal/importer"
	"pilotage/internal/metrics"
)

// Deps 服务器依赖
type Deps struct {
	Coordinator *importer.Coordinator
	Journal     v1.ImportLister
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Paths       config.Paths
}

// Server HTTP服务器
type Server struct {
	router *gin.Engine
	http   *http.Server
	api    *v1.Handler
	logger *slog.Logger
}

// NewServer 创建服务器
func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := v1.NewHandler(deps.Coordinator, v1.Options{
		SourceDir:      deps.Paths.SourceDir,
		UploadDir:      deps.Paths.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		Journal:        deps.Journal,
		Logger:         logger,
	})

	s := &Server{
		router: gin.Default(),
		api:    api,
		logger: logger,
	}
	s.setupRoutes(deps.Metrics, newLoadLimiter(cfg.Server.LoadRateLimit, cfg.Server.LoadBurst, logger))

	s.http = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(m *metrics.Metrics, limiter *loadLimiter) {
	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	api := s.router.Group("/api")
	api.Use(limiter.middleware())
	{
		s.api.RegisterRoutes(api)
	}

	if m != nil {
		s.router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Handler 用于测试
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr 监听地址
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run 启动服务器，阻塞直到关闭
func (s *Server) Run() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
