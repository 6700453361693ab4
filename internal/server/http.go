package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	analyticsservice "github.com/univora/sharebox-backend/internal/analytics/service"
	"github.com/univora/sharebox-backend/internal/auth/middleware"
	"github.com/univora/sharebox-backend/internal/conf"
	linkservice "github.com/univora/sharebox-backend/internal/link/service"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	userbiz "github.com/univora/sharebox-backend/internal/user/biz"
	userservice "github.com/univora/sharebox-backend/internal/user/service"
	"go.uber.org/zap"
)

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	users *userbiz.UserUseCase,
	userService *userservice.UserService,
	linkService *linkservice.LinkService,
	statsService *analyticsservice.StatsService,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// API routes
	api := router.Group("/api/v1")
	userService.RegisterRoutes(api)
	linkService.RegisterRoutes(api)

	admin := api.Group("/admin")
	admin.Use(middleware.AdminAuth(config.Auth.JWTSecret, config.Auth.JWTIssuer, users, log))
	userService.RegisterAdminRoutes(admin)
	statsService.RegisterAdminRoutes(admin)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)

	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: log,
	}
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
