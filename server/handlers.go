package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"screen-relay-server/internal/capture"
	"screen-relay-server/internal/logging"
	"screen-relay-server/internal/relay"
)

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	Capture     capture.Status         `json:"capture"`
	Subscribers []relay.SubscriberInfo `json:"subscribers"`
	Timestamp   int64                  `json:"timestamp"`
}

func (a *app) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logging.Component(a.logger, "http")))
	r.Use(corsMiddleware())

	r.GET("/health", a.handleHealth)
	r.GET("/api/status", a.handleStatus)
	r.GET(a.cfg.Server.ScreenPath, a.relay.HandleScreen)

	return r
}

// corsMiddleware lets browser viewers on any origin reach the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", corsAllowOrigin)
		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", c.ClientIP()),
		)
	}
}

func (a *app) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"capturing": a.manager.Running(),
		"viewers":   a.registry.Count(),
		"timestamp": time.Now().Unix(),
	})
}

func (a *app) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Capture:     a.manager.Status(),
		Subscribers: a.registry.Snapshot(),
		Timestamp:   time.Now().Unix(),
	})
}
