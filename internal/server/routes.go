package server

import (
	"net/http"
	"time"

	"github.com/danmuck/batchstream/internal/transport/httpstream"
	"github.com/danmuck/batchstream/internal/transport/wsstream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.Name,
			"version": version,
		})
	})

	s.router.GET("/procedures", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"procedures": s.registry.List(),
		})
	})

	s.router.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.Handler()))

	s.router.GET(s.cfg.StreamPath, httpstream.Handler(s.registry, httpstream.Options{
		Producer:   s.producerOptions(),
		FlushLines: s.cfg.FlushLines,
	}))

	s.router.GET(s.cfg.WSPath, wsstream.Handler(s.registry, wsstream.Options{
		Producer:       s.producerOptions(),
		AllowedOrigins: s.cfg.CorsOrigins,
	}))
}
