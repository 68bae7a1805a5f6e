package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/batchstream/internal/config"
	"github.com/danmuck/batchstream/internal/observability"
	"github.com/danmuck/batchstream/internal/procedures"
	"github.com/danmuck/batchstream/internal/protocol/stream"
	"github.com/danmuck/batchstream/internal/transform"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownGrace = 5 * time.Second

// Server exposes a procedure registry as batch stream endpoints.
type Server struct {
	cfg         config.ServerConfig
	registry    *procedures.Registry
	transformer transform.Transformer
	router      *gin.Engine
	appeared    time.Time
}

func New(cfg config.ServerConfig, registry *procedures.Registry) (*Server, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	tr, err := transform.ByName(cfg.Transformer)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = procedures.NewBuiltinRegistry()
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.Middleware(cfg.Name, log.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(cfg.CorsOrigins),
		AllowMethods:  []string{"GET"},
		AllowHeaders:  []string{"Origin", "Content-Type", observability.HeaderRequestID},
		ExposeHeaders: []string{observability.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:         cfg,
		registry:    registry,
		transformer: tr,
		router:      r,
		appeared:    time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) producerOptions() stream.ProducerOptions {
	return stream.ProducerOptions{
		MaxDepth:    s.cfg.MaxDepth,
		Transformer: s.transformer,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Info().
			Str("name", s.cfg.Name).
			Str("addr", s.cfg.Addr).
			Str("stream", s.cfg.StreamPath).
			Str("ws", s.cfg.WSPath).
			Msg("server listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	log.Info().Str("name", s.cfg.Name).Msg("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
