package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/railzwaylabs/subsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterRoutes()
	}),
	fx.Invoke(RunHTTP),
)

type Server struct {
	engine   *gin.Engine
	db       *gorm.DB
	log      *zap.Logger
	gatherer prometheus.Gatherer
}

type ServerParam struct {
	fx.In

	Engine   *gin.Engine
	DB       *gorm.DB
	Log      *zap.Logger
	Gatherer prometheus.Gatherer
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log.Named("server.http")))
	return engine
}

func NewServer(p ServerParam) *Server {
	return &Server{
		engine:   p.Engine,
		db:       p.DB,
		log:      p.Log.Named("server"),
		gatherer: p.Gatherer,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Healthz)
	s.engine.GET("/readyz", s.Readyz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server) {
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" {
			return
		}
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
