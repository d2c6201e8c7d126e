package http

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	http_router "github.com/mdepdi/be-fast-cablo/pkg/http/router"
	"github.com/mdepdi/be-fast-cablo/pkg/http/router/controllers"
	http_server "github.com/mdepdi/be-fast-cablo/pkg/http/server"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	Log *zap.Logger
	g   *errgroup.Group
}

func NewServer(log *zap.Logger) *Server {
	return &Server{Log: log}
}

// Use starts the API in the background. Wait returns once it has stopped.
func (s *Server) Use(
	ctx context.Context,
	cfg util.ServerConfig,
	lastmileService controllers.LastmileService,
) *Server {
	config := http_server.Config{
		Port:            cfg.Port,
		Timeout:         cfg.Timeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}

	api := http_router.NewAPI(s.Log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Run(gctx, config, lastmileService)
	})
	s.g = g
	return s
}

func (s *Server) Wait() error {
	if s.g == nil {
		return nil
	}
	return s.g.Wait()
}

// GracefulShutdown blocks until SIGINT or SIGTERM arrives.
func GracefulShutdown() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}
