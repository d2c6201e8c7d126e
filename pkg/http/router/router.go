package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/justinas/alice"
	"github.com/mdepdi/be-fast-cablo/pkg/http/router/controllers"
	router_helper "github.com/mdepdi/be-fast-cablo/pkg/http/router/routerhelper"
	http_server "github.com/mdepdi/be-fast-cablo/pkg/http/server"
	"go.uber.org/zap"
)

type API struct {
	log *zap.Logger
}

func NewAPI(log *zap.Logger) *API {
	return &API{log: log}
}

// Handler returns the router wrapped in the middleware chain.
func (api *API) Handler(lastmileService controllers.LastmileService) http.Handler {
	router := httprouter.New()

	group := router_helper.NewRouteGroup(router, "/api/v1")
	lastmileRoutes := controllers.New(lastmileService, api.log)
	lastmileRoutes.Routes(group)

	mwChain := []alice.Constructor{
		api.recoverPanic, RealIP, Heartbeat("healthz"), Logger(api.log), EnforceJSONHandler,
	}
	return alice.New(mwChain...).Then(router)
}

// Run serves until ctx is cancelled or the listener fails.
func (api *API) Run(
	ctx context.Context,
	config http_server.Config,
	lastmileService controllers.LastmileService,
) error {
	api.log.Info("Run httprouter API")

	srv := http_server.New(ctx, api.Handler(lastmileService), config)
	api.log.Info(fmt.Sprintf("API run on port %d", config.Port))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		api.log.Info("HTTP server stopped", zap.Error(err))
		return err
	case <-ctx.Done():
		api.log.Info("Context canceled, shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
