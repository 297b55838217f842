package app

import (
	"context"
	"net/http"
	"time"

	"github.com/Vadebaba/imageefy-ai/internal/handlers"
	"github.com/Vadebaba/imageefy-ai/internal/locker"
	"github.com/Vadebaba/imageefy-ai/internal/middleware"
	"github.com/Vadebaba/imageefy-ai/internal/repository"
	"github.com/Vadebaba/imageefy-ai/internal/usersync"
)

func (a *App) loadRoutes() http.Handler {
	router := http.NewServeMux()

	// ping handler
	router.HandleFunc("GET /ping", handlers.PingHandler)

	// Clerk webhook ingestion
	webhookHandler := &handlers.WebhookHandler{
		Logger:   a.logger,
		Verifier: a.verifier,
		Stores:   requestScopedStore,
		Metadata: a.clerk,
		Events:   a.userEventBus,
		Locks:    locker.New(a.redis, a.logger),
		Timeout:  time.Duration(a.config.WebhookConfig.TimeoutSeconds) * time.Second,
	}
	webhookHandler.RegisterHandlers(router)

	return router
}

// requestScopedStore builds a repository over the pooled connection the
// database middleware leased for this request.
func requestScopedStore(ctx context.Context) (usersync.Store, error) {
	conn, err := middleware.GetDBConnFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return repository.New(conn), nil
}
