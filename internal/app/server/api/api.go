// POST /bridge/{entity}            # Батч записей от коннектора (api key)
// GET  /bridge/pending-exports     # Забрать команды (api key)
// POST /bridge/commands/{id}/ack   # Подтвердить исполнение команды (api key)
// POST /bridge/exports             # Поставить команду в очередь (api key)
// GET  /api/v1/health              # Проверка живости (публичный)

package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"vetbridge/internal/app/server/api/http/apierr"
	bridgeAPI "vetbridge/internal/app/server/api/http/bridge"
	healthAPI "vetbridge/internal/app/server/api/http/health"
	"vetbridge/internal/app/server/api/http/middleware"
	"vetbridge/internal/app/server/api/http/middleware/apikey"
	"vetbridge/internal/app/server/api/http/middleware/logger"
	"vetbridge/internal/app/server/config"
	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/domain/mailbox"
)

// Services зависимости HTTP слоя
type Services struct {
	Bridge  bridge.Servicer
	Mailbox mailbox.Servicer
	Health  healthAPI.Checker
}

type Handlers struct {
	Health *healthAPI.Handler
	Bridge *bridgeAPI.Handler
}

// New создает *chi.Mux со всеми операциями через huma.Register
func New(cfg *config.Config, svc Services, log *slog.Logger) *chi.Mux {
	apierr.Install()

	mux := chi.NewMux()
	mux.Use(chimw.RequestID, chimw.Recoverer)

	API := humachi.New(mux, humaConfig())

	h := handlers(cfg, svc, log)
	h.Health.SetupRoutes(API)
	h.Bridge.SetupRoutes(API)

	return mux
}

func humaConfig() huma.Config {
	c := huma.DefaultConfig("Vetbridge API", "1.0.0")
	// без $schema в ответах: коннектор ждет тело ровно в описанном виде
	c.CreateHooks = nil
	c.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"apiKey": {Type: "apiKey", In: "header", Name: apikey.HeaderName},
	}
	return c
}

func handlers(cfg *config.Config, svc Services, log *slog.Logger) *Handlers {
	loggerMW := logger.New(log)
	authMW := apikey.New(cfg.Bridge.APIKey, log)
	chain := middleware.NewChain(loggerMW.Middleware())

	healthHandler := healthAPI.NewHandler(svc.Health, log, chain.Build())
	bridgeHandler := bridgeAPI.NewHandler(svc.Bridge, svc.Mailbox, log, chain.Build(authMW.Middleware()))

	return &Handlers{
		Health: healthHandler,
		Bridge: bridgeHandler,
	}
}
