package health

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

const checkTimeout = 2 * time.Second

// Checker проверка доступности хранилища
type Checker interface {
	Name() string
	Ping(ctx context.Context) error
}

type Handler struct {
	checker    Checker
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(checker Checker, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		checker:    checker,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	out := &Output{
		Status: http.StatusOK,
		Body: Response{
			Status: "OK",
			Store:  h.checker.Name(),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.checker.Ping(ctx); err != nil {
		h.log.Error("store health check failed", slog.String("error", err.Error()))
		out.Status = http.StatusServiceUnavailable
		out.Body.Status = "UNAVAILABLE"
		out.Body.Error = err.Error()
	}

	return out, nil
}
