package apikey

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// HeaderName заголовок с общим секретом коннектора
const HeaderName = "x-api-key"

type APIKey struct {
	key []byte
	log *slog.Logger
}

func New(key string, log *slog.Logger) *APIKey {
	return &APIKey{
		key: []byte(key),
		log: log.With(slog.String("component", "apikey_middleware")),
	}
}

// Middleware пропускает запрос дальше только при точном совпадении ключа.
// Сравнение за постоянное время, тело запроса не читается.
func (a *APIKey) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		got := []byte(ctx.Header(HeaderName))

		if len(a.key) == 0 || subtle.ConstantTimeCompare(got, a.key) != 1 {
			a.log.Warn("rejected request with bad api key",
				slog.String("path", ctx.URL().Path),
				slog.String("remote_addr", ctx.RemoteAddr()),
			)
			ctx.SetHeader("Content-Type", "application/json")
			ctx.SetStatus(http.StatusUnauthorized)

			if err := json.NewEncoder(ctx.BodyWriter()).Encode(map[string]string{
				"error": "Unauthorized",
			}); err != nil {
				a.log.Error("failed to write response", slog.String("error", err.Error()))
			}
			return
		}

		next(ctx)
	}
}
