package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/exp/slog"

	"vetbridge/internal/app/connector/config"
	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/domain/mailbox"
)

const apiKeyHeader = "x-api-key"

var (
	// ErrUnauthorized мост не принял ключ; повторять бессмысленно
	ErrUnauthorized = errors.New("мост отклонил ключ доступа")
	// ErrPayloadRejected мост отклонил содержимое запроса
	ErrPayloadRejected = errors.New("мост отклонил данные")
)

// TransportError сетевая ошибка или ответ 5xx/429; запрос можно повторить
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: статус %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Bridge операции облачного моста, нужные коннектору
type Bridge interface {
	Push(ctx context.Context, kind bridge.Kind, entities []bridge.Entity) (*bridge.BatchResult, error)
	FetchCommands(ctx context.Context) ([]mailbox.Command, error)
	Ack(ctx context.Context, id string, status mailbox.Status, errMsg string) error
	HealthCheck(ctx context.Context) error
}

type httpClient struct {
	client     *http.Client
	log        *slog.Logger
	baseURL    string
	apiKey     string
	userAgent  string
	maxRetries int
	newBackOff func() backoff.BackOff
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) *httpClient {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 2,
		},
	}

	return &httpClient{
		client:     client,
		log:        log.With(slog.String("component", "bridge_client")),
		baseURL:    cfg.BridgeURL,
		apiKey:     cfg.APIKey,
		userAgent:  "VetBridge-Connector/1.0",
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// HealthCheck проверяет доступность моста
func (h *httpClient) HealthCheck(ctx context.Context) error {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return err
	}
	return h.parseResponse(resp, nil)
}

// Push отправляет один батч сущностей. Сетевые ошибки и 5xx повторяются
// с экспоненциальной задержкой, 401 и 4xx возвращаются сразу.
func (h *httpClient) Push(ctx context.Context, kind bridge.Kind, entities []bridge.Entity) (*bridge.BatchResult, error) {
	body := map[string]any{kind.Field(): entities}
	path := "/bridge/" + url.PathEscape(kind.String())

	return retry(ctx, h, "push "+kind.String(), func() (*bridge.BatchResult, error) {
		resp, err := h.doRequest(ctx, http.MethodPost, path, body)
		if err != nil {
			return nil, err
		}

		var out struct {
			Success   bool `json:"success"`
			Count     int  `json:"count"`
			Remaining int  `json:"remaining"`
		}
		if err := h.parseResponse(resp, &out); err != nil {
			return nil, err
		}
		if !out.Success {
			return nil, backoff.Permanent(fmt.Errorf("%w: success=false", ErrPayloadRejected))
		}
		return &bridge.BatchResult{Count: out.Count, Remaining: out.Remaining}, nil
	})
}

// FetchCommands забирает страницу команд из почтового ящика моста
func (h *httpClient) FetchCommands(ctx context.Context) ([]mailbox.Command, error) {
	return retry(ctx, h, "fetch commands", func() ([]mailbox.Command, error) {
		resp, err := h.doRequest(ctx, http.MethodGet, "/bridge/pending-exports", nil)
		if err != nil {
			return nil, err
		}

		var out struct {
			Commands []mailbox.Command `json:"commands"`
		}
		if err := h.parseResponse(resp, &out); err != nil {
			return nil, err
		}
		return out.Commands, nil
	})
}

// Ack сообщает мосту результат исполнения команды
func (h *httpClient) Ack(ctx context.Context, id string, status mailbox.Status, errMsg string) error {
	body := map[string]string{"status": string(status)}
	if errMsg != "" {
		body["error"] = errMsg
	}
	path := "/bridge/commands/" + url.PathEscape(id) + "/ack"

	_, err := retry(ctx, h, "ack "+id, func() (struct{}, error) {
		resp, err := h.doRequest(ctx, http.MethodPost, path, body)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, h.parseResponse(resp, nil)
	})
	return err
}

func retry[T any](ctx context.Context, h *httpClient, op string, fn func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		var te *TransportError
		if errors.As(err, &te) {
			if te.Op == "" {
				te.Op = op
			}
			return res, err
		}
		return res, backoff.Permanent(err)
	},
		backoff.WithBackOff(h.newBackOff()),
		backoff.WithMaxTries(uint(max(h.maxRetries, 1))),
		backoff.WithNotify(func(err error, next time.Duration) {
			h.log.Warn("повтор запроса к мосту",
				slog.String("op", op),
				slog.Duration("next", next),
				slog.String("error", err.Error()),
			)
		}),
	)
}

func (h *httpClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка маршалинга тела запроса: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(apiKeyHeader, h.apiKey)
	req.Header.Set("User-Agent", h.userAgent)

	h.log.Debug("Отправка запроса",
		slog.String("method", method),
		slog.String("url", req.URL.String()),
	)

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}

	return resp, nil
}

func (h *httpClient) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("ошибка чтения ответа: %w", err)}
	}

	h.log.Debug("Получен ответ",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
	)

	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("статус %d", resp.StatusCode)
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			msg = errResp.Error
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &TransportError{StatusCode: resp.StatusCode, Err: errors.New(msg)}
		default:
			return fmt.Errorf("%w: %s", ErrPayloadRejected, msg)
		}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}

	return nil
}
