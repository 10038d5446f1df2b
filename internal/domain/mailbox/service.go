package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

type Servicer interface {
	Enqueue(ctx context.Context, typ string, payload json.RawMessage) (*Command, error)
	FetchPending(ctx context.Context) ([]Command, error)
	Ack(ctx context.Context, id string, status Status, errMsg string) (*Command, error)
}

type Service struct {
	repo Repository
	log  *slog.Logger
	cfg  Config
	now  func() time.Time
}

// NewService создает сервис очереди команд
func NewService(repo Repository, log *slog.Logger, cfg Config) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = time.Minute
	}
	return &Service{
		repo: repo,
		log:  log.With(slog.String("component", "mailbox_service")),
		cfg:  cfg,
		now:  time.Now,
	}
}

func (s *Service) Enqueue(ctx context.Context, typ string, payload json.RawMessage) (*Command, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidCommand)
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidCommand)
	}

	cmd := &Command{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Enqueue(ctx, cmd); err != nil {
		return nil, fmt.Errorf("enqueue command: %w", err)
	}

	s.log.Info("command enqueued", slog.String("id", cmd.ID), slog.String("type", cmd.Type))
	return cmd, nil
}

// FetchPending выдает следующую страницу команд, помечая их fetched
func (s *Service) FetchPending(ctx context.Context) ([]Command, error) {
	cmds, err := s.repo.ClaimPending(ctx, s.cfg.PageSize, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim pending commands: %w", err)
	}
	if cmds == nil {
		cmds = []Command{}
	}
	if len(cmds) > 0 {
		s.log.Info("commands fetched", slog.Int("count", len(cmds)))
	}
	return cmds, nil
}

func (s *Service) Ack(ctx context.Context, id string, status Status, errMsg string) (*Command, error) {
	if !status.Terminal() {
		return nil, ErrInvalidStatus
	}
	if status == StatusDone {
		errMsg = ""
	}

	cmd, err := s.repo.Complete(ctx, id, status, errMsg, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.Info("command acknowledged",
		slog.String("id", id),
		slog.String("status", string(status)),
		slog.String("error", errMsg),
	)
	return cmd, nil
}

// Reap возвращает в очередь команды, которые забрали, но не подтвердили
func (s *Service) Reap(ctx context.Context) (int, int, error) {
	requeued, failed, err := s.repo.RequeueStale(ctx, s.now().UTC().Add(-s.cfg.FetchTimeout), s.cfg.MaxAttempts)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue stale commands: %w", err)
	}
	if requeued > 0 || failed > 0 {
		s.log.Warn("stale commands reaped", slog.Int("requeued", requeued), slog.Int("failed", failed))
	}
	return requeued, failed, nil
}

// RunReaper запускает Reap с интервалом до отмены контекста
func (s *Service) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.Reap(ctx); err != nil {
				s.log.Error("reaper failed", slog.String("error", err.Error()))
			}
		}
	}
}
