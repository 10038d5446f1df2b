package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/domain/mailbox"
)

type Handler struct {
	ingest     bridge.Servicer
	mailbox    mailbox.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(ingest bridge.Servicer, mb mailbox.Servicer, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		ingest:     ingest,
		mailbox:    mb,
		log:        log,
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	// статические пути регистрируются раньше /bridge/{entity}
	huma.Register(api, h.pendingExportsOp(), h.pendingExports)
	huma.Register(api, h.enqueueOp(), h.enqueue)
	huma.Register(api, h.ackOp(), h.ack)
	huma.Register(api, h.ingestOp(), h.ingestBatch)
}

func (h *Handler) ingestBatch(ctx context.Context, in *ingestInput) (*ingestOutput, error) {
	kind, err := bridge.ParseKind(in.Entity)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	res, err := h.ingest.Ingest(ctx, kind, in.RawBody)
	if err != nil {
		switch {
		case errors.Is(err, bridge.ErrInvalidPayload):
			return nil, huma.Error400BadRequest(err.Error())
		case errors.Is(err, bridge.ErrUnknownEntity):
			return nil, huma.Error404NotFound(err.Error())
		}
		h.log.Error("ingest failed", slog.String("entity", in.Entity), slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError(err.Error())
	}

	return &ingestOutput{
		Body: ingestResponse{
			Success:   true,
			Count:     res.Count,
			Remaining: res.Remaining,
		},
	}, nil
}

func (h *Handler) pendingExports(ctx context.Context, _ *struct{}) (*pendingOutput, error) {
	cmds, err := h.mailbox.FetchPending(ctx)
	if err != nil {
		h.log.Error("fetch pending commands failed", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError(err.Error())
	}

	return &pendingOutput{Body: pendingResponse{Commands: cmds}}, nil
}

func (h *Handler) ack(ctx context.Context, in *ackInput) (*commandOutput, error) {
	cmd, err := h.mailbox.Ack(ctx, in.ID, mailbox.Status(in.Body.Status), in.Body.Error)
	if err != nil {
		switch {
		case errors.Is(err, mailbox.ErrNotFound):
			return nil, huma.Error404NotFound(err.Error())
		case errors.Is(err, mailbox.ErrInvalidTransition):
			return nil, huma.Error409Conflict(err.Error())
		case errors.Is(err, mailbox.ErrInvalidStatus):
			return nil, huma.Error400BadRequest(err.Error())
		}
		h.log.Error("ack failed", slog.String("id", in.ID), slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError(err.Error())
	}

	return &commandOutput{Body: commandResponse{Command: *cmd}}, nil
}

func (h *Handler) enqueue(ctx context.Context, in *enqueueInput) (*commandOutput, error) {
	var payload json.RawMessage
	if in.Body.Payload != nil {
		b, err := json.Marshal(in.Body.Payload)
		if err != nil {
			return nil, huma.Error400BadRequest("payload is not serializable", err)
		}
		payload = b
	}

	cmd, err := h.mailbox.Enqueue(ctx, in.Body.Type, payload)
	if err != nil {
		if errors.Is(err, mailbox.ErrInvalidCommand) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		h.log.Error("enqueue failed", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError(err.Error())
	}

	return &commandOutput{Body: commandResponse{Command: *cmd}}, nil
}
