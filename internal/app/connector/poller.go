package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slog"

	"vetbridge/internal/domain/mailbox"
	"vetbridge/internal/telemetry"
)

var ErrPollInProgress = errors.New("опрос почтового ящика уже выполняется")

// PollReport итог одного опроса почтового ящика
type PollReport struct {
	Fetched     int `json:"fetched"`
	Executed    int `json:"executed"`
	Failed      int `json:"failed"`
	Redelivered int `json:"redelivered"`
	AckErrors   int `json:"ackErrors"`
}

// Poller забирает команды из моста, исполняет их и подтверждает результат.
// Исполненные команды запоминаются локально, поэтому повторно доставленная
// команда только подтверждается.
type Poller struct {
	bridge Bridge
	exec   Executor
	state  *SQLiteStorage
	log    *slog.Logger
	now    func() time.Time

	tracer      trace.Tracer
	cntCommands metric.Int64Counter

	mu        sync.Mutex
	isPolling bool
}

func NewPoller(b Bridge, exec Executor, state *SQLiteStorage, log *slog.Logger) *Poller {
	return &Poller{
		bridge:      b,
		exec:        exec,
		state:       state,
		log:         log.With(slog.String("component", "poller")),
		now:         time.Now,
		tracer:      otel.Tracer(otelScope),
		cntCommands: telemetry.Counter(otelScope, "vetbridge.poll.commands", "Mailbox commands handled"),
	}
}

func (p *Poller) Poll(ctx context.Context) (*PollReport, error) {
	p.mu.Lock()
	if p.isPolling {
		p.mu.Unlock()
		return nil, ErrPollInProgress
	}
	p.isPolling = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.isPolling = false
		p.mu.Unlock()
	}()

	ctx, span := p.tracer.Start(ctx, "poll")
	defer span.End()

	cmds, err := p.bridge.FetchCommands(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ошибка получения команд: %w", err)
	}

	report := &PollReport{Fetched: len(cmds)}
	span.SetAttributes(attribute.Int("fetched", len(cmds)))

	if len(cmds) == 0 {
		p.log.Debug("Нет команд из облака")
		return report, nil
	}
	p.log.Info("Получены команды из облака", slog.Int("count", len(cmds)))

	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p.handle(ctx, cmd, report)
	}

	return report, nil
}

func (p *Poller) handle(ctx context.Context, cmd mailbox.Command, report *PollReport) {
	log := p.log.With(slog.String("id", cmd.ID), slog.String("type", cmd.Type))

	done, found, err := p.state.ExecutedCommand(ctx, cmd.ID)
	if err != nil {
		log.Error("Ошибка чтения локального состояния", slog.String("error", err.Error()))
		report.AckErrors++
		return
	}

	if !found {
		status, errMsg := mailbox.StatusDone, ""
		if err := p.exec.Execute(ctx, cmd); err != nil {
			status, errMsg = mailbox.StatusFailed, err.Error()
			report.Failed++
			log.Warn("Команда не исполнена", slog.String("error", errMsg))
		} else {
			report.Executed++
		}

		done = &ExecutedCommand{ID: cmd.ID, Type: cmd.Type, Status: status, Error: errMsg, ExecutedAt: p.now()}
		if err := p.state.RecordCommand(ctx, *done); err != nil {
			// без отметки повторная доставка исполнит команду еще раз, исполнитель идемпотентен
			log.Error("Не удалось сохранить отметку об исполнении", slog.String("error", err.Error()))
		}
	} else {
		report.Redelivered++
		log.Info("Команда уже исполнялась, только подтверждаем", slog.String("status", string(done.Status)))
	}

	p.cntCommands.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(done.Status))))

	if err := p.bridge.Ack(ctx, cmd.ID, done.Status, done.Error); err != nil {
		if errors.Is(err, ErrPayloadRejected) {
			// команда уже закрыта на стороне моста
			log.Warn("Мост отклонил подтверждение", slog.String("error", err.Error()))
			return
		}
		report.AckErrors++
		log.Error("Ошибка подтверждения команды", slog.String("error", err.Error()))
	}
}
