package mailbox

import (
	"context"
	"time"
)

type Repository interface {
	Enqueue(ctx context.Context, cmd *Command) error
	Get(ctx context.Context, id string) (*Command, error)
	// ClaimPending атомарно переводит до limit самых старых pending-команд в fetched.
	// Одна команда не может попасть в два одновременных вызова.
	ClaimPending(ctx context.Context, limit int, now time.Time) ([]Command, error)
	// Complete переводит fetched -> done|failed, иначе ErrInvalidTransition
	Complete(ctx context.Context, id string, status Status, errMsg string, now time.Time) (*Command, error)
	// RequeueStale возвращает в pending команды, висящие в fetched дольше fetchedBefore;
	// команды, исчерпавшие maxAttempts, переводятся в failed.
	RequeueStale(ctx context.Context, fetchedBefore time.Time, maxAttempts int) (requeued, failed int, err error)
}
