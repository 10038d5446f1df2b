package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vetbridge/internal/domain/mailbox"
)

type MailboxRepository struct {
	mu   sync.Mutex
	cmds map[string]*mailbox.Command
}

func NewMailboxRepository() *MailboxRepository {
	return &MailboxRepository{cmds: make(map[string]*mailbox.Command)}
}

func (r *MailboxRepository) Enqueue(_ context.Context, cmd *mailbox.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cmds[cmd.ID]; ok {
		return fmt.Errorf("command %s already exists", cmd.ID)
	}
	c := *cmd
	r.cmds[cmd.ID] = &c
	return nil
}

func (r *MailboxRepository) Get(_ context.Context, id string) (*mailbox.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cmds[id]
	if !ok {
		return nil, mailbox.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *MailboxRepository) ClaimPending(_ context.Context, limit int, now time.Time) ([]mailbox.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*mailbox.Command
	for _, c := range r.cmds {
		if c.Status == mailbox.StatusPending {
			pending = append(pending, c)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]mailbox.Command, 0, len(pending))
	for _, c := range pending {
		fetched := now
		c.Status = mailbox.StatusFetched
		c.FetchedAt = &fetched
		c.Attempts++
		out = append(out, *c)
	}
	return out, nil
}

func (r *MailboxRepository) Complete(_ context.Context, id string, status mailbox.Status, errMsg string, now time.Time) (*mailbox.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cmds[id]
	if !ok {
		return nil, mailbox.ErrNotFound
	}
	if c.Status != mailbox.StatusFetched {
		return nil, mailbox.ErrInvalidTransition
	}

	completed := now
	c.Status = status
	c.LastError = errMsg
	c.CompletedAt = &completed

	out := *c
	return &out, nil
}

func (r *MailboxRepository) RequeueStale(_ context.Context, fetchedBefore time.Time, maxAttempts int) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var requeued, failed int
	for _, c := range r.cmds {
		if c.Status != mailbox.StatusFetched || c.FetchedAt == nil || !c.FetchedAt.Before(fetchedBefore) {
			continue
		}
		if c.Attempts >= maxAttempts {
			now := time.Now().UTC()
			c.Status = mailbox.StatusFailed
			c.CompletedAt = &now
			c.LastError = fmt.Sprintf("not acknowledged after %d attempts", c.Attempts)
			failed++
			continue
		}
		c.Status = mailbox.StatusPending
		c.FetchedAt = nil
		requeued++
	}
	return requeued, failed, nil
}
