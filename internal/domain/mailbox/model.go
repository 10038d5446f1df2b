package mailbox

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusFetched Status = "fetched"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Command команда из облака для исполнения на стороне клиники
type Command struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	FetchedAt   *time.Time      `json:"fetchedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Terminal команда больше не меняет статус
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Config параметры очереди
type Config struct {
	PageSize       int
	FetchTimeout   time.Duration
	MaxAttempts    int
	ReaperInterval time.Duration
}
