// Package apierr приводит все ошибки API к виду {"error": "..."}.
package apierr

import (
	"errors"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Error тело ошибки, которое ожидает коннектор
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) GetStatus() int {
	return e.Status
}

// New собирает сообщение вместе с деталями ошибок валидации
func New(status int, msg string, errs ...error) huma.StatusError {
	details := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		var detail huma.ErrorDetailer
		if errors.As(err, &detail) {
			d := detail.ErrorDetail()
			if d.Location != "" {
				details = append(details, d.Location+": "+d.Message)
				continue
			}
			details = append(details, d.Message)
			continue
		}
		details = append(details, err.Error())
	}

	if len(details) > 0 {
		msg = msg + ": " + strings.Join(details, "; ")
	}
	return &Error{Status: status, Message: msg}
}

var once sync.Once

// Install подменяет конструктор ошибок huma. Вызывается до регистрации операций.
func Install() {
	once.Do(func() {
		huma.NewError = New
	})
}
