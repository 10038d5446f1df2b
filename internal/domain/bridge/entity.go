package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind тип сущности, совпадает с сегментом пути /bridge/{kind}
type Kind string

const (
	KindPatient       Kind = "patients"
	KindClient        Kind = "clients"
	KindCalendarEvent Kind = "calendar"
)

type kindSpec struct {
	collection string
	field      string
	decode     func(data []byte) (Entity, error)
}

var kinds = map[Kind]kindSpec{
	KindPatient: {
		collection: "patients",
		field:      "patients",
		decode:     decodeAs[Patient],
	},
	KindClient: {
		collection: "clients",
		field:      "clients",
		decode:     decodeAs[Client],
	},
	KindCalendarEvent: {
		collection: "calendar_events",
		field:      "events",
		decode:     decodeAs[CalendarEvent],
	},
}

var aliases = map[string]Kind{
	"calendar-events": KindCalendarEvent,
}

// ParseKind разбирает сегмент пути, включая псевдонимы
func ParseKind(s string) (Kind, error) {
	if k, ok := aliases[s]; ok {
		return k, nil
	}
	if _, ok := kinds[Kind(s)]; ok {
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// Kinds все поддерживаемые типы в порядке синхронизации
func Kinds() []Kind {
	return []Kind{KindClient, KindPatient, KindCalendarEvent}
}

// Collection коллекция хранилища для типа
func (k Kind) Collection() string {
	return kinds[k].collection
}

// Field имя поля-массива в теле запроса
func (k Kind) Field() string {
	return kinds[k].field
}

func (k Kind) String() string {
	return string(k)
}

type entityPtr[T any] interface {
	*T
	Entity
}

func decodeAs[T any, P entityPtr[T]](data []byte) (Entity, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return P(&v), nil
}

// Decode разбирает одну запись указанного типа
func Decode(k Kind, data []byte) (Entity, error) {
	spec, ok := kinds[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, k)
	}
	return spec.decode(data)
}
