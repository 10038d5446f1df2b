// Package dbf читает и пишет таблицы в формате dBase/FoxBase (.dbf):
// заголовок фиксированной длины, блок дескрипторов полей и записи
// фиксированной ширины с маркером удаления в первом байте.
package dbf

import (
	"errors"
	"fmt"
	"time"
)

const (
	headerSize      = 32
	descriptorSize  = 32
	fieldTerminator = 0x0D
	eofMarker       = 0x1A
	deletedMarker   = '*'
	liveMarker      = ' '
)

var (
	ErrMalformedHeader      = errors.New("malformed header")
	ErrTruncatedFile        = errors.New("truncated file")
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	ErrInvalidValue         = errors.New("invalid field value")
)

// FormatError ошибка формата конкретного файла таблицы
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("dbf %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// FieldType тип поля из дескриптора
type FieldType byte

const (
	Character FieldType = 'C'
	Numeric   FieldType = 'N'
	Float     FieldType = 'F'
	Date      FieldType = 'D'
	Logical   FieldType = 'L'
	Integer   FieldType = 'I'
)

func (t FieldType) supported() bool {
	switch t {
	case Character, Numeric, Float, Date, Logical, Integer:
		return true
	}
	return false
}

func (t FieldType) String() string {
	return string(rune(t))
}

// Field дескриптор поля
type Field struct {
	Name     string
	Type     FieldType
	Length   int
	Decimals int

	offset int
}

// Header разобранный заголовок таблицы
type Header struct {
	Version        byte
	LastUpdate     time.Time
	RecordCount    int
	HeaderLength   int
	RecordLength   int
	LanguageDriver byte
	Fields         []Field
}

// FieldCount количество полей в записи
func (h *Header) FieldCount() int {
	return len(h.Fields)
}

// Record одна запись таблицы. Удаленные записи не отбрасываются,
// а помечаются флагом Deleted.
type Record struct {
	Index   int
	Deleted bool
	Fields  map[string]any
}

// Value возвращает типизированное значение поля
func (r *Record) Value(name string) (any, bool) {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String возвращает значение поля как строку; для числовых полей
// используется десятичное представление.
func (r *Record) String(name string) string {
	v, ok := r.Value(name)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case time.Time:
		return val.Format(time.DateOnly)
	case bool:
		if val {
			return "true"
		}
		return "false"
	}
	return fmt.Sprint(v)
}

// Time возвращает значение поля типа Date
func (r *Record) Time(name string) (time.Time, bool) {
	v, ok := r.Value(name)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}
