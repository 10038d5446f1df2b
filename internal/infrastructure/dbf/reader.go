package dbf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
)

// Table открытая таблица. Последовательность записей ленивая и
// перезапускаемая: каждый вызов Records читает файл заново от конца заголовка.
type Table struct {
	path   string
	file   *os.File
	header *Header
}

// Open открывает таблицу и проверяет заголовок целиком, включая
// соответствие размера файла обещанному количеству записей.
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat table: %w", err)
	}

	h, err := parseHeader(f, st.Size())
	if err != nil {
		f.Close()
		return nil, &FormatError{Path: path, Err: err}
	}

	return &Table{path: path, file: f, header: h}, nil
}

// ReadAll читает все записи таблицы, включая удаленные
func ReadAll(path string) ([]*Record, error) {
	t, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	records := make([]*Record, 0, t.header.RecordCount)
	for rec, err := range t.Records() {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (t *Table) Path() string {
	return t.path
}

func (t *Table) Header() *Header {
	return t.header
}

func (t *Table) Close() error {
	return t.file.Close()
}

// Records возвращает последовательность записей. После первой ошибки
// итерация прекращается.
func (t *Table) Records() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		h := t.header
		sr := io.NewSectionReader(t.file, int64(h.HeaderLength), int64(h.RecordCount)*int64(h.RecordLength))
		br := bufio.NewReader(sr)
		buf := make([]byte, h.RecordLength)
		dec := codePage(h.LanguageDriver).NewDecoder()

		for i := 0; i < h.RecordCount; i++ {
			if _, err := io.ReadFull(br, buf); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					err = fmt.Errorf("%w: record %d of %d: %v", ErrTruncatedFile, i, h.RecordCount, err)
				}
				yield(nil, &FormatError{Path: t.path, Err: err})
				return
			}

			rec, err := t.decodeRecord(i, buf, dec)
			if err != nil {
				yield(nil, &FormatError{Path: t.path, Err: err})
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (t *Table) decodeRecord(index int, buf []byte, dec *encoding.Decoder) (*Record, error) {
	if buf[0] == eofMarker {
		return nil, fmt.Errorf("%w: end-of-file marker at record %d of %d", ErrTruncatedFile, index, t.header.RecordCount)
	}

	rec := &Record{
		Index:   index,
		Deleted: buf[0] == deletedMarker,
		Fields:  make(map[string]any, len(t.header.Fields)),
	}

	for _, f := range t.header.Fields {
		raw := buf[f.offset : f.offset+f.Length]
		v, err := decodeValue(f, raw, dec)
		if err != nil {
			return nil, fmt.Errorf("record %d field %s: %w", index, f.Name, err)
		}
		rec.Fields[f.Name] = v
	}

	return rec, nil
}

func decodeValue(f Field, raw []byte, dec *encoding.Decoder) (any, error) {
	switch f.Type {
	case Character:
		raw = bytes.TrimRight(raw, " \x00")
		s, err := dec.Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return strings.TrimSpace(string(s)), nil

	case Numeric, Float:
		s := strings.TrimSpace(string(bytes.Trim(raw, "\x00")))
		if s == "" || strings.Trim(s, "*") == "" {
			return nil, nil
		}
		if f.Decimals == 0 {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: numeric %q", ErrInvalidValue, s)
		}
		return n, nil

	case Date:
		s := strings.TrimSpace(string(bytes.Trim(raw, "\x00")))
		if s == "" || s == "00000000" {
			return nil, nil
		}
		d, err := time.ParseInLocation("20060102", s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q", ErrInvalidValue, s)
		}
		return d, nil

	case Logical:
		switch raw[0] {
		case 'T', 't', 'Y', 'y':
			return true, nil
		case 'F', 'f', 'N', 'n':
			return false, nil
		case '?', ' ', 0:
			return nil, nil
		}
		return nil, fmt.Errorf("%w: logical %q", ErrInvalidValue, raw[0])

	case Integer:
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFieldType, f.Type.String())
}
