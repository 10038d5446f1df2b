package dbf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const writerLanguageDriver = 0x03

// Row строка для записи в таблицу
type Row struct {
	Deleted bool
	Values  map[string]any
}

// Create записывает новую таблицу в кодировке Windows-1252.
// Существующий файл перезаписывается.
func Create(path string, fields []Field, rows []Row) error {
	fields, recLen, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	headerLen := headerSize + descriptorSize*len(fields) + 1

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	now := time.Now()
	h := make([]byte, headerSize)
	h[0] = 0x03
	h[1] = byte(now.Year() - 1900)
	h[2] = byte(now.Month())
	h[3] = byte(now.Day())
	binary.LittleEndian.PutUint32(h[4:8], uint32(len(rows)))
	binary.LittleEndian.PutUint16(h[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(h[10:12], uint16(recLen))
	h[29] = writerLanguageDriver
	w.Write(h)

	for _, fd := range fields {
		d := make([]byte, descriptorSize)
		copy(d[:10], fd.Name)
		d[11] = byte(fd.Type)
		if fd.Type == Character {
			binary.LittleEndian.PutUint16(d[16:18], uint16(fd.Length))
		} else {
			d[16] = byte(fd.Length)
			d[17] = byte(fd.Decimals)
		}
		w.Write(d)
	}
	w.WriteByte(fieldTerminator)

	enc := charmap.Windows1252.NewEncoder()
	buf := make([]byte, recLen)
	for i, row := range rows {
		buf[0] = liveMarker
		if row.Deleted {
			buf[0] = deletedMarker
		}
		for _, fd := range fields {
			cell, err := encodeValue(fd, row.Values[fd.Name])
			if err != nil {
				return fmt.Errorf("row %d field %s: %w", i, fd.Name, err)
			}
			if fd.Type == Character {
				if cell, err = enc.Bytes(cell); err != nil {
					return fmt.Errorf("row %d field %s: %w: %v", i, fd.Name, ErrInvalidValue, err)
				}
				cell = pad(cell, fd.Length)
			}
			copy(buf[fd.offset:fd.offset+fd.Length], cell)
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.WriteByte(eofMarker)

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}
	return f.Sync()
}

func normalizeFields(fields []Field) ([]Field, int, error) {
	if len(fields) == 0 {
		return nil, 0, fmt.Errorf("%w: no fields", ErrMalformedHeader)
	}

	out := make([]Field, len(fields))
	offset := 1
	for i, f := range fields {
		if f.Name == "" || len(f.Name) > 10 {
			return nil, 0, fmt.Errorf("%w: field name %q", ErrMalformedHeader, f.Name)
		}
		if !f.Type.supported() {
			return nil, 0, fmt.Errorf("%w: field %s has type %q", ErrUnsupportedFieldType, f.Name, f.Type.String())
		}
		switch f.Type {
		case Date:
			f.Length = 8
		case Logical:
			f.Length = 1
		case Integer:
			f.Length = 4
		}
		if f.Length <= 0 {
			return nil, 0, fmt.Errorf("%w: field %s has length %d", ErrMalformedHeader, f.Name, f.Length)
		}
		f.offset = offset
		offset += f.Length
		out[i] = f
	}
	return out, offset, nil
}

func encodeValue(f Field, v any) ([]byte, error) {
	switch f.Type {
	case Character:
		if v == nil {
			return nil, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: want string, got %T", ErrInvalidValue, v)
		}
		return []byte(s), nil

	case Numeric, Float:
		var s string
		switch n := v.(type) {
		case nil:
			return []byte(strings.Repeat(" ", f.Length)), nil
		case int:
			s = strconv.FormatInt(int64(n), 10)
		case int64:
			s = strconv.FormatInt(n, 10)
		case float64:
			s = strconv.FormatFloat(n, 'f', f.Decimals, 64)
		default:
			return nil, fmt.Errorf("%w: want number, got %T", ErrInvalidValue, v)
		}
		if len(s) > f.Length {
			return nil, fmt.Errorf("%w: %s does not fit in %d bytes", ErrInvalidValue, s, f.Length)
		}
		return []byte(strings.Repeat(" ", f.Length-len(s)) + s), nil

	case Date:
		switch d := v.(type) {
		case nil:
			return []byte(strings.Repeat(" ", 8)), nil
		case time.Time:
			return []byte(d.Format("20060102")), nil
		}
		return nil, fmt.Errorf("%w: want time.Time, got %T", ErrInvalidValue, v)

	case Logical:
		switch b := v.(type) {
		case nil:
			return []byte{'?'}, nil
		case bool:
			if b {
				return []byte{'T'}, nil
			}
			return []byte{'F'}, nil
		}
		return nil, fmt.Errorf("%w: want bool, got %T", ErrInvalidValue, v)

	case Integer:
		var n int64
		switch i := v.(type) {
		case nil:
		case int:
			n = int64(i)
		case int64:
			n = i
		default:
			return nil, fmt.Errorf("%w: want integer, got %T", ErrInvalidValue, v)
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return nil, fmt.Errorf("%w: %d overflows int32", ErrInvalidValue, n)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(n)))
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFieldType, f.Type.String())
}

func pad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	for i := len(b); i < n; i++ {
		out[i] = ' '
	}
	return out
}
