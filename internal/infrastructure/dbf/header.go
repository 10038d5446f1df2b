package dbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Кодовые страницы по байту language driver (смещение 29 заголовка)
var codePages = map[byte]*charmap.Charmap{
	0x01: charmap.CodePage437,
	0x02: charmap.CodePage850,
	0x03: charmap.Windows1252,
	0x57: charmap.Windows1252,
	0x64: charmap.CodePage852,
	0x65: charmap.CodePage866,
	0x66: charmap.CodePage865,
	0xC8: charmap.Windows1250,
	0xC9: charmap.Windows1251,
	0xCA: charmap.Windows1254,
	0xCB: charmap.Windows1253,
}

func codePage(driver byte) *charmap.Charmap {
	if cm, ok := codePages[driver]; ok {
		return cm
	}
	return charmap.Windows1252
}

func parseHeader(r io.ReaderAt, size int64) (*Header, error) {
	if size < headerSize {
		return nil, fmt.Errorf("%w: file is %d bytes, need at least %d", ErrMalformedHeader, size, headerSize)
	}

	b := make([]byte, headerSize)
	if _, err := r.ReadAt(b, 0); err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrMalformedHeader, err)
	}

	h := &Header{
		Version:        b[0],
		LastUpdate:     lastUpdate(b[1], b[2], b[3]),
		RecordCount:    int(binary.LittleEndian.Uint32(b[4:8])),
		HeaderLength:   int(binary.LittleEndian.Uint16(b[8:10])),
		RecordLength:   int(binary.LittleEndian.Uint16(b[10:12])),
		LanguageDriver: b[29],
	}

	if h.HeaderLength < headerSize+1 {
		return nil, fmt.Errorf("%w: header length %d", ErrMalformedHeader, h.HeaderLength)
	}
	if h.RecordLength < 2 {
		return nil, fmt.Errorf("%w: record length %d", ErrMalformedHeader, h.RecordLength)
	}
	if int64(h.HeaderLength) > size {
		return nil, fmt.Errorf("%w: header length %d exceeds file size %d", ErrTruncatedFile, h.HeaderLength, size)
	}

	desc := make([]byte, h.HeaderLength-headerSize)
	if _, err := r.ReadAt(desc, headerSize); err != nil {
		return nil, fmt.Errorf("%w: read descriptors: %v", ErrMalformedHeader, err)
	}

	fields, err := parseDescriptors(desc)
	if err != nil {
		return nil, err
	}
	h.Fields = fields

	width := 1
	for _, f := range fields {
		width += f.Length
	}
	if width != h.RecordLength {
		return nil, fmt.Errorf("%w: field widths sum to %d, record length is %d", ErrMalformedHeader, width, h.RecordLength)
	}

	need := int64(h.HeaderLength) + int64(h.RecordCount)*int64(h.RecordLength)
	if size < need {
		return nil, fmt.Errorf("%w: header promises %d records (%d bytes), file has %d bytes",
			ErrTruncatedFile, h.RecordCount, need, size)
	}

	return h, nil
}

func parseDescriptors(desc []byte) ([]Field, error) {
	var fields []Field
	offset := 1
	seen := make(map[string]struct{})

	for i := 0; ; i += descriptorSize {
		if i >= len(desc) {
			return nil, fmt.Errorf("%w: missing field terminator", ErrMalformedHeader)
		}
		if desc[i] == fieldTerminator {
			break
		}
		if i+descriptorSize > len(desc) {
			return nil, fmt.Errorf("%w: descriptor %d is cut off", ErrMalformedHeader, len(fields))
		}

		d := desc[i : i+descriptorSize]
		name := d[:11]
		if n := bytes.IndexByte(name, 0); n >= 0 {
			name = name[:n]
		}

		f := Field{
			Name:     strings.TrimSpace(string(name)),
			Type:     FieldType(d[11]),
			Length:   int(d[16]),
			Decimals: int(d[17]),
		}
		if f.Name == "" {
			return nil, fmt.Errorf("%w: descriptor %d has empty name", ErrMalformedHeader, len(fields))
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %s", ErrMalformedHeader, f.Name)
		}
		if !f.Type.supported() {
			return nil, fmt.Errorf("%w: field %s has type %q", ErrUnsupportedFieldType, f.Name, f.Type.String())
		}

		// FoxPro хранит старший байт длины символьного поля в decimals
		if f.Type == Character {
			f.Length = int(binary.LittleEndian.Uint16(d[16:18]))
			f.Decimals = 0
		}
		if f.Length == 0 {
			return nil, fmt.Errorf("%w: field %s has zero length", ErrMalformedHeader, f.Name)
		}
		if f.Type == Integer && f.Length != 4 {
			return nil, fmt.Errorf("%w: integer field %s has length %d", ErrMalformedHeader, f.Name, f.Length)
		}

		f.offset = offset
		offset += f.Length
		seen[f.Name] = struct{}{}
		fields = append(fields, f)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrMalformedHeader)
	}
	return fields, nil
}

func lastUpdate(yy, mm, dd byte) time.Time {
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return time.Time{}
	}
	return time.Date(1900+int(yy), time.Month(mm), int(dd), 0, 0, 0, 0, time.UTC)
}
