package bibleparser

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// ErrSourceRead indicates the underlying reader failed before the markup ended.
// Unlike markup anomalies it aborts the parse without a result.
var ErrSourceRead = errors.New("bibleparser: source read failed")

// sourceReader feeds the decoder byte by byte. It tags reader failures with
// ErrSourceRead and, while capturing, keeps the raw bytes of the current verse.
type sourceReader struct {
	reader    *bufio.Reader
	capturing bool
	raw       []byte
}

func newSourceReader(r io.Reader) *sourceReader {
	return &sourceReader{reader: bufio.NewReader(r)}
}

func (s *sourceReader) ReadByte() (byte, error) {
	b, err := s.reader.ReadByte()
	if err != nil {
		return 0, s.wrap(err)
	}
	if s.capturing {
		s.raw = append(s.raw, b)
	}
	return b, nil
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	if s.capturing {
		s.raw = append(s.raw, p[:n]...)
	}
	if err != nil {
		return n, s.wrap(err)
	}
	return n, nil
}

func (s *sourceReader) wrap(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return fmt.Errorf("%w: %w", ErrSourceRead, err)
}

func (s *sourceReader) startCapture() {
	s.capturing = true
	s.raw = s.raw[:0]
}

func (s *sourceReader) stopCapture() []byte {
	s.capturing = false
	return s.raw
}

// predefinedEntities are the XML entities every decoder resolves.
var predefinedEntities = map[string]struct{}{
	"amp": {}, "lt": {}, "gt": {}, "quot": {}, "apos": {},
}

const maxEntityNameLength = 32

// textDefect reports the first ampersand in raw verse markup that is neither a
// resolvable entity nor inside a CDATA section. The lenient decoder keeps such
// text literally, so the verse is stored but the defect is still recorded.
func textDefect(raw []byte) (string, bool) {
	for index := 0; index < len(raw); index++ {
		if bytes.HasPrefix(raw[index:], []byte(cdataOpen)) {
			end := bytes.Index(raw[index:], []byte(cdataClose))
			if end < 0 {
				return "", false
			}
			index += end + len(cdataClose) - 1
			continue
		}
		if raw[index] != '&' {
			continue
		}
		name, ok := entityName(raw[index+1:])
		if !ok {
			return "bare ampersand in verse text", true
		}
		if !knownEntity(name) {
			return fmt.Sprintf("undeclared entity &%s; in verse text", name), true
		}
	}
	return "", false
}

func entityName(rest []byte) (string, bool) {
	for index := 0; index < len(rest) && index <= maxEntityNameLength; index++ {
		switch b := rest[index]; {
		case b == ';':
			return string(rest[:index]), index > 0
		case b == '#' && index == 0,
			b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		default:
			return "", false
		}
	}
	return "", false
}

func knownEntity(name string) bool {
	if name[0] == '#' {
		return len(name) > 1
	}
	if _, ok := predefinedEntities[name]; ok {
		return true
	}
	_, ok := xml.HTMLEntity[name]
	return ok
}
