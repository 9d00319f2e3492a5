package storage

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedLine = errors.New("storage: malformed hex line")

// EncodeLine renders b as upper-case two-digit hex bytes separated by single
// spaces and terminated by a newline.
func EncodeLine(b []byte) []byte {
	const hexd = "0123456789ABCDEF"
	if len(b) == 0 {
		return []byte{'\n'}
	}
	out := make([]byte, 0, len(b)*3)
	for i, x := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return append(out, '\n')
}

// DecodeLine parses one persisted line. Tokens of one or two hex digits are
// accepted so older logs written without zero padding still decode.
func DecodeLine(line string) ([]byte, error) {
	fields := strings.Fields(line)
	out := make([]byte, 0, len(fields))
	for _, tok := range fields {
		if len(tok) > 2 {
			return nil, fmt.Errorf("%w: token %q", ErrMalformedLine, tok)
		}
		var v byte
		for i := 0; i < len(tok); i++ {
			d, ok := hexDigit(tok[i])
			if !ok {
				return nil, fmt.Errorf("%w: token %q", ErrMalformedLine, tok)
			}
			v = v<<4 | d
		}
		out = append(out, v)
	}
	return out, nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
