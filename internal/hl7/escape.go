package hl7

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidValue is returned for a value holding delimiter characters when
// the message declares no escape character to encode them with.
var ErrInvalidValue = errors.New("value cannot be encoded")

// level is the depth a cell addresses. Delimiters above the level are data
// in a value written there and get escaped; delimiters below it split the
// value into structure.
type level int

const (
	levelRepetition level = iota
	levelComponent
	levelSubcomponent
)

// escapeCodes maps the characters that are data at l to their escape code.
func escapeCodes(d Delimiters, l level) map[byte]string {
	codes := map[byte]string{
		d.Field:      "F",
		d.Repetition: "R",
		'\r':         "X0D",
		'\n':         "X0A",
	}
	if d.Escape != 0 {
		codes[d.Escape] = "E"
	}
	if l >= levelComponent {
		codes[d.Component] = "S"
	}
	if l >= levelSubcomponent && d.Subcomponent != 0 {
		codes[d.Subcomponent] = "T"
	}
	return codes
}

func escapeValue(value string, d Delimiters, l level) (string, error) {
	codes := escapeCodes(d, l)
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		code, ok := codes[value[i]]
		if !ok {
			b.WriteByte(value[i])
			continue
		}
		if d.Escape == 0 {
			return "", fmt.Errorf("%w: %q holds delimiter %q and the message has no escape character", ErrInvalidValue, value, value[i])
		}
		b.WriteByte(d.Escape)
		b.WriteString(code)
		b.WriteByte(d.Escape)
	}
	return b.String(), nil
}

// unescapeValue reverses escapeValue. Escape sequences that are not data at
// l, such as \S\ read at repetition level or \H\, are kept verbatim.
func unescapeValue(s string, d Delimiters, l level) string {
	if d.Escape == 0 || strings.IndexByte(s, d.Escape) < 0 {
		return s
	}
	decode := make(map[string]byte)
	for ch, code := range escapeCodes(d, l) {
		decode[code] = ch
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != d.Escape {
			b.WriteByte(s[i])
			continue
		}
		end := strings.IndexByte(s[i+1:], d.Escape)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		seq := s[i+1 : i+1+end]
		if ch, ok := decode[seq]; ok {
			b.WriteByte(ch)
		} else {
			b.WriteString(s[i : i+end+2])
		}
		i += end + 1
	}
	return b.String()
}
