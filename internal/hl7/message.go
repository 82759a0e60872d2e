// Package hl7 holds the structural model of an HL7 v2 message: segments,
// fields, repetitions, components and subcomponents, split on the delimiters
// declared in MSH-1 and MSH-2. It knows nothing about message schemas; it only
// parses enough structure to address and rewrite fields and to encode the
// message back byte-for-byte.
package hl7

import (
	"errors"
	"fmt"
	"strings"
)

// SegmentTerminator separates segments on the wire.
const SegmentTerminator = '\r'

var (
	// ErrInvalidMessage is returned when raw text does not start with a usable MSH segment.
	ErrInvalidMessage = errors.New("invalid HL7 message")
)

// Delimiters are the encoding characters of a message. Escape and
// Subcomponent are zero when MSH-2 does not declare them.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// DefaultDelimiters returns |^~\&.
func DefaultDelimiters() Delimiters {
	return Delimiters{Field: '|', Component: '^', Repetition: '~', Escape: '\\', Subcomponent: '&'}
}

// Component is a list of subcomponents.
type Component []string

// Repetition is one occurrence of a field, split into components.
type Repetition []Component

// Field is the list of repetitions of one field.
type Field []Repetition

// Segment is a named, ordered group of fields. Fields[i] holds field i+1.
// For MSH, Fields[0] is the field separator and Fields[1] the encoding
// characters, both kept verbatim.
type Segment struct {
	Name   string
	Fields []Field
}

// Message is a parsed HL7 v2 message.
type Message struct {
	Delims   Delimiters
	Segments []*Segment
}

// NormalizeTerminators turns "\r\n" and "\n" line endings into the
// segment terminator.
func NormalizeTerminators(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", string(SegmentTerminator))
}

// Parse splits raw text (segments terminated by '\r') into a Message.
func Parse(raw string) (*Message, error) {
	raw = strings.TrimRight(raw, "\r\n")
	if !strings.HasPrefix(raw, "MSH") || len(raw) < 8 {
		return nil, fmt.Errorf("%w: missing MSH header", ErrInvalidMessage)
	}

	delims, err := readDelimiters(raw)
	if err != nil {
		return nil, err
	}

	msg := &Message{Delims: delims}
	for _, line := range strings.Split(raw, string(SegmentTerminator)) {
		if len(line) == 0 {
			continue
		}
		seg, err := parseSegment(line, delims)
		if err != nil {
			return nil, err
		}
		msg.Segments = append(msg.Segments, seg)
	}
	return msg, nil
}

func readDelimiters(raw string) (Delimiters, error) {
	d := DefaultDelimiters()
	d.Field = raw[3]

	enc := raw[4:]
	if i := strings.IndexByte(enc, d.Field); i >= 0 {
		enc = enc[:i]
	}
	if i := strings.IndexByte(enc, SegmentTerminator); i >= 0 {
		enc = enc[:i]
	}
	if len(enc) < 2 {
		return d, fmt.Errorf("%w: encoding characters %q too short", ErrInvalidMessage, enc)
	}

	d.Component = enc[0]
	d.Repetition = enc[1]
	d.Escape, d.Subcomponent = 0, 0
	if len(enc) > 2 {
		d.Escape = enc[2]
	}
	if len(enc) > 3 {
		d.Subcomponent = enc[3]
	}
	return d, nil
}

func parseSegment(line string, d Delimiters) (*Segment, error) {
	parts := strings.Split(line, string(d.Field))
	name := parts[0]
	if len(name) != 3 {
		return nil, fmt.Errorf("%w: bad segment name %q", ErrInvalidMessage, name)
	}

	seg := &Segment{Name: name}
	if name == "MSH" {
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: MSH without encoding characters", ErrInvalidMessage)
		}
		seg.Fields = append(seg.Fields, literalField(string(d.Field)), literalField(parts[1]))
		parts = parts[2:]
	} else {
		parts = parts[1:]
	}

	for _, p := range parts {
		seg.Fields = append(seg.Fields, parseField(p, d))
	}
	return seg, nil
}

func literalField(s string) Field {
	return Field{Repetition{Component{s}}}
}

func parseField(s string, d Delimiters) Field {
	reps := strings.Split(s, string(d.Repetition))
	f := make(Field, len(reps))
	for i, r := range reps {
		f[i] = parseRepetition(r, d)
	}
	return f
}

func parseRepetition(s string, d Delimiters) Repetition {
	comps := strings.Split(s, string(d.Component))
	r := make(Repetition, len(comps))
	for i, c := range comps {
		r[i] = parseComponent(c, d)
	}
	return r
}

func parseComponent(s string, d Delimiters) Component {
	return strings.Split(s, string(d.Subcomponent))
}

// Encode renders the message with '\r' segment terminators.
func (m *Message) Encode() string {
	var b strings.Builder
	for i, seg := range m.Segments {
		if i > 0 {
			b.WriteByte(SegmentTerminator)
		}
		b.WriteString(seg.encode(m.Delims))
	}
	b.WriteByte(SegmentTerminator)
	return b.String()
}

// String renders the message for display, one segment per line.
func (m *Message) String() string {
	return strings.ReplaceAll(strings.TrimRight(m.Encode(), "\r"), "\r", "\n")
}

func (s *Segment) encode(d Delimiters) string {
	var b strings.Builder
	b.WriteString(s.Name)

	fields := s.Fields
	if s.Name == "MSH" && len(fields) >= 2 {
		b.WriteByte(d.Field)
		b.WriteString(fields[1].encode(d))
		fields = fields[2:]
	}
	for _, f := range fields {
		b.WriteByte(d.Field)
		b.WriteString(f.encode(d))
	}
	return b.String()
}

func (f Field) encode(d Delimiters) string {
	reps := make([]string, len(f))
	for i, r := range f {
		reps[i] = r.encode(d)
	}
	return strings.Join(reps, string(d.Repetition))
}

func (r Repetition) encode(d Delimiters) string {
	comps := make([]string, len(r))
	for i, c := range r {
		comps[i] = c.encode(d)
	}
	return strings.Join(comps, string(d.Component))
}

func (c Component) encode(d Delimiters) string {
	return strings.Join(c, string(d.Subcomponent))
}

// Segment returns the first segment with the given name, or nil.
func (m *Message) Segment(name string) *Segment {
	for _, s := range m.Segments {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// SegmentsNamed returns every segment with the given name, in message order.
func (m *Message) SegmentsNamed(name string) []*Segment {
	var out []*Segment
	for _, s := range m.Segments {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Field returns the encoded value of field i (1-based), or "" when absent.
func (s *Segment) Field(i int, d Delimiters) string {
	if i < 1 || i > len(s.Fields) {
		return ""
	}
	return s.Fields[i-1].encode(d)
}

// Component returns component c (1-based) of the first repetition of field i.
func (s *Segment) Component(i, c int, d Delimiters) string {
	if i < 1 || i > len(s.Fields) || len(s.Fields[i-1]) == 0 {
		return ""
	}
	rep := s.Fields[i-1][0]
	if c < 1 || c > len(rep) {
		return ""
	}
	return rep[c-1].encode(d)
}

// Value reads field i of the first segment named seg.
func (m *Message) Value(seg string, i int) string {
	s := m.Segment(seg)
	if s == nil {
		return ""
	}
	return s.Field(i, m.Delims)
}

// ControlID returns MSH-10.
func (m *Message) ControlID() string { return m.Value("MSH", 10) }

// Type returns MSH-9, e.g. "ORU^R01".
func (m *Message) Type() string { return m.Value("MSH", 9) }

// Timestamp returns MSH-7.
func (m *Message) Timestamp() string { return m.Value("MSH", 7) }

// SetValue replaces field i of the first segment named seg, padding the
// segment with empty fields when needed.
func (m *Message) SetValue(seg string, i int, value string) error {
	return Apply(m, fmt.Sprintf("/%s-%d", seg, i), value, false)
}
