package hl7

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a field path does not resolve to any
// existing location in the message.
var ErrNotFound = errors.New("field path not found")

// Cell is a mutable handle on one addressed location: one repetition of a
// field, or a component or subcomponent inside it.
type Cell struct {
	seg    *Segment
	delims Delimiters
	field  int // 1-based
	rep    int // 0-based
	comp   int // 1-based, 0 = whole repetition
	sub    int // 1-based, 0 = whole component
}

func (c Cell) level() level {
	switch {
	case c.sub > 0:
		return levelSubcomponent
	case c.comp > 0:
		return levelComponent
	default:
		return levelRepetition
	}
}

// Value returns the text at the cell with escape sequences for the data
// delimiters of its level decoded, or "" when it has not been populated.
func (c Cell) Value() string {
	return unescapeValue(c.raw(), c.delims, c.level())
}

func (c Cell) raw() string {
	if c.field > len(c.seg.Fields) {
		return ""
	}
	f := c.seg.Fields[c.field-1]
	if c.rep >= len(f) {
		return ""
	}
	r := f[c.rep]
	if c.comp == 0 {
		return r.encode(c.delims)
	}
	if c.comp > len(r) {
		return ""
	}
	comp := r[c.comp-1]
	if c.sub == 0 {
		return comp.encode(c.delims)
	}
	if c.sub > len(comp) {
		return ""
	}
	return comp[c.sub-1]
}

// Set stores value at the cell. Delimiters below the addressed level split
// the value, so "DOE^JOHN" written to a whole field becomes two components.
// Field and repetition separators, the escape character and line breaks are
// escaped, as are component and subcomponent separators at the levels
// where they are data. The cell is untouched when Set fails.
func (c Cell) Set(value string) error {
	value, err := escapeValue(value, c.delims, c.level())
	if err != nil {
		return err
	}

	s := c.seg
	for len(s.Fields) < c.field {
		s.Fields = append(s.Fields, Field{Repetition{Component{""}}})
	}
	for len(s.Fields[c.field-1]) <= c.rep {
		s.Fields[c.field-1] = append(s.Fields[c.field-1], Repetition{Component{""}})
	}

	f := s.Fields[c.field-1]
	if c.comp == 0 {
		f[c.rep] = parseRepetition(value, c.delims)
		return nil
	}
	for len(f[c.rep]) < c.comp {
		f[c.rep] = append(f[c.rep], Component{""})
	}
	if c.sub == 0 {
		f[c.rep][c.comp-1] = parseComponent(value, c.delims)
		return nil
	}
	comp := f[c.rep][c.comp-1]
	for len(comp) < c.sub {
		comp = append(comp, "")
	}
	comp[c.sub-1] = value
	f[c.rep][c.comp-1] = comp
	return nil
}

// Resolve returns the cells a path addresses. It never mutates the message.
func Resolve(m *Message, p FieldPath) ([]Cell, error) {
	segs := m.SegmentsNamed(p.Segment)
	switch {
	case p.Occurrence > 0:
		if p.Occurrence > len(segs) {
			return nil, fmt.Errorf("%w: %s: message has %d %s segment(s)", ErrNotFound, p, len(segs), p.Segment)
		}
		segs = segs[p.Occurrence-1 : p.Occurrence]
	case p.Anchored && len(segs) > 0:
		segs = segs[:1]
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: %s: no %s segment", ErrNotFound, p, p.Segment)
	}

	var cells []Cell
	for _, seg := range segs {
		reps := 1
		if p.Field <= len(seg.Fields) && len(seg.Fields[p.Field-1]) > 0 {
			reps = len(seg.Fields[p.Field-1])
		}

		if p.Repetition > 0 {
			if p.Repetition > reps {
				return nil, fmt.Errorf("%w: %s: field has %d repetition(s)", ErrNotFound, p, reps)
			}
			cells = append(cells, newCell(m, seg, p, p.Repetition-1))
			continue
		}
		for r := 0; r < reps; r++ {
			cells = append(cells, newCell(m, seg, p, r))
		}
	}
	return cells, nil
}

func newCell(m *Message, seg *Segment, p FieldPath, rep int) Cell {
	return Cell{seg: seg, delims: m.Delims, field: p.Field, rep: rep, comp: p.Component, sub: p.Subcomponent}
}

// Apply sets every cell the path addresses to value. With rootRelative the
// path is anchored at the message root; otherwise it is used verbatim. On
// error the message is left unchanged.
func Apply(m *Message, path, value string, rootRelative bool) error {
	p, err := ParsePath(EffectivePath(path, rootRelative))
	if err != nil {
		return err
	}
	if p.Subcomponent > 0 && m.Delims.Subcomponent == 0 {
		return fmt.Errorf("%w: %s: message declares no subcomponent separator", ErrInvalidPath, p)
	}
	cells, err := Resolve(m, p)
	if err != nil {
		return err
	}
	// Every cell shares the level and delimiters, so a value Set rejects is
	// rejected by the first cell before anything changes.
	for _, c := range cells {
		if err := c.Set(value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value of the first cell a path addresses.
func Get(m *Message, path string) (string, error) {
	p, err := ParsePath(path)
	if err != nil {
		return "", err
	}
	cells, err := Resolve(m, p)
	if err != nil {
		return "", err
	}
	return cells[0].Value(), nil
}
