package hl7

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned for field paths that do not follow the path grammar.
var ErrInvalidPath = errors.New("invalid field path")

// RootMarker anchors a field path at the message root.
const RootMarker = "/"

// FieldPath addresses one field, component or subcomponent.
//
//	[/]SEG[(n)]-F[(r)][.C[.S]]
//
// A zero Occurrence means "first occurrence" when Anchored and "every
// occurrence" otherwise. A zero Repetition means every existing repetition.
// Zero Component/Subcomponent address the whole enclosing level.
type FieldPath struct {
	Anchored     bool
	Segment      string
	Occurrence   int
	Field        int
	Repetition   int
	Component    int
	Subcomponent int
}

var pathPattern = regexp.MustCompile(`^(/)?([A-Za-z][A-Za-z0-9]{2})(?:\((\d+)\))?[-.](\d+)(?:\((\d+)\))?(?:\.(\d+))?(?:\.(\d+))?$`)

// ParsePath parses the textual form of a field path.
func ParsePath(s string) (FieldPath, error) {
	m := pathPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return FieldPath{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}

	p := FieldPath{
		Anchored: m[1] != "",
		Segment:  strings.ToUpper(m[2]),
	}

	var err error
	for _, slot := range []struct {
		dst *int
		src string
	}{
		{&p.Occurrence, m[3]},
		{&p.Field, m[4]},
		{&p.Repetition, m[5]},
		{&p.Component, m[6]},
		{&p.Subcomponent, m[7]},
	} {
		if slot.src == "" {
			continue
		}
		if *slot.dst, err = strconv.Atoi(slot.src); err != nil || *slot.dst < 1 {
			return FieldPath{}, fmt.Errorf("%w: %q: indices are 1-based", ErrInvalidPath, s)
		}
	}

	if p.Segment == "MSH" && p.Field <= 2 {
		return FieldPath{}, fmt.Errorf("%w: %q: MSH-1 and MSH-2 hold the encoding characters", ErrInvalidPath, s)
	}
	return p, nil
}

func (p FieldPath) String() string {
	var b strings.Builder
	if p.Anchored {
		b.WriteString(RootMarker)
	}
	b.WriteString(p.Segment)
	if p.Occurrence > 0 {
		fmt.Fprintf(&b, "(%d)", p.Occurrence)
	}
	fmt.Fprintf(&b, "-%d", p.Field)
	if p.Repetition > 0 {
		fmt.Fprintf(&b, "(%d)", p.Repetition)
	}
	if p.Component > 0 {
		fmt.Fprintf(&b, ".%d", p.Component)
	}
	if p.Subcomponent > 0 {
		fmt.Fprintf(&b, ".%d", p.Subcomponent)
	}
	return b.String()
}

// EffectivePath prefixes path with the root marker when rootRelative is set
// and the path is not already anchored.
func EffectivePath(path string, rootRelative bool) string {
	path = strings.TrimSpace(path)
	if rootRelative && !strings.HasPrefix(path, RootMarker) {
		return RootMarker + path
	}
	return path
}
