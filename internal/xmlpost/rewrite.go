// Package xmlpost rewrites XML documents with path queries and POSTs them
// to an HTTP endpoint.
package xmlpost

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

var (
	// ErrNotFound is returned when a path matches no element.
	ErrNotFound = errors.New("xml path matched nothing")
	// ErrInvalidPath is returned for paths etree cannot compile.
	ErrInvalidPath = errors.New("invalid xml path")
	// ErrMalformedOverride is returned for override text without '='.
	ErrMalformedOverride = errors.New("override must have the form path=value")
)

// Override sets the text of every element Path matches, or the attribute
// named after a trailing "/@name".
type Override struct {
	Path  string
	Value string
}

// ParseOverride splits "path=value" at the first '=' that is not inside a
// [predicate], so "item[@id='3']=x" keeps its predicate.
func ParseOverride(s string) (Override, error) {
	depth := 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case '=':
			if depth == 0 {
				path := strings.TrimSpace(s[:i])
				if path == "" {
					return Override{}, fmt.Errorf("%w: %q", ErrMalformedOverride, s)
				}
				return Override{Path: path, Value: s[i+1:]}, nil
			}
		}
	}
	return Override{}, fmt.Errorf("%w: %q", ErrMalformedOverride, s)
}

// Load parses an XML file.
func Load(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, err
	}
	return doc, nil
}

// Rewrite applies overrides in order. It stops at the first override that
// fails; earlier overrides stay applied.
func Rewrite(doc *etree.Document, overrides []Override) error {
	for _, o := range overrides {
		if err := apply(doc, o); err != nil {
			return fmt.Errorf("override %s=%s: %w", o.Path, o.Value, err)
		}
	}
	return nil
}

func apply(doc *etree.Document, o Override) error {
	elemPath, attr := o.Path, ""
	if i := strings.LastIndex(o.Path, "/@"); i >= 0 {
		elemPath, attr = o.Path[:i], o.Path[i+2:]
		if elemPath == "" {
			elemPath = "."
		}
	}

	p, err := etree.CompilePath(elemPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	elems := doc.FindElementsPath(p)
	if len(elems) == 0 {
		return ErrNotFound
	}
	for _, el := range elems {
		if attr != "" {
			el.CreateAttr(attr, o.Value)
		} else {
			el.SetText(o.Value)
		}
	}
	return nil
}

// Encode serializes doc.
func Encode(doc *etree.Document) ([]byte, error) {
	return doc.WriteToBytes()
}
