// Package prepare stamps outgoing HL7 messages: a fresh control id in
// MSH-10, the send time in MSH-7, then caller-supplied field overrides in
// the order they were given.
package prepare

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hl7tools/internal/hl7"
)

// TimestampLayout is HL7 DTM with four fractional digits and zone offset.
const TimestampLayout = "20060102150405.0000-0700"

// ErrMalformedOverride is returned by ParseOverride for text without '='.
var ErrMalformedOverride = errors.New("override must have the form path=value")

// IDSource produces control ids.
type IDSource interface {
	Next() string
}

// Override sets the field at Path to Value.
type Override struct {
	Path  string
	Value string
}

func (o Override) String() string { return o.Path + "=" + o.Value }

// ParseOverride splits "path=value" at the first '='. The value may be empty.
func ParseOverride(s string) (Override, error) {
	path, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return Override{}, fmt.Errorf("%w: %q", ErrMalformedOverride, s)
	}
	return Override{Path: strings.TrimSpace(path), Value: value}, nil
}

// Options select which preparation steps run.
type Options struct {
	GenerateID     bool
	StampTimestamp bool
	Overrides      []Override
	RootRelative   bool
}

// DefaultOptions enables every step with root-relative override paths.
func DefaultOptions() Options {
	return Options{GenerateID: true, StampTimestamp: true, RootRelative: true}
}

// OverrideError reports the override that failed to apply.
type OverrideError struct {
	Override Override
	Err      error
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("override %s: %v", e.Override, e.Err)
}

func (e *OverrideError) Unwrap() error { return e.Err }

// Preparer rewrites messages in place before they are sent.
type Preparer struct {
	ids    IDSource
	now    func() time.Time
	layout string
	logger *zap.Logger
}

// Option configures a Preparer.
type Option func(*Preparer)

// WithClock sets the clock used for MSH-7.
func WithClock(now func() time.Time) Option {
	return func(p *Preparer) { p.now = now }
}

// WithTimestampLayout sets the layout used for MSH-7.
func WithTimestampLayout(layout string) Option {
	return func(p *Preparer) {
		if layout != "" {
			p.layout = layout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Preparer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns a Preparer drawing control ids from ids.
func New(ids IDSource, opts ...Option) *Preparer {
	p := &Preparer{
		ids:    ids,
		now:    time.Now,
		layout: TimestampLayout,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare mutates msg and returns it. The first override that does not
// resolve stops preparation and is returned as an *OverrideError.
func (p *Preparer) Prepare(msg *hl7.Message, opts Options) (*hl7.Message, error) {
	if opts.GenerateID {
		id := p.ids.Next()
		if err := msg.SetValue("MSH", 10, id); err != nil {
			return nil, fmt.Errorf("set control id: %w", err)
		}
		p.logger.Debug("Control id assigned", zap.String("control_id", id))
	}

	if opts.StampTimestamp {
		if err := msg.SetValue("MSH", 7, p.now().Format(p.layout)); err != nil {
			return nil, fmt.Errorf("set timestamp: %w", err)
		}
	}

	for _, o := range opts.Overrides {
		if err := hl7.Apply(msg, o.Path, o.Value, opts.RootRelative); err != nil {
			return nil, &OverrideError{Override: o, Err: err}
		}
		p.logger.Debug("Override applied", zap.String("path", o.Path), zap.String("value", o.Value))
	}
	return msg, nil
}
