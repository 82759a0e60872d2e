// Package controlid generates message control ids: a millisecond timestamp
// (yyyyMMddHHmmssSSS) followed by a three-digit sequence that cycles
// modulo 100.
package controlid

import (
	"fmt"
	"sync"
	"time"
)

// Length is the fixed length of a generated id.
const Length = 20

const stampLayout = "20060102150405"

// Generator hands out control ids. The zero value is not usable; call New.
type Generator struct {
	mu   sync.Mutex
	seq  int
	last string // last timestamp part issued
	now  func() time.Time
}

// New returns a generator reading the wall clock.
func New() *Generator {
	return NewWithClock(time.Now)
}

// NewWithClock returns a generator reading the given clock.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{seq: -1, now: now}
}

// Next returns the next id. The timestamp part is the clock's local wall
// time and never sorts below the previous one: when the wall time steps
// back, from a clock adjustment or a daylight-saving fall-back, the last
// timestamp is reused until the clock catches up. Two ids collide only if
// the same timestamp is issued at least 100 times.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	seq := g.seq % 100

	t := g.now()
	stamp := fmt.Sprintf("%s%03d", t.Format(stampLayout), t.Nanosecond()/int(time.Millisecond))
	if stamp < g.last {
		stamp = g.last
	}
	g.last = stamp

	return fmt.Sprintf("%s%03d", stamp, seq)
}
