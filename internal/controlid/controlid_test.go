package controlid

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFormat(t *testing.T) {
	at := time.Date(2026, 2, 13, 9, 30, 5, 123_456_789, time.UTC)
	g := NewWithClock(func() time.Time { return at })

	assert.Equal(t, "20260213093005123000", g.Next())
	assert.Equal(t, "20260213093005123001", g.Next())
}

func TestSequenceCyclesWithinOneMillisecond(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewWithClock(func() time.Time { return at })

	for i := 0; i < 1000; i++ {
		id := g.Next()
		require.Len(t, id, Length)
		assert.Equal(t, fmt.Sprintf("%03d", i%100), id[17:], "call %d", i)
	}
}

func TestIdsNonDecreasingAcrossMilliseconds(t *testing.T) {
	at := time.Date(2026, 1, 1, 23, 59, 59, 990*int(time.Millisecond), time.UTC)
	g := NewWithClock(func() time.Time {
		at = at.Add(700 * time.Microsecond)
		return at
	})

	ids := make([]string, 200)
	for i := range ids {
		ids[i] = g.Next()
	}
	assert.True(t, sort.StringsAreSorted(timestamps(ids)))
}

func TestClockRegressionDoesNotGoBackwards(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC),
		time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	i := 0
	g := NewWithClock(func() time.Time {
		t := times[i]
		i++
		return t
	})

	first := g.Next()
	second := g.Next()
	assert.Equal(t, first[:17], second[:17])
}

func TestDefaultGenerator(t *testing.T) {
	g := New()
	assert.Len(t, g.Next(), Length)
	assert.Equal(t, "001", g.Next()[17:])
}

func timestamps(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id[:17]
	}
	return out
}

func TestDaylightSavingFallBackDoesNotGoBackwards(t *testing.T) {
	edt := time.FixedZone("EDT", -4*60*60)
	est := time.FixedZone("EST", -5*60*60)

	// 05:59:59.900Z and 06:00:00.100Z: the instant moves forward while the
	// local wall time falls back from 01:59 to 01:00.
	times := []time.Time{
		time.Date(2026, 11, 1, 1, 59, 59, 900*int(time.Millisecond), edt),
		time.Date(2026, 11, 1, 1, 0, 0, 100*int(time.Millisecond), est),
		time.Date(2026, 11, 1, 2, 0, 0, 0, est),
	}
	require.True(t, times[1].After(times[0]))

	i := 0
	g := NewWithClock(func() time.Time {
		t := times[i]
		i++
		return t
	})

	a, b, c := g.Next(), g.Next(), g.Next()
	assert.Equal(t, "20261101015959900000", a)
	assert.Equal(t, "20261101015959900001", b)
	assert.Equal(t, "20261101020000000002", c)
	assert.True(t, sort.StringsAreSorted([]string{a, b, c}))
}
