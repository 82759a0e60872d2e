package hl7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		in   string
		want FieldPath
	}{
		{"PID-5", FieldPath{Segment: "PID", Field: 5}},
		{"/PID-5", FieldPath{Anchored: true, Segment: "PID", Field: 5}},
		{"pid.5.1", FieldPath{Segment: "PID", Field: 5, Component: 1}},
		{"/OBX(2)-5", FieldPath{Anchored: true, Segment: "OBX", Occurrence: 2, Field: 5}},
		{"PID-3(2).4.1", FieldPath{Segment: "PID", Field: 3, Repetition: 2, Component: 4, Subcomponent: 1}},
		{"ZPD-1", FieldPath{Segment: "ZPD", Field: 1}},
		{"MSH-10", FieldPath{Segment: "MSH", Field: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, in := range []string{"", "PID", "PID-", "PID-0", "PI-5", "PID-5.1.2.3", "PID-x", "MSH-1", "MSH-2", "PID(0)-1", "//PID-1"} {
		_, err := ParsePath(in)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", in)
	}
}

func TestFieldPathString(t *testing.T) {
	for _, s := range []string{"PID-5", "/OBX(2)-5", "PID-3(2).4.1"} {
		p, err := ParsePath(s)
		require.NoError(t, err)
		assert.Equal(t, s, p.String())
	}
}

func TestEffectivePath(t *testing.T) {
	assert.Equal(t, "/PID-5", EffectivePath("PID-5", true))
	assert.Equal(t, "/PID-5", EffectivePath("/PID-5", true))
	assert.Equal(t, "PID-5", EffectivePath("PID-5", false))
}

func TestApplyThenGet(t *testing.T) {
	tests := []struct {
		path  string
		value string
	}{
		{"PID-5", "ROE^JANE"},
		{"PID-5.2", "JANET"},
		{"PID-5.1.2", "SUB"},
		{"OBR-4.2", "Panel"},
		{"MSH-10", "NEWID"},
		{"PID-20", "far field"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			msg, err := Parse(oru)
			require.NoError(t, err)

			require.NoError(t, Apply(msg, tt.path, tt.value, true))
			got, err := Get(msg, EffectivePath(tt.path, true))
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestApplyComponentKeepsSiblings(t *testing.T) {
	msg, err := Parse(oru)
	require.NoError(t, err)

	require.NoError(t, Apply(msg, "PID-5.2", "JACK", true))
	assert.Equal(t, "DOE^JACK", msg.Value("PID", 5))
}

func TestApplyNotFoundLeavesMessageUnchanged(t *testing.T) {
	for _, path := range []string{"EVN-1", "OBX(3)-5", "PID-3(3)", "PID-5(2).1"} {
		t.Run(path, func(t *testing.T) {
			msg, err := Parse(oru)
			require.NoError(t, err)

			err = Apply(msg, path, "x", true)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.Equal(t, oru, msg.Encode())
		})
	}
}

func TestApplyInvalidPath(t *testing.T) {
	msg, err := Parse(oru)
	require.NoError(t, err)

	assert.ErrorIs(t, Apply(msg, "not a path", "x", true), ErrInvalidPath)
	assert.Equal(t, oru, msg.Encode())
}

func TestApplyRepeatingFieldAddressesEveryRepetition(t *testing.T) {
	msg, err := Parse(oru)
	require.NoError(t, err)

	require.NoError(t, Apply(msg, "PID-3.4", "HOSP", true))
	assert.Equal(t, "12345^^^HOSP~67890^^^HOSP", msg.Value("PID", 3))

	require.NoError(t, Apply(msg, "PID-3(2)", "X", true))
	assert.Equal(t, "12345^^^HOSP~X", msg.Value("PID", 3))
}

func TestApplyRootedVersusRelative(t *testing.T) {
	t.Run("rooted addresses the first occurrence", func(t *testing.T) {
		msg, err := Parse(oru)
		require.NoError(t, err)

		require.NoError(t, Apply(msg, "OBX-8", "H", true))
		obx := msg.SegmentsNamed("OBX")
		assert.Equal(t, "H", obx[0].Field(8, msg.Delims))
		assert.Equal(t, "N", obx[1].Field(8, msg.Delims))
	})

	t.Run("literal relative path addresses every occurrence", func(t *testing.T) {
		msg, err := Parse(oru)
		require.NoError(t, err)

		require.NoError(t, Apply(msg, "OBX-8", "H", false))
		for _, obx := range msg.SegmentsNamed("OBX") {
			assert.Equal(t, "H", obx.Field(8, msg.Delims))
		}
	})

	t.Run("literal path with occurrence", func(t *testing.T) {
		msg, err := Parse(oru)
		require.NoError(t, err)

		require.NoError(t, Apply(msg, "OBX(2)-8", "L", false))
		obx := msg.SegmentsNamed("OBX")
		assert.Equal(t, "N", obx[0].Field(8, msg.Delims))
		assert.Equal(t, "L", obx[1].Field(8, msg.Delims))
	})
}

func TestApplyLastWriteWins(t *testing.T) {
	msg, err := Parse(oru)
	require.NoError(t, err)

	require.NoError(t, Apply(msg, "PID-2", "1", true))
	require.NoError(t, Apply(msg, "PID-2", "2", true))
	assert.Equal(t, "2", msg.Value("PID", 2))
}

func TestApplySurvivesEncodeAndReparse(t *testing.T) {
	tests := []struct {
		path  string
		value string
		wire  string
	}{
		{"PID-5.1", "X|Y", `PID|1||12345~67890||X\F\Y^JOHN`},
		{"PID-5.1", "X\rZZZ|1", `PID|1||12345~67890||X\X0D\ZZZ\F\1^JOHN`},
		{"PID-3", "A~B", `PID|1||A\R\B~A\R\B||DOE^JOHN`},
		{"PID-5.2", "R^S", `PID|1||12345~67890||DOE^R\S\S`},
		{"PID-5.1.2", "a&b", `PID|1||12345~67890||DOE&a\T\b^JOHN`},
		{"PID-5", `C:\temp`, `PID|1||12345~67890||C:\E\temp`},
		{"PID-5", "ROE^JANE&Q", `PID|1||12345~67890||ROE^JANE&Q`},
	}

	for _, tt := range tests {
		t.Run(tt.path+"="+tt.value, func(t *testing.T) {
			msg, err := Parse(oru)
			require.NoError(t, err)
			require.NoError(t, Apply(msg, tt.path, tt.value, true))

			wire := msg.Encode()
			assert.Contains(t, wire, tt.wire+"\r")

			again, err := Parse(wire)
			require.NoError(t, err)
			assert.Len(t, again.Segments, len(msg.Segments))
			assert.Equal(t, wire, again.Encode())

			got, err := Get(again, EffectivePath(tt.path, true))
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestApplyKeepsRepetitionCountOnWire(t *testing.T) {
	msg, err := Parse(oru)
	require.NoError(t, err)

	require.NoError(t, Apply(msg, "PID-3(1)", "A~B", true))
	again, err := Parse(msg.Encode())
	require.NoError(t, err)
	assert.Len(t, again.Segment("PID").Fields[2], 2)

	require.NoError(t, Apply(again, "PID-3(2)", "C", true))
	assert.Equal(t, `A\R\B~C`, again.Value("PID", 3))
}

func TestApplyWithoutEscapeCharacter(t *testing.T) {
	msg, err := Parse("MSH|^~|APP|FAC\rPID|1||7\r")
	require.NoError(t, err)
	assert.Equal(t, byte(0), msg.Delims.Escape)
	assert.Equal(t, byte(0), msg.Delims.Subcomponent)

	require.NoError(t, Apply(msg, "PID-3", "plain^value", true))

	before := msg.Encode()
	assert.ErrorIs(t, Apply(msg, "PID-3", "a|b", true), ErrInvalidValue)
	assert.ErrorIs(t, Apply(msg, "PID-3.1.1", "x", true), ErrInvalidPath)
	assert.Equal(t, before, msg.Encode())
}

func TestGetKeepsForeignEscapes(t *testing.T) {
	msg, err := Parse("MSH|^~\\&|APP\rNTE|1||bold \\H\\on\\N\\ a\\S\\b\r")
	require.NoError(t, err)

	got, err := Get(msg, "NTE-3")
	require.NoError(t, err)
	assert.Equal(t, `bold \H\on\N\ a\S\b`, got)

	got, err = Get(msg, "NTE-3.1")
	require.NoError(t, err)
	assert.Equal(t, `bold \H\on\N\ a^b`, got)
}
