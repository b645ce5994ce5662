package machine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"fleetmaint/internal/domainerr"
)

func TestNewSerialNumberNormalizes(t *testing.T) {
	t.Parallel()

	s, err := NewSerialNumber("  abc-1 ")
	require.NoError(t, err)
	assert.Equal(t, "ABC-1", s.Value())
	assert.Equal(t, "ABC-1", s.String())
	assert.False(t, s.IsZero())
}

func TestNewSerialNumberRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"too short", "AB"},
		{"too long", strings.Repeat("A", MaxSerialLength+1)},
		{"space inside", "AB C"},
		{"dot", "AB.C"},
		{"accented", "ÁBC"},
		{"only separators", "-_-"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSerialNumber(tt.raw)
			require.Error(t, err)
			assert.True(t, domainerr.HasCode(err, domainerr.CodeInvalidSerialNumber))
		})
	}
}

func TestNewSerialNumberBounds(t *testing.T) {
	t.Parallel()

	_, err := NewSerialNumber("ABC")
	require.NoError(t, err)
	_, err = NewSerialNumber(strings.Repeat("9", MaxSerialLength))
	require.NoError(t, err)
}

func TestSerialNumberMasked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"ABC", "AB**"},
		{"ABCD", "AB**"},
		{"ABCDE", "AB****DE"},
		{"ABCDEFG", "AB****FG"},
		{"CAT320D-0001", "CAT****01"},
	}
	for _, tt := range tests {
		tt := tt
		assert.Equal(t, tt.want, MustSerialNumber(tt.raw).Masked(), tt.raw)
	}
	assert.Empty(t, SerialNumber{}.Masked())
}

func TestSerialNumberMatchesFailsClosed(t *testing.T) {
	t.Parallel()

	s := MustSerialNumber("CAT-320")
	assert.True(t, s.Matches(`^CAT-\d+$`))
	assert.False(t, s.Matches(`^KOM`))
	assert.False(t, s.Matches(`([`))
}

func TestSerialNumberText(t *testing.T) {
	t.Parallel()

	var s SerialNumber
	require.NoError(t, s.UnmarshalText([]byte("xz-9")))
	assert.True(t, s.Equals(MustSerialNumber("XZ-9")))

	out, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "XZ-9", string(out))

	require.Error(t, s.UnmarshalText([]byte("x")))
}

func TestSerialNumberProperties(t *testing.T) {
	t.Parallel()

	valid := rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9_-]{2,40}`)

	rapid.Check(t, func(t *rapid.T) {
		raw := valid.Draw(t, "raw")
		pad := rapid.StringMatching(` {0,3}`).Draw(t, "pad")

		s, err := NewSerialNumber(pad + raw + pad)
		if err != nil {
			t.Fatalf("valid serial %q rejected: %v", raw, err)
		}
		if s.Value() != strings.ToUpper(raw) {
			t.Fatalf("got %q, want %q", s.Value(), strings.ToUpper(raw))
		}

		again, err := NewSerialNumber(s.Value())
		if err != nil || !again.Equals(s) {
			t.Fatalf("normalization is not idempotent for %q", s.Value())
		}

		masked := s.Masked()
		if masked == s.Value() || !strings.Contains(masked, "**") {
			t.Fatalf("mask %q leaks %q", masked, s.Value())
		}
	})
}
