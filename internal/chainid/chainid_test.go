package chainid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormat(t *testing.T) {
	id := New()
	require.True(t, Valid(id), "generated id %q must be valid", id)
	assert.Len(t, id, len(Prefix)+8+1+12)
}

func TestNewUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := New()
		_, dup := seen[id]
		require.False(t, dup, "duplicate chain id %q", id)
		seen[id] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"CHN-DEADBEEF-0123456789AB", true},
		{"CHN-deadbeef-0123456789ab", true},
		{"CHN-DEADBEEF-0123456789", false},
		{"CHN-DEADBEEF0123456789AB", false},
		{"XYZ-DEADBEEF-0123456789AB", false},
		{"CHN-NOTHEX!!-0123456789AB", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, Valid(c.in), "input %q", c.in)
	}
}
