package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratorRejectsOutOfRangeLength(t *testing.T) {
	for _, length := range []int{0, 5, 13, -1} {
		_, err := NewGenerator(length)
		assert.Error(t, err, "length %d", length)
	}
}

func TestGeneratorProducesValidCodes(t *testing.T) {
	for _, length := range []int{MinCodeLength, 8, MaxCodeLength} {
		gen, err := NewGenerator(length)
		require.NoError(t, err)
		assert.Equal(t, length, gen.Length())

		for i := 0; i < 200; i++ {
			code := gen.Generate()
			assert.Len(t, code, length)
			assert.True(t, ValidCode(code), "generated code %q is not valid", code)
		}
	}
}

func TestGeneratorSpreadsCodes(t *testing.T) {
	gen, err := NewGenerator(DefaultCodeLength)
	require.NoError(t, err)

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		seen[gen.Generate()] = struct{}{}
	}
	// 1000 draws from 36^6 should essentially never collide.
	assert.Greater(t, len(seen), 995)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeCode("ab12cd"))
	assert.Equal(t, "AB12CD", NormalizeCode("  Ab12cD \n"))
	assert.Equal(t, "", NormalizeCode("   "))
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"AB12CD", true},
		{"ABCDEFGHIJKL", true},
		{"AB12C", false},
		{"ABCDEFGHIJKLM", false},
		{"ab12cd", false},
		{"AB-2CD", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidCode(tt.code), "ValidCode(%q)", tt.code)
	}
}
