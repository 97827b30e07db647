package relay

import (
	"fmt"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
)

// CodeAlphabet is the set of characters a room code is drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// MinCodeLength and MaxCodeLength bound the length of a room code.
	MinCodeLength = 6
	MaxCodeLength = 12

	// DefaultCodeLength gives a 36^6 code space.
	DefaultCodeLength = MinCodeLength
)

// CodeSource produces candidate room codes. The registry checks every
// candidate against the open rooms before accepting it.
type CodeSource interface {
	Generate() string
}

// Generator produces short, human-shareable room codes.
type Generator struct {
	next   func() string
	length int
}

// NewGenerator returns a Generator producing codes of the given length.
// A length outside MinCodeLength..MaxCodeLength is rejected.
func NewGenerator(length int) (*Generator, error) {
	if length < MinCodeLength || length > MaxCodeLength {
		return nil, fmt.Errorf("room code length %d out of range [%d, %d]", length, MinCodeLength, MaxCodeLength)
	}
	next, err := nanoid.CustomASCII(CodeAlphabet, length)
	if err != nil {
		return nil, fmt.Errorf("create code generator: %w", err)
	}
	return &Generator{next: next, length: length}, nil
}

// Generate returns a new candidate code.
func (g *Generator) Generate() string {
	return g.next()
}

// Length reports the length of the generated codes.
func (g *Generator) Length() int {
	return g.length
}

// NormalizeCode trims and upper-cases a user supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is a well formed, normalized room code.
func ValidCode(code string) bool {
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
