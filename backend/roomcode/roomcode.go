// Package roomcode generates and normalizes shareable room codes.
package roomcode

import (
	"strings"

	gonanoid "github.com/jaevor/go-nanoid"
)

const (
	// Length of every generated room code.
	Length = 6

	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

type Generator struct {
	gen func() string
}

func NewGenerator() (*Generator, error) {
	gen, err := gonanoid.CustomASCII(alphabet, Length)
	if err != nil {
		return nil, err
	}
	return &Generator{gen: gen}, nil
}

// Next returns a fresh room code. Uniqueness against live rooms is the
// caller's concern.
func (g *Generator) Next() string {
	return g.gen()
}

// Normalize maps a client-supplied code to its canonical uppercase form.
func Normalize(code string) string {
	return strings.ToUpper(code)
}
