package idgen

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultRoomCodeSize = 6
	// Upper case letters and digits without I, O, 0 and 1.
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// RoomCodeGenerator generates short shareable watch-party codes.
type RoomCodeGenerator struct {
	size     int
	alphabet string
}

// NewRoomCodeGenerator creates a generator. size must be between 4 and 32.
func NewRoomCodeGenerator(size int) (*RoomCodeGenerator, error) {
	if size < 4 || size > 32 {
		return nil, fmt.Errorf("room code size must be between 4 and 32, got %d", size)
	}
	return &RoomCodeGenerator{
		size:     size,
		alphabet: RoomCodeAlphabet,
	}, nil
}

func (g *RoomCodeGenerator) Generate() (string, error) {
	id, err := gonanoid.Generate(g.alphabet, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	return id, nil
}

func (g *RoomCodeGenerator) Validate(id string) (bool, string) {
	if len(id) != g.size {
		return false, fmt.Sprintf("expected length %d, got %d", g.size, len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune(g.alphabet, c) {
			return false, fmt.Sprintf("character '%c' not in alphabet", c)
		}
	}
	return true, ""
}
