// Package codegen produces ticket codes and their scannable encodings.
package codegen

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/topcity/ticket-service/internal/domain"
)

const (
	DefaultPrefix      = "TCT"
	DefaultTokenBytes  = 6
	MinTokenBytes      = 4
	DefaultMaxAttempts = 5
	maxCodeLength      = 128
)

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generator builds codes of the form PREFIX-{eventID}-{TOKEN}.
type Generator struct {
	prefix      string
	tokenBytes  int
	maxAttempts int
	random      io.Reader
}

// Option customises a Generator.
type Option func(*Generator)

// WithRandom swaps the entropy source. Intended for tests.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// WithMaxAttempts bounds regeneration on code collisions.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// NewGenerator returns a generator. tokenBytes below MinTokenBytes is an error.
func NewGenerator(prefix string, tokenBytes int, opts ...Option) (*Generator, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if strings.Contains(prefix, "-") {
		return nil, fmt.Errorf("code prefix %q must not contain '-'", prefix)
	}
	for _, r := range prefix {
		if !codeRune(r) {
			return nil, fmt.Errorf("code prefix %q may only contain letters, digits and '_'", prefix)
		}
	}
	if tokenBytes < MinTokenBytes {
		return nil, fmt.Errorf("token bytes %d below minimum %d", tokenBytes, MinTokenBytes)
	}
	g := &Generator{
		prefix:      prefix,
		tokenBytes:  tokenBytes,
		maxAttempts: DefaultMaxAttempts,
		random:      rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate returns a fresh code for eventID.
func (g *Generator) Generate(eventID string) (string, error) {
	if err := g.CheckEventID(eventID); err != nil {
		return "", err
	}
	buf := make([]byte, g.tokenBytes)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return g.prefix + "-" + eventID + "-" + tokenEncoding.EncodeToString(buf), nil
}

// Allocate generates codes for eventID and hands each to insert until one
// is accepted. insert signals a collision with domain.ErrDuplicateCode; any
// other error aborts immediately.
func (g *Generator) Allocate(eventID string, insert func(code string) error) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code, err := g.Generate(eventID)
		if err != nil {
			return "", err
		}
		err = insert(code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrDuplicateCode) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %d attempts for event %s", domain.ErrCodeSpaceExhausted, g.maxAttempts, eventID)
}

// CheckEventID fails with domain.ErrInvalidInput unless every code built
// for eventID would pass WellFormed: only code-alphabet characters, and
// short enough to leave room for the prefix and token.
func (g *Generator) CheckEventID(eventID string) error {
	if eventID == "" {
		return fmt.Errorf("%w: event id required", domain.ErrInvalidInput)
	}
	for _, r := range eventID {
		if !codeRune(r) {
			return fmt.Errorf("%w: event id %q may only contain letters, digits, '-' and '_'", domain.ErrInvalidInput, eventID)
		}
	}
	if n := g.codeLength(eventID); n > maxCodeLength {
		return fmt.Errorf("%w: event id %q yields %d-character codes, limit %d", domain.ErrInvalidInput, eventID, n, maxCodeLength)
	}
	return nil
}

func (g *Generator) codeLength(eventID string) int {
	return len(g.prefix) + 1 + len(eventID) + 1 + tokenEncoding.EncodedLen(g.tokenBytes)
}

func codeRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		return true
	}
	return false
}

// WellFormed reports whether code could be looked up at all: non-empty,
// bounded, and drawn from the code alphabet. Verification rejects anything
// else as malformed input before touching the store.
func WellFormed(code string) bool {
	if code == "" || len(code) > maxCodeLength {
		return false
	}
	for _, r := range code {
		if !codeRune(r) {
			return false
		}
	}
	return true
}

// ValidCode reports whether code has the PREFIX-{eventID}-{TOKEN} shape.
func ValidCode(code string) bool {
	if !WellFormed(code) {
		return false
	}
	first := strings.IndexByte(code, '-')
	last := strings.LastIndexByte(code, '-')
	return first > 0 && last > first+1 && last < len(code)-1
}
