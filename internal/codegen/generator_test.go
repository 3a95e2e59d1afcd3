package codegen

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topcity/ticket-service/internal/domain"
)

func TestGenerateFormat(t *testing.T) {
	gen, err := NewGenerator("tct", DefaultTokenBytes)
	require.NoError(t, err)

	code, err := gen.Generate("evt-42")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(code, "TCT-evt-42-"))
	token := code[strings.LastIndexByte(code, '-')+1:]
	assert.Len(t, token, 10)
	assert.Equal(t, strings.ToUpper(token), token)
	assert.True(t, ValidCode(code))
}

func TestGenerateUsesEntropySource(t *testing.T) {
	gen, err := NewGenerator("TCT", 5, WithRandom(bytes.NewReader([]byte{0, 0, 0, 0, 0})))
	require.NoError(t, err)

	code, err := gen.Generate("E1")
	require.NoError(t, err)
	assert.Equal(t, "TCT-E1-AAAAAAAA", code)

	_, err = gen.Generate("E1")
	assert.Error(t, err, "exhausted entropy source must fail rather than repeat")
}

func TestNewGeneratorRejectsWeakTokens(t *testing.T) {
	_, err := NewGenerator("TCT", 3)
	assert.Error(t, err)

	_, err = NewGenerator("T-C", DefaultTokenBytes)
	assert.Error(t, err)

	_, err = NewGenerator("T C", DefaultTokenBytes)
	assert.Error(t, err)
}

func TestGenerateRequiresEventID(t *testing.T) {
	gen, err := NewGenerator("", DefaultTokenBytes)
	require.NoError(t, err)
	_, err = gen.Generate("  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGenerateRejectsEventIDsOutsideCodeAlphabet(t *testing.T) {
	gen, err := NewGenerator("TCT", DefaultTokenBytes)
	require.NoError(t, err)

	for _, eventID := range []string{"evt 42/jazz", "jazz#1", "café", "E1\n"} {
		_, err := gen.Generate(eventID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, eventID)
	}

	code, err := gen.Generate("evt_42-jazz")
	require.NoError(t, err)
	assert.True(t, WellFormed(code))
}

func TestGenerateRejectsEventIDsTooLongForCodes(t *testing.T) {
	gen, err := NewGenerator("TCT", DefaultTokenBytes)
	require.NoError(t, err)

	// TCT- + id + - + 10-char token fills exactly maxCodeLength.
	longest := strings.Repeat("e", maxCodeLength-len("TCT-")-1-10)
	code, err := gen.Generate(longest)
	require.NoError(t, err)
	assert.Len(t, code, maxCodeLength)
	assert.True(t, WellFormed(code))

	_, err = gen.Generate(longest + "e")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, gen.CheckEventID(longest+"e"), domain.ErrInvalidInput)
}

func TestAllocateUniqueAcrossManyGenerations(t *testing.T) {
	gen, err := NewGenerator("TCT", DefaultTokenBytes)
	require.NoError(t, err)

	const n = 100000
	seen := make(map[string]struct{}, n)
	insert := func(code string) error {
		if _, ok := seen[code]; ok {
			return domain.ErrDuplicateCode
		}
		seen[code] = struct{}{}
		return nil
	}
	for i := 0; i < n; i++ {
		_, err := gen.Allocate("E1", insert)
		require.NoError(t, err)
	}
	assert.Len(t, seen, n)
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	gen, err := NewGenerator("TCT", DefaultTokenBytes)
	require.NoError(t, err)

	calls := 0
	code, err := gen.Allocate("E1", func(code string) error {
		calls++
		if calls < 3 {
			return domain.ErrDuplicateCode
		}
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Equal(t, 3, calls)
}

func TestAllocateGivesUpAfterMaxAttempts(t *testing.T) {
	gen, err := NewGenerator("TCT", DefaultTokenBytes, WithMaxAttempts(5))
	require.NoError(t, err)

	calls := 0
	_, err = gen.Allocate("E1", func(string) error {
		calls++
		return domain.ErrDuplicateCode
	})
	assert.ErrorIs(t, err, domain.ErrCodeSpaceExhausted)
	assert.Equal(t, 5, calls)
}

func TestAllocateStopsOnOtherErrors(t *testing.T) {
	gen, err := NewGenerator("TCT", DefaultTokenBytes)
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	_, err = gen.Allocate("E1", func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestValidCode(t *testing.T) {
	cases := map[string]bool{
		"TCT-E1-ABCDEFGH":                      true,
		"TCT-3f2a-11ee-9c1b-ABCDEFGH":          true,
		"":                                     false,
		"ABCDEFGH":                             false,
		"TCT--ABC":                             false,
		"TCT-E1-":                              false,
		"-E1-ABC":                              false,
		"TCT-E1-AB CD":                         false,
		"TCT-E1-AB/CD":                         false,
		strings.Repeat("A", 130) + "-E1-ABCD": false,
	}
	for code, want := range cases {
		assert.Equal(t, want, ValidCode(code), code)
	}
}

func TestWellFormed(t *testing.T) {
	assert.True(t, WellFormed("UNKNOWN-CODE"))
	assert.True(t, WellFormed("TCT-E1-ABCDEFGH"))
	assert.False(t, WellFormed(""))
	assert.False(t, WellFormed("TCT-E1-AB CD"))
	assert.False(t, WellFormed("<script>"))
	assert.False(t, WellFormed(strings.Repeat("A", 129)))
}
