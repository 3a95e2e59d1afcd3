package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.True(t, opts.sweep)
	assert.False(t, opts.reminders)
	assert.False(t, opts.notify)
	assert.WithinDuration(t, time.Now(), opts.now, time.Minute)
}

func TestParseFlagsExplicitNow(t *testing.T) {
	opts, err := parseFlags([]string{"--now", "2026-10-01T20:00:00+02:00", "--reminders"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC), opts.now)
	assert.True(t, opts.reminders)
}

func TestParseFlagsNotificationRetryOnly(t *testing.T) {
	opts, err := parseFlags([]string{"--sweep=false", "--retry-notifications"})
	require.NoError(t, err)
	assert.False(t, opts.sweep)
	assert.True(t, opts.notify)
}

func TestParseFlagsRejectsBadInput(t *testing.T) {
	_, err := parseFlags([]string{"--now", "yesterday"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--sweep=false"})
	assert.Error(t, err)
}
