package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLimit_Remaining(t *testing.T) {
	limit := RecordLimit{Name: "test", Max: 8 * time.Second}

	assert.Equal(t, 8*time.Second, limit.Remaining(0))
	assert.Equal(t, time.Second, limit.Remaining(7*time.Second))
	assert.Equal(t, time.Duration(0), limit.Remaining(9*time.Second))
	assert.True(t, limit.Reached(8*time.Second))
	assert.False(t, limit.Reached(7900*time.Millisecond))
}

func TestParseRecordLimit(t *testing.T) {
	limit, err := ParseRecordLimit("LONG", DefaultRecordLimits())
	require.NoError(t, err)
	assert.Equal(t, RecordLimitLong, limit)

	_, err = ParseRecordLimit("forever", DefaultRecordLimits())
	assert.Error(t, err)
}

func TestNextRecordLimit(t *testing.T) {
	allowed := DefaultRecordLimits()

	assert.Equal(t, RecordLimitLong, NextRecordLimit(RecordLimitShort, allowed))
	assert.Equal(t, RecordLimitShort, NextRecordLimit(RecordLimitLong, allowed))
	assert.Equal(t, RecordLimitShort, NextRecordLimit(RecordLimit{Name: "x"}, allowed))
	assert.Equal(t, RecordLimitLong, NextRecordLimit(RecordLimitLong, nil))
}

func TestDeviceFacing_Opposite(t *testing.T) {
	assert.Equal(t, FacingBack, FacingFront.Opposite())
	assert.Equal(t, FacingFront, FacingBack.Opposite())
	assert.False(t, DeviceFacing("side").Valid())
}

func TestCaptureStatus_IsTerminal(t *testing.T) {
	assert.False(t, CaptureUnconfigured.IsTerminal())
	assert.False(t, CaptureConfigured.IsTerminal())
	assert.True(t, CaptureUnauthorized.IsTerminal())
	assert.True(t, CaptureFailed.IsTerminal())
}

func TestScrubState(t *testing.T) {
	var zero ScrubState
	assert.Equal(t, ScrubIdle, zero.Phase())
	assert.True(t, zero.AllowsTicks())

	started := ScrubStartedState()
	assert.False(t, started.AllowsTicks())
	_, ok := started.Target()
	assert.False(t, ok)

	ended := ScrubEndedState(3 * time.Second)
	assert.False(t, ended.AllowsTicks())
	target, ok := ended.Target()
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, target)
	assert.Equal(t, "scrub_ended(3s)", ended.String())
}
