package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusCompleted},
		{StatusCancelled, StatusCancelled},
		{StatusCompleted, StatusCompleted},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	refused := []struct{ from, to Status }{
		{StatusCancelled, StatusConfirmed},
		{StatusCancelled, StatusCompleted},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusConfirmed},
	}
	for _, tc := range refused {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s should be refused", tc.from, tc.to)
	}

	assert.False(t, Status("pending").Valid())
}

func TestDefaultSchedule(t *testing.T) {
	days := DefaultSchedule()
	require.Len(t, days, 7)
	assert.False(t, days[time.Sunday].Enabled, "sunday should be closed")

	sat := days[time.Saturday]
	assert.True(t, sat.Enabled)
	assert.Equal(t, "16:00", sat.EndTime)
	assert.Empty(t, sat.BreakStart)

	mon := days[time.Monday]
	assert.Equal(t, "13:00", mon.BreakStart)
	assert.Equal(t, "14:00", mon.BreakEnd)
}

func TestClockHelpers(t *testing.T) {
	m, err := ParseClock("13:30")
	require.NoError(t, err)
	assert.Equal(t, 810, m)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
	assert.Equal(t, "09:00", FormatClock(9*60))

	_, err = ParseDate("2024-02-30", time.UTC)
	assert.Error(t, err)
}
