package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeriodWindow(t *testing.T) {
	school := School{PeriodCount: 8, PeriodDurationMinutes: 45, StartHour: 8}

	start, end := school.PeriodWindow(0)
	assert.Equal(t, "08:00", start)
	assert.Equal(t, "08:45", end)

	start, end = school.PeriodWindow(3)
	assert.Equal(t, "10:15", start)
	assert.Equal(t, "11:00", end)
}

func TestPeriodWindowWithOffsetStart(t *testing.T) {
	school := School{PeriodCount: 6, PeriodDurationMinutes: 40, StartHour: 7, StartMinute: 30}

	start, end := school.PeriodWindow(1)
	assert.Equal(t, "08:10", start)
	assert.Equal(t, "08:50", end)
}
