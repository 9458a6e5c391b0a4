package plantsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsDark(t *testing.T) {
	// minute 0 is 23:30
	assert.True(t, IsDark(0))
	assert.False(t, IsDark(12*60))

	tests := []struct {
		minutes int
		dark    bool
	}{
		{389, true},   // 05:59
		{390, false},  // 06:00
		{1169, false}, // 18:59
		{1170, true},  // 19:00
		{1440, true},  // 23:30 the next day
	}
	for _, tt := range tests {
		assert.Equal(t, tt.dark, IsDark(tt.minutes), "minute %d", tt.minutes)
	}
}

func TestIsDark_IsPure(t *testing.T) {
	for m := 0; m < 3*24*60; m += 7 {
		assert.Equal(t, IsDark(m), IsDark(m))
		assert.Equal(t, IsDark(m), IsDark(m+24*60), "minute %d", m)
	}
}

func TestIsDark_LargeAndNegativeMinutes(t *testing.T) {
	// hour of day counted from 23:30
	hourOf := func(m int) int {
		h := ((23*60+30+m)%(24*60) + 24*60) % (24 * 60) / 60
		return h
	}
	for _, base := range []int{160_000_000, 300_000_000, 1 << 40, -1_000_000} {
		for m := base; m < base+3*24*60; m += 11 {
			h := hourOf(m)
			assert.Equal(t, h < 6 || h > 18, IsDark(m), "minute %d", m)
		}
	}
	assert.Equal(t, IsDark(1440-30), IsDark(-30), "one day earlier")
}

func TestConfigIsDark_UsesReferenceStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReferenceStart = time.Date(2020, time.June, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, cfg.IsDark(0))
	assert.True(t, cfg.IsDark(7*60)) // 19:00
	assert.Equal(t, IsDark(100), DefaultConfig().IsDark(100))
}
