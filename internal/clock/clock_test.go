package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := System{}.Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestFixed(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	clk := NewFixed(start)
	assert.Equal(t, start.UTC(), clk.Now())
	assert.Equal(t, time.UTC, clk.Now().Location())

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute).UTC(), clk.Now())

	later := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(later)
	assert.Equal(t, later, clk.Now())
}
