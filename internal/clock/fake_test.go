package clock_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/powergov/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTicker(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.Fake(start)

	ticker := c.NewTicker(5 * time.Second)
	require.Equal(t, 1, c.Tickers())

	c.Advance(4 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case tick := <-ticker.C:
		assert.Equal(t, start.Add(5*time.Second), tick)
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
	assert.Equal(t, 0, c.Tickers())
	assert.Equal(t, start.Add(65*time.Second), c.Now())
}
