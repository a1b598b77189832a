package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/meterkit/pkg/clock"
)

func TestMock(t *testing.T) {
	t.Parallel()

	t.Run("advance moves time forward", func(t *testing.T) {
		t.Parallel()
		start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		m := clock.NewMock(start)

		assert.Equal(t, start, m.Now())
		assert.Equal(t, start.Add(time.Hour), m.Advance(time.Hour))
		assert.Equal(t, start.Add(time.Hour), m.Now())
	})

	t.Run("set jumps to an absolute instant", func(t *testing.T) {
		t.Parallel()
		m := clock.NewMock(time.Unix(0, 0))
		target := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		m.Set(target)
		assert.Equal(t, target, m.Now())
	})
}

func TestFixed(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := clock.Fixed(at)
	assert.Equal(t, at, c.Now())
	assert.Equal(t, at, c.Now())
}

func TestSystem(t *testing.T) {
	t.Parallel()

	now := clock.System().Now()
	assert.WithinDuration(t, time.Now().UTC(), now, time.Second)
	assert.Equal(t, time.UTC, now.Location())
}
