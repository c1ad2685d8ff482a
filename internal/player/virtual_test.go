package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestVirtualAdvancesOnlyWhilePlaying(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewVirtual(clock.now)

	clock.advance(5 * time.Second)
	assert.Equal(t, 0.0, p.Position())

	p.Play()
	clock.advance(3 * time.Second)
	assert.Equal(t, 3.0, p.Position())

	p.Pause()
	clock.advance(10 * time.Second)
	assert.Equal(t, 3.0, p.Position())
	assert.False(t, p.Playing())
}

func TestVirtualSeek(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewVirtual(clock.now)

	p.Play()
	clock.advance(2 * time.Second)
	p.Seek(60)
	clock.advance(time.Second)
	assert.Equal(t, 61.0, p.Position())

	p.Seek(-4)
	assert.Equal(t, 0.0, p.Position())
}

func TestVirtualStopsAtDuration(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewVirtual(clock.now)
	p.SetDuration(10)

	p.Seek(8)
	p.Play()
	clock.advance(5 * time.Second)
	assert.Equal(t, 10.0, p.Position())

	p.Seek(30)
	assert.Equal(t, 10.0, p.Position())
}
