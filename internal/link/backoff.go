package link

import (
	"math/rand"
	"time"
)

// Backoff computes reconnection delays: each failed attempt multiplies the
// current value by a fixed factor up to a hard ceiling, and a small random
// jitter spreads simultaneous reconnects so many failed links do not storm
// the far side in lockstep. Reset only happens after a fully acknowledged
// handshake, never on a mere socket open.
type Backoff struct {
	floor   time.Duration
	ceiling time.Duration
	factor  float64
	jitter  float64 // fraction, e.g. 0.1 for ±10%

	cur time.Duration
	rnd *rand.Rand
}

func NewBackoff(floor, ceiling time.Duration, factor, jitter float64, seed int64) *Backoff {
	if floor <= 0 {
		floor = 500 * time.Millisecond
	}
	if ceiling < floor {
		ceiling = 30 * time.Second
	}
	if factor <= 1 {
		factor = 1.5
	}
	if jitter < 0 || jitter >= 1 {
		jitter = 0.1
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Backoff{
		floor:   floor,
		ceiling: ceiling,
		factor:  factor,
		jitter:  jitter,
		cur:     floor,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// Fail records a failed attempt and returns the jittered delay to wait
// before the next one.
func (b *Backoff) Fail() time.Duration {
	b.cur = time.Duration(float64(b.cur) * b.factor)
	if b.cur > b.ceiling {
		b.cur = b.ceiling
	}
	return b.jittered(b.cur)
}

// Reset returns the delay to its floor.
func (b *Backoff) Reset() { b.cur = b.floor }

// Current exposes the unjittered value for status reporting.
func (b *Backoff) Current() time.Duration { return b.cur }

func (b *Backoff) jittered(d time.Duration) time.Duration {
	spread := 2*b.rnd.Float64() - 1 // [-1, 1)
	return d + time.Duration(float64(d)*b.jitter*spread)
}
