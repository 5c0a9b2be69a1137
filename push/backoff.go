package push

import (
	"math"
	"math/rand"
	"time"
)

// backoff reproduces socket.io-client's reconnection delay: min·2^n capped at
// max, spread by ±factor.
type backoff struct {
	rand   func() float64
	min    time.Duration
	max    time.Duration
	factor float64
}

func newBackoff(min, max time.Duration, factor float64) *backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	if factor < 0 || factor > 1 {
		factor = 0
	}
	return &backoff{min: min, max: max, factor: factor, rand: rand.Float64}
}

// duration is the wait before reconnection attempt n, counting from 1.
func (b *backoff) duration(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 32 {
		n = 32
	}
	ms := float64(b.min.Milliseconds()) * math.Pow(2, float64(n-1))
	if b.factor > 0 {
		r := b.rand()
		deviation := math.Floor(r * b.factor * ms)
		if int(math.Floor(r*10))&1 == 0 {
			ms -= deviation
		} else {
			ms += deviation
		}
	}
	d := time.Duration(ms) * time.Millisecond
	if d > b.max || d < 0 {
		d = b.max
	}
	return d
}
