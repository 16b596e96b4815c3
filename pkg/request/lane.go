package request

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// lane serializes the requests for one provider and carries the penalty its
// recent failures earned.
type lane struct {
	name string
	jobs chan job

	mu       sync.Mutex
	failures int
	until    time.Time
}

func newLane(name string) *lane {
	return &lane{name: name, jobs: make(chan job, 100)}
}

// hold blocks until the penalty has expired or ctx is done.
func (l *lane) hold(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	wait := time.Until(l.until)
	l.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lane) fail(base, limit time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
	l.until = time.Now().Add(penalty(base, limit, l.failures))
}

// succeed forgives one failure. The penalty is lifted once none are left.
func (l *lane) succeed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
	}
	if l.failures == 0 {
		l.until = time.Time{}
	}
}

func (l *lane) state() (failures int, until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures, l.until
}

// penalty doubles base per failure up to limit and adds up to 10% jitter.
func penalty(base, limit time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures && d < limit; i++ {
		d *= 2
	}
	d = min(d, limit)
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/10+1)
}
