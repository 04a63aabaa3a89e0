// Package circuit trips an upstream dependency after repeated failures and
// lets a single trial call through once the cool-down has elapsed.
package circuit

import (
	"sync"
	"time"

	"newstrader/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

type Breaker struct {
	mu          sync.Mutex
	name        string
	state       State
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
	now         func() time.Time
	onChange    func(name string, from, to State)
}

// New returns a closed breaker. threshold <= 0 disables tripping.
func New(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		state:     StateClosed,
		now:       time.Now,
	}
}

func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker moves to half-open
// after the cool-down and admits the trial call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return true
	}
	if b.now().Sub(b.lastFailure) >= b.cooldown {
		b.transition(StateHalfOpen)
		return true
	}
	return false
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		if b.threshold > 0 && b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil {
		b.onChange(b.name, from, to)
		return
	}
	logger.Warnf("breaker %s: %s -> %s (failures=%d/%d cooldown=%s)", b.name, from, to, b.failures, b.threshold, b.cooldown)
}
