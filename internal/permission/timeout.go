package permission

import (
	"time"

	"github.com/aictl/agentcore/internal/clock"
)

// Canceler is implemented by confirmers that can withdraw a pending prompt.
type Canceler interface {
	CancelConfirm()
}

// TimeoutConfirmer bounds how long next may take to answer. A prompt that
// times out resolves to Deny so the session never stalls.
type TimeoutConfirmer struct {
	next    Confirmer
	timeout time.Duration
	clock   clock.Clock
}

// NewTimeoutConfirmer wraps next. A non-positive timeout disables the limit.
func NewTimeoutConfirmer(next Confirmer, timeout time.Duration, clk clock.Clock) *TimeoutConfirmer {
	if clk == nil {
		clk = clock.Real()
	}
	return &TimeoutConfirmer{next: next, timeout: timeout, clock: clk}
}

func (t *TimeoutConfirmer) Confirm(req Request) Action {
	if t.timeout <= 0 {
		return t.next.Confirm(req)
	}

	result := make(chan Action, 1)
	go func() { result <- t.next.Confirm(req) }()

	select {
	case a := <-result:
		return a
	case <-t.clock.After(t.timeout):
		if c, ok := t.next.(Canceler); ok {
			c.CancelConfirm()
		}
		return Deny
	}
}
