package nostrmux

import "time"

const (
	reconnectInitialDelay = 500 * time.Millisecond
	reconnectMaxDelay     = 30 * time.Second
)

// reconnectPolicy tracks the retry budget for one transport lifetime and
// produces exponentially growing delays up to a maximum.
type reconnectPolicy struct {
	budget  int
	attempt int
	current time.Duration
}

func newReconnectPolicy(budget int) *reconnectPolicy {
	return &reconnectPolicy{
		budget:  budget,
		current: reconnectInitialDelay,
	}
}

// next consumes one retry. It returns the delay to wait before redialing
// and false once the budget is exhausted.
func (p *reconnectPolicy) next() (time.Duration, bool) {
	p.attempt++
	if p.attempt > p.budget {
		return 0, false
	}
	d := p.current
	p.current *= 2
	if p.current > reconnectMaxDelay {
		p.current = reconnectMaxDelay
	}
	return d, true
}

// reset restores the full budget after a successful connection.
func (p *reconnectPolicy) reset() {
	p.attempt = 0
	p.current = reconnectInitialDelay
}
