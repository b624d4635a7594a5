package nostrmux

import "testing"

func TestReconnectPolicy_Budget(t *testing.T) {
	p := newReconnectPolicy(3)

	for i := 0; i < 3; i++ {
		if _, ok := p.next(); !ok {
			t.Fatalf("attempt %d should be within budget", i+1)
		}
	}
	if _, ok := p.next(); ok {
		t.Error("4th attempt should exhaust a budget of 3")
	}
}

func TestReconnectPolicy_ZeroBudget(t *testing.T) {
	p := newReconnectPolicy(0)
	if _, ok := p.next(); ok {
		t.Error("zero budget should refuse the first retry")
	}
}

func TestReconnectPolicy_DelayGrowsAndCaps(t *testing.T) {
	p := newReconnectPolicy(100)

	prev, _ := p.next()
	if prev != reconnectInitialDelay {
		t.Errorf("first delay = %s, want %s", prev, reconnectInitialDelay)
	}
	for i := 0; i < 20; i++ {
		d, ok := p.next()
		if !ok {
			t.Fatal("budget exhausted unexpectedly")
		}
		if d < prev && d != reconnectMaxDelay {
			t.Errorf("delay shrank from %s to %s before the cap", prev, d)
		}
		if d > reconnectMaxDelay {
			t.Errorf("delay %s exceeds cap %s", d, reconnectMaxDelay)
		}
		prev = d
	}
	if prev != reconnectMaxDelay {
		t.Errorf("delay should reach the cap, got %s", prev)
	}
}

func TestReconnectPolicy_Reset(t *testing.T) {
	p := newReconnectPolicy(2)
	p.next()
	p.next()
	p.reset()

	d, ok := p.next()
	if !ok {
		t.Fatal("reset should restore the budget")
	}
	if d != reconnectInitialDelay {
		t.Errorf("delay after reset = %s, want %s", d, reconnectInitialDelay)
	}
}
