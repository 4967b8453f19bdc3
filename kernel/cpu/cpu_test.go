package cpu

import "testing"

func TestSpl(t *testing.T) {
	defer EnableInterrupts()

	EnableInterrupts()
	if !InterruptsEnabled() {
		t.Fatal("expected interrupts to be enabled")
	}

	prev := SplHigh()
	if prev != IPLNone {
		t.Fatalf("expected SplHigh to return previous level %d; got %d", IPLNone, prev)
	}
	if InterruptsEnabled() {
		t.Fatal("expected interrupts to be masked after SplHigh")
	}

	// nested raise returns the already raised level
	if nested := SplHigh(); nested != IPLHigh {
		t.Fatalf("expected nested SplHigh to return %d; got %d", IPLHigh, nested)
	}
	Splx(IPLHigh)
	if InterruptsEnabled() {
		t.Fatal("expected interrupts to remain masked after restoring a nested level")
	}

	Splx(prev)
	if !InterruptsEnabled() {
		t.Fatal("expected Splx to restore interrupts")
	}
}

func TestCurrent(t *testing.T) {
	defer func() {
		currentIDFn = func() int { return 0 }
	}()

	for id := 0; id < MaxCPUs; id++ {
		currentIDFn = func() int { return id }

		if got := Current().ID; got != id {
			t.Fatalf("expected Current to return cpu %d; got %d", id, got)
		}
	}
}

func TestHaltAndPowerOff(t *testing.T) {
	defer func(origExitFn func(int)) {
		exitFn = origExitFn
	}(exitFn)

	var status = -1
	exitFn = func(code int) { status = code }

	Halt()
	if status != 1 {
		t.Fatalf("expected Halt to exit with status 1; got %d", status)
	}

	PowerOff()
	if status != 0 {
		t.Fatalf("expected PowerOff to exit with status 0; got %d", status)
	}
}
