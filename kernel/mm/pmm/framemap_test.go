package pmm

import (
	"gophervm/kernel/mm"
	"testing"
)

func TestNewFrameMap(t *testing.T) {
	m := newFrameMap(16, 3)

	for i := uint32(0); i < m.len(); i++ {
		state := m.frames[i]
		switch {
		case i == 0:
			if state.free || state.runLength != 3 {
				t.Errorf("[frame %d] expected reserved run start with length 3; got %+v", i, state)
			}
		case i < 3:
			if state.free || state.runLength != 0 {
				t.Errorf("[frame %d] expected reserved interior frame; got %+v", i, state)
			}
		default:
			if !state.free || state.runLength != 0 {
				t.Errorf("[frame %d] expected free frame; got %+v", i, state)
			}
		}
	}
}

func TestNewFrameMapLongReservedRun(t *testing.T) {
	reserved := uint32(MaxRunLength + 10)
	m := newFrameMap(reserved+5, reserved)

	if got := m.frames[0].runLength; got != MaxRunLength {
		t.Fatalf("expected first reserved run to have length %d; got %d", MaxRunLength, got)
	}
	if got := m.frames[MaxRunLength].runLength; got != 10 {
		t.Fatalf("expected second reserved run to have length 10; got %d", got)
	}

	// first fit must skip both reserved runs
	frame, found := m.findFirstFit(5)
	if !found || frame != mm.Frame(reserved) {
		t.Fatalf("expected first fit to return frame %d; got %d (found: %t)", reserved, frame, found)
	}
}

func TestFrameMapFindFirstFit(t *testing.T) {
	m := newFrameMap(16, 2)
	m.markRun(mm.Frame(4), 2)  // frames 4-5
	m.markRun(mm.Frame(9), 3)  // frames 9-11
	m.markRun(mm.Frame(15), 1) // frame 15

	specs := []struct {
		count    uint32
		expFrame mm.Frame
		expFound bool
	}{
		{1, mm.Frame(2), true},
		{2, mm.Frame(2), true},
		{3, mm.Frame(6), true},
		{4, mm.InvalidFrame, false},
		{16, mm.InvalidFrame, false},
	}

	for specIndex, spec := range specs {
		frame, found := m.findFirstFit(spec.count)
		if found != spec.expFound || frame != spec.expFrame {
			t.Errorf("[spec %d] expected (%d, %t); got (%d, %t)", specIndex, spec.expFrame, spec.expFound, frame, found)
		}
	}
}

func TestFrameMapRunLifecycle(t *testing.T) {
	m := newFrameMap(8, 1)
	m.markRun(mm.Frame(2), 4)

	for i := mm.Frame(2); i < 6; i++ {
		if m.isFree(i) {
			t.Errorf("[frame %d] expected frame to be allocated", i)
		}
		if got := m.runStart(i); got != mm.Frame(2) {
			t.Errorf("[frame %d] expected run start 2; got %d", i, got)
		}
	}

	if got := m.releaseRun(mm.Frame(2)); got != 4 {
		t.Fatalf("expected released run length 4; got %d", got)
	}

	for i := mm.Frame(1); i < 8; i++ {
		if !m.isFree(i) || m.frames[i].runLength != 0 {
			t.Errorf("[frame %d] expected free frame with zero run length; got %+v", i, m.frames[i])
		}
	}
}
