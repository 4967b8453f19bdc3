package pmm

import "gophervm/kernel/mm"

// MaxRunLength is the largest number of frames that a single allocation may
// span.
const MaxRunLength = 1<<15 - 1

// frameState records the state of one physical frame.
type frameState struct {
	free bool

	// runLength is non-zero only on the first frame of an allocated or
	// reserved run and holds the number of frames in that run.
	runLength uint16
}

// frameMap tracks the state of every physical frame. Frame i of the machine
// is described by frames[i]. For a run starting at frame i with length n,
// frames i..i+n-1 are not free, frames[i].runLength is n and every other
// frame of the run has a zero runLength. Free frames always have a zero
// runLength.
//
// frameMap performs no locking; FrameAllocator serializes access to it.
type frameMap struct {
	frames []frameState
}

// newFrameMap returns a map for totalFrames frames where the first reserved
// frames form a single permanently reserved run and the rest are free.
func newFrameMap(totalFrames, reserved uint32) frameMap {
	m := frameMap{frames: make([]frameState, totalFrames)}
	for i := range m.frames {
		m.frames[i].free = uint32(i) >= reserved
	}

	// runs longer than MaxRunLength are split into consecutive runs
	for start := uint32(0); start < reserved; start += MaxRunLength {
		n := reserved - start
		if n > MaxRunLength {
			n = MaxRunLength
		}
		m.frames[start].runLength = uint16(n)
	}

	return m
}

func (m *frameMap) len() uint32 {
	return uint32(len(m.frames))
}

func (m *frameMap) isFree(f mm.Frame) bool {
	return m.frames[f].free
}

// findFirstFit returns the first frame of the lowest run of count free
// frames. Allocated runs are skipped as a whole using their runLength.
func (m *frameMap) findFirstFit(count uint32) (mm.Frame, bool) {
	var (
		total          = m.len()
		start, counted uint32
	)

	for i := uint32(0); i < total && counted < count; {
		if runLength := uint32(m.frames[i].runLength); runLength != 0 {
			i += runLength
			start, counted = i, 0
			continue
		}

		counted++
		i++
	}

	if counted < count {
		return mm.InvalidFrame, false
	}

	return mm.Frame(start), true
}

// markRun flags count frames starting at start as allocated.
func (m *frameMap) markRun(start mm.Frame, count uint32) {
	for i := uint32(0); i < count; i++ {
		m.frames[uint32(start)+i] = frameState{}
	}
	m.frames[start].runLength = uint16(count)
}

// runStart returns the first frame of the run that contains the allocated
// frame f.
func (m *frameMap) runStart(f mm.Frame) mm.Frame {
	for m.frames[f].runLength == 0 {
		f--
	}
	return f
}

// releaseRun flags every frame of the run starting at start as free and
// returns the run length.
func (m *frameMap) releaseRun(start mm.Frame) uint32 {
	count := uint32(m.frames[start].runLength)
	for i := uint32(0); i < count; i++ {
		m.frames[uint32(start)+i] = frameState{free: true}
	}
	return count
}
