package pmm

import (
	"bytes"
	"strings"
	"testing"

	"gophervm/kernel/mm"
)

func TestDumpTo(t *testing.T) {
	alloc := newActiveAllocator(t, 16, 0)
	if _, err := alloc.AllocFrames(3); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	alloc.DumpTo(&buf)

	exp := "[pmm] page allocator statistics:\n" +
		"[pmm] 16 total pages\n" +
		"[pmm] 4 pages allocated\n" +
		"[pmm] 12 pages free\n" +
		"[pmm] 1 pages were allocated before the frame map was active\n" +
		"[pmm] 3 pages allocated since boot\n" +
		"[pmm] 0 pages freed since boot\n" +
		"Memory map, 8 pages per line (0=used page, 1=free page)\n\n" +
		"\t00001111\n" +
		"\t11111111\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected dump:\n%q\ngot:\n%q", exp, got)
	}
}

func TestDumpToPadsLastRow(t *testing.T) {
	alloc := newActiveAllocator(t, 11, 2*mm.PageSize)

	var buf bytes.Buffer
	alloc.DumpTo(&buf)

	if exp, got := "\t00111111\n\t111/////\n", buf.String(); !strings.HasSuffix(got, exp) {
		t.Fatalf("expected dump to end with %q; got:\n%s", exp, got)
	}
}

func TestDumpToInactive(t *testing.T) {
	alloc := NewFrameAllocator(16*mm.Size(mm.PageSize), 0)

	var buf bytes.Buffer
	alloc.DumpTo(&buf)

	exp := "[pmm] page allocator statistics:\n[pmm] frame map not active\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected dump %q; got %q", exp, got)
	}
}

func TestFramesPerLine(t *testing.T) {
	specs := []struct {
		total uint32
		exp   int
	}{
		{1, 8},
		{64, 8},
		{65, 16},
		{128, 16},
		{129, 32},
		{512, 32},
		{513, 64},
		{1 << 20, 64},
	}

	for specIndex, spec := range specs {
		if got := FramesPerLine(spec.total); got != spec.exp {
			t.Errorf("[spec %d] expected %d frames per line for %d frames; got %d", specIndex, spec.exp, spec.total, got)
		}
	}
}

func TestDumpToRowCount(t *testing.T) {
	alloc := newActiveAllocator(t, 1000, 0)

	var buf bytes.Buffer
	alloc.DumpTo(&buf)

	rows := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "\t") {
			if len(line) != 65 {
				t.Errorf("expected row of 64 frames; got %q", line)
			}
			rows++
		}
	}

	// 1000 frames at 64 per line
	if rows != 16 {
		t.Fatalf("expected 16 rows; got %d", rows)
	}
}
