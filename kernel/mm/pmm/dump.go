package pmm

import (
	"io"

	"gophervm/kernel/kfmt"
)

// maxFramesPerLine is the widest memory map row DumpTo prints.
const maxFramesPerLine = 64

// FramesPerLine picks the memory map row width for a machine with total
// frames so that small maps stay compact and large ones stay readable.
func FramesPerLine(total uint32) int {
	switch {
	case total > 512:
		return 64
	case total > 128:
		return 32
	case total > 64:
		return 16
	default:
		return 8
	}
}

// DumpTo writes the allocator statistics to w followed by a map of physical
// memory that uses one character per frame: '1' for a free frame, '0' for
// an allocated or reserved one and '/' to pad the last row.
func (alloc *FrameAllocator) DumpTo(w io.Writer) {
	alloc.mapLock.Acquire()
	stats := alloc.statsLocked()
	free := alloc.snapshotLocked()
	alloc.mapLock.Release()

	kfmt.Fprintf(w, "[pmm] page allocator statistics:\n")
	if free == nil {
		kfmt.Fprintf(w, "[pmm] frame map not active\n")
		return
	}

	kfmt.Fprintf(w, "[pmm] %d total pages\n", stats.Total)
	kfmt.Fprintf(w, "[pmm] %d pages allocated\n", stats.Allocated)
	kfmt.Fprintf(w, "[pmm] %d pages free\n", stats.Free)
	kfmt.Fprintf(w, "[pmm] %d pages were allocated before the frame map was active\n", stats.BootReserved)
	kfmt.Fprintf(w, "[pmm] %d pages allocated since boot\n", stats.HistoryAllocated)
	kfmt.Fprintf(w, "[pmm] %d pages freed since boot\n", stats.HistoryFreed)

	perLine := FramesPerLine(stats.Total)
	kfmt.Fprintf(w, "Memory map, %d pages per line (0=used page, 1=free page)\n\n", perLine)

	var (
		row [maxFramesPerLine + 1]byte
		pw  = kfmt.PrefixWriter{Sink: w, Prefix: []byte{'\t'}}
	)

	for rowStart := 0; rowStart < len(free); rowStart += perLine {
		for col := 0; col < perLine; col++ {
			switch index := rowStart + col; {
			case index >= len(free):
				row[col] = '/'
			case free[index]:
				row[col] = '1'
			default:
				row[col] = '0'
			}
		}
		row[perLine] = '\n'
		_, _ = pw.Write(row[:perLine+1])
	}
}
