package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	gg "github.com/fogleman/gg"

	"gophervm/kernel/mm"
	"gophervm/kernel/mm/pmm"
)

// Frame cell colors.
var (
	colorFree     = [3]float64{0.20, 0.70, 0.30}
	colorUsed     = [3]float64{0.85, 0.25, 0.20}
	colorReserved = [3]float64{0.55, 0.55, 0.55}
)

type opKind uint8

const (
	opAlloc opKind = iota
	opFree
)

// op is a single step of the allocation workload. For opAlloc arg is the
// frame count; for opFree it is the index of the allocation to release.
type op struct {
	kind opKind
	arg  uint32
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[memmap] error: %s\n", err.Error())
	os.Exit(1)
}

// parseOps parses a comma separated workload such as "a3,a2,f0,a4" where aN
// allocates N frames and fN frees the run returned by the N-th allocation.
func parseOps(workload string) ([]op, error) {
	var ops []op

	for _, tok := range strings.Split(workload, ",") {
		if tok = strings.TrimSpace(tok); tok == "" {
			continue
		}

		var kind opKind
		switch tok[0] {
		case 'a':
			kind = opAlloc
		case 'f':
			kind = opFree
		default:
			return nil, fmt.Errorf("unknown operation %q; expected aN or fN", tok)
		}

		arg, err := strconv.ParseUint(tok[1:], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid argument in operation %q: %v", tok, err)
		}

		ops = append(ops, op{kind: kind, arg: uint32(arg)})
	}

	return ops, nil
}

// runOps applies ops to alloc. Failed allocations are reported to w and still
// take up an allocation index.
func runOps(alloc *pmm.FrameAllocator, ops []op, w io.Writer) error {
	var runs []mm.Frame

	for _, o := range ops {
		switch o.kind {
		case opAlloc:
			frame, err := alloc.AllocFrames(o.arg)
			if err != nil {
				fmt.Fprintf(w, "[memmap] alloc(%d) failed: %s\n", o.arg, err.Message)
			}
			runs = append(runs, frame)
		case opFree:
			if int(o.arg) >= len(runs) {
				return fmt.Errorf("free of allocation %d before it was made", o.arg)
			}
			if !runs[o.arg].Valid() {
				fmt.Fprintf(w, "[memmap] skipping free of failed allocation %d\n", o.arg)
				continue
			}
			if err := alloc.FreeFrames(runs[o.arg].Address()); err != nil {
				fmt.Fprintf(w, "[memmap] free(%d) failed: %s\n", o.arg, err.Message)
			}
		}
	}

	return nil
}

// render draws one cellSize square per frame, wrapping rows every perLine
// frames. Reserved frames are grey, allocated frames red and free frames
// green.
func render(free []bool, reserved uint32, perLine, cellSize int) *gg.Context {
	rows := (len(free) + perLine - 1) / perLine
	dc := gg.NewContext(perLine*cellSize, rows*cellSize)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for index, isFree := range free {
		c := colorUsed
		switch {
		case uint32(index) < reserved:
			c = colorReserved
		case isFree:
			c = colorFree
		}

		x, y := float64((index%perLine)*cellSize), float64((index/perLine)*cellSize)
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawRectangle(x, y, float64(cellSize-1), float64(cellSize-1))
		dc.Fill()
	}

	return dc
}

func runTool(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("memmap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ramKb := fs.Uint("ram", 512, "the amount of physical memory in Kb")
	kernelEnd := fs.Uint64("kernel-end", 0x8000, "the physical address where the kernel image ends")
	opSpec := fs.String("ops", "a3,a2,f0,a3,a8,a1,f3", "comma separated workload: aN allocates N frames, fN frees the N-th allocation")
	cellSize := fs.Int("cell", 8, "the size in pixels of each frame cell")
	output := fs.String("out", "memmap.png", "the PNG file to write the frame map to")
	fs.Usage = func() {
		fmt.Fprint(stderr, "memmap: run a frame allocation workload and render the frame map as a PNG\n\n")
		fmt.Fprint(stderr, "Usage: memmap [options]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *cellSize < 2 {
		return errors.New("cell size must be at least 2 pixels")
	}

	ops, err := parseOps(*opSpec)
	if err != nil {
		return err
	}

	alloc := pmm.NewFrameAllocator(mm.Size(*ramKb)*mm.Kb, uintptr(*kernelEnd))
	if kerr := alloc.Bootstrap(); kerr != nil {
		return kerr
	}

	if err = runOps(alloc, ops, stderr); err != nil {
		return err
	}

	alloc.DumpTo(stdout)

	// rows wrap at the same width as the text dump
	stats := alloc.Stats()
	dc := render(alloc.Snapshot(), stats.BootReserved, pmm.FramesPerLine(stats.Total), *cellSize)
	return dc.SavePNG(*output)
}

func main() {
	if err := runTool(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		exit(err)
	}
}
