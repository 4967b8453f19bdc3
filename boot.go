package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"gophervm/kernel/kfmt"
	"gophervm/kernel/kmain"
	"gophervm/kernel/mm"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[gophervm] error: %s\n", err.Error())
	os.Exit(1)
}

// main allocates the machine's physical memory, attaches the console and
// hands control to the kernel entrypoint (kmain.Kmain), which does not
// return.
func main() {
	ramKb := flag.Uint("ram", 1024, "the amount of physical memory in Kb")
	kernelEnd := flag.Uint64("kernel-end", 0x20000, "the physical address where the kernel image ends")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "gophervm: boot the kernel memory subsystem on a simulated machine\n\n")
		fmt.Fprint(os.Stderr, "Usage: gophervm [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ramSize := mm.Size(*ramKb) * mm.Kb
	switch {
	case ramSize < mm.Size(mm.PageSize):
		exit(errors.New("the machine needs at least one page of memory"))
	case mm.Size(*kernelEnd) >= ramSize:
		exit(fmt.Errorf("kernel image end 0x%x lies outside of the %dKb of memory", *kernelEnd, *ramKb))
	}

	mm.SetPhysicalMemory(make([]byte, ramSize))
	kfmt.SetOutputSink(os.Stdout)

	kmain.Kmain(ramSize, uintptr(*kernelEnd))
}
