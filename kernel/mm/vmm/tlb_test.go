package vmm

import (
	"testing"

	"gophervm/kernel/cpu"
)

func TestActivate(t *testing.T) {
	defer SetAddrSpaceProvider(nil)
	tlb := useFakeTLB(t)

	for i := range tlb.lo {
		tlb.hi[i], tlb.lo[i] = uint32(i)<<12, uint32(i)<<12|cpu.TLBLoValid
	}

	// kernel threads keep their entries
	Activate()
	if tlb.lo[0]&cpu.TLBLoValid == 0 {
		t.Fatal("expected Activate without an address space to leave the TLB untouched")
	}

	as := &AddrSpace{}
	SetAddrSpaceProvider(func() *AddrSpace { return as })
	Activate()

	for i := range tlb.lo {
		if tlb.hi[i] != cpu.TLBHiInvalid(i) || tlb.lo[i] != cpu.TLBLoInvalid() {
			t.Errorf("expected entry %d to be invalidated; got (0x%x, 0x%x)", i, tlb.hi[i], tlb.lo[i])
		}
	}
	if tlb.writesWithInterruptsOn != 0 {
		t.Fatal("expected TLB writes to happen with interrupts masked")
	}
	if tlb.ipl != cpu.IPLNone {
		t.Fatal("expected the interrupt priority level to be restored")
	}

	Deactivate()
}

func TestTLBShootdown(t *testing.T) {
	for specIndex, fn := range []func(){
		func() { TLBShootdown(0x400000) },
		TLBShootdownAll,
	} {
		panicked := mockPanic(t)
		fn()
		if *panicked != errShootdownUnsupported {
			t.Errorf("[spec %d] expected panic with errShootdownUnsupported; got %v", specIndex, *panicked)
		}
	}
}
