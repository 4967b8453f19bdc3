package vmm

import (
	"testing"

	"gophervm/kernel/cpu"
	"gophervm/kernel/mm"
)

// fakeTLB stands in for the TLB registers and the interrupt priority level.
type fakeTLB struct {
	hi, lo [cpu.NumTLB]uint32

	ipl int32

	// writesWithInterruptsOn counts entry writes performed while
	// interrupts were not masked.
	writesWithInterruptsOn int
}

func useFakeTLB(t *testing.T) *fakeTLB {
	t.Helper()

	tlb := &fakeTLB{}
	for i := range tlb.hi {
		tlb.hi[i] = cpu.TLBHiInvalid(i)
	}

	tlbReadFn = func(i int) (uint32, uint32) { return tlb.hi[i], tlb.lo[i] }
	tlbWriteFn = func(hi, lo uint32, i int) {
		if tlb.ipl != cpu.IPLHigh {
			tlb.writesWithInterruptsOn++
		}
		tlb.hi[i], tlb.lo[i] = hi, lo
	}
	splHighFn = func() int32 {
		prev := tlb.ipl
		tlb.ipl = cpu.IPLHigh
		return prev
	}
	splxFn = func(level int32) { tlb.ipl = level }

	t.Cleanup(func() {
		tlbReadFn = cpu.TLBRead
		tlbWriteFn = cpu.TLBWrite
		splHighFn = cpu.SplHigh
		splxFn = cpu.Splx
	})

	return tlb
}

// loadedAddrSpace returns an address space with a 2-page code region at
// 0x400000 and a 1-page data region at 0x10000000.
func loadedAddrSpace(t *testing.T) *AddrSpace {
	t.Helper()

	as := NewAddrSpace()
	if err := as.DefineRegion(0x400000, 2*mm.PageSize, PermRead|PermExec); err != nil {
		t.Fatal(err)
	}
	if err := as.DefineRegion(0x10000000, mm.PageSize, PermRead|PermWrite); err != nil {
		t.Fatal(err)
	}
	if err := as.PrepareLoad(); err != nil {
		t.Fatal(err)
	}
	return as
}

func TestResolveFor(t *testing.T) {
	defer resetMemory()
	setupMemory(t, 64)

	as := loadedAddrSpace(t)

	specs := []struct {
		kind      FaultKind
		faultAddr uintptr
		expPhys   uintptr
	}{
		{FaultRead, 0x400000, as.Region(0).PhysBase},
		{FaultWrite, 0x401234, as.Region(0).PhysBase + mm.PageSize},
		{FaultRead, 0x10000ffc, as.Region(1).PhysBase},
		{FaultWrite, UserStackTop - 4, as.StackRegion().PhysBase + (StackPages-1)*mm.PageSize},
		{FaultRead, userStackBase, as.StackRegion().PhysBase},
	}

	for specIndex, spec := range specs {
		tlb := useFakeTLB(t)

		if err := ResolveFor(spec.kind, spec.faultAddr, as); err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		expHi := uint32(spec.faultAddr & mm.PageFrameMask)
		expLo := uint32(spec.expPhys) | cpu.TLBLoDirty | cpu.TLBLoValid
		if tlb.hi[0] != expHi || tlb.lo[0] != expLo {
			t.Errorf("[spec %d] expected entry 0 to be (0x%x, 0x%x); got (0x%x, 0x%x)", specIndex, expHi, expLo, tlb.hi[0], tlb.lo[0])
		}

		if tlb.writesWithInterruptsOn != 0 {
			t.Errorf("[spec %d] expected TLB writes to happen with interrupts masked", specIndex)
		}
		if tlb.ipl != cpu.IPLNone {
			t.Errorf("[spec %d] expected the interrupt priority level to be restored", specIndex)
		}
	}
}

func TestResolveForUsesFirstInvalidEntry(t *testing.T) {
	defer resetMemory()
	setupMemory(t, 64)

	as := loadedAddrSpace(t)
	tlb := useFakeTLB(t)

	for i := 0; i < 5; i++ {
		tlb.lo[i] = cpu.TLBLoValid
	}
	// entry 5 is invalid even though it holds a translation
	tlb.hi[5], tlb.lo[5] = 0x7000, 0x3000
	tlb.lo[6] = cpu.TLBLoValid

	if err := ResolveFor(FaultRead, 0x400010, as); err != nil {
		t.Fatal(err)
	}

	if tlb.hi[5] != 0x400000 || tlb.lo[5]&cpu.TLBLoValid == 0 {
		t.Fatalf("expected entry 5 to be used; got (0x%x, 0x%x)", tlb.hi[5], tlb.lo[5])
	}
	for i := 0; i < 5; i++ {
		if tlb.lo[i] != cpu.TLBLoValid {
			t.Fatalf("expected entry %d to be untouched", i)
		}
	}
}

func TestResolveForErrors(t *testing.T) {
	defer resetMemory()
	setupMemory(t, 64)

	as := loadedAddrSpace(t)
	tlb := useFakeTLB(t)

	specs := []struct {
		kind      FaultKind
		faultAddr uintptr
		as        *AddrSpace
		expErr    interface{}
	}{
		{FaultKind(3), 0x400000, as, errInvalidFaultKind},
		{FaultKind(255), 0x400000, as, errInvalidFaultKind},
		{FaultRead, 0x400000, nil, errNoAddrSpace},
		{FaultWrite, 0x402000, as, errBadFaultAddr},
		{FaultRead, 0, as, errBadFaultAddr},
		{FaultRead, UserStackTop, as, errBadFaultAddr},
		{FaultWrite, 0x400000, &AddrSpace{}, errBadFaultAddr},
	}

	for specIndex, spec := range specs {
		if err := ResolveFor(spec.kind, spec.faultAddr, spec.as); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}

	for i := range tlb.lo {
		if tlb.lo[i] != 0 {
			t.Fatalf("expected failed faults to leave the TLB untouched; entry %d is 0x%x", i, tlb.lo[i])
		}
	}
}

func TestResolveForReadOnlyFault(t *testing.T) {
	panicked := mockPanic(t)

	if err := ResolveFor(FaultReadOnly, 0x400000, &AddrSpace{}); err != errReadOnlyFault {
		t.Fatalf("expected errReadOnlyFault; got %v", err)
	}
	if *panicked != errReadOnlyFault {
		t.Fatalf("expected panic with errReadOnlyFault; got %v", *panicked)
	}
}

func TestResolveForTLBExhausted(t *testing.T) {
	defer resetMemory()
	setupMemory(t, 64)

	as := loadedAddrSpace(t)
	tlb := useFakeTLB(t)

	// fill every entry through the resolver itself
	for i := 0; i < cpu.NumTLB; i++ {
		vaddr := userStackBase + uintptr(i%StackPages)*mm.PageSize
		if err := ResolveFor(FaultRead, vaddr, as); err != nil {
			t.Fatalf("[entry %d] unexpected error: %v", i, err)
		}
	}

	hi, lo := tlb.hi, tlb.lo
	if err := ResolveFor(FaultWrite, 0x400000, as); err != errTLBExhausted {
		t.Fatalf("expected errTLBExhausted; got %v", err)
	}

	// no entry was evicted
	if tlb.hi != hi || tlb.lo != lo {
		t.Fatal("expected a full TLB to be left untouched")
	}
	if tlb.ipl != cpu.IPLNone {
		t.Fatal("expected the interrupt priority level to be restored")
	}
}

func TestResolve(t *testing.T) {
	defer func() {
		resetMemory()
		SetAddrSpaceProvider(nil)
	}()
	setupMemory(t, 64)

	as := loadedAddrSpace(t)
	tlb := useFakeTLB(t)

	if err := Resolve(FaultRead, 0x400000); err != errNoAddrSpace {
		t.Fatalf("expected errNoAddrSpace without a current address space; got %v", err)
	}

	SetAddrSpaceProvider(func() *AddrSpace { return as })
	if err := Resolve(FaultRead, 0x400000); err != nil {
		t.Fatal(err)
	}
	if tlb.lo[0]&cpu.TLBLoValid == 0 {
		t.Fatal("expected an entry to be installed")
	}
}
