package cpu

// NumTLB is the number of entries in the translation lookaside buffer.
const NumTLB = 64

// TLB entry layout. The high word holds the virtual page number; the low word
// holds the physical page number and the entry flags.
const (
	TLBHiVPage = uint32(0xfffff000)
	TLBLoPPage = uint32(0xfffff000)

	TLBLoNoCache = uint32(0x800)
	TLBLoDirty   = uint32(0x400)
	TLBLoValid   = uint32(0x200)
	TLBLoGlobal  = uint32(0x100)
)

// tlbInvalidBase is the start of the unmapped kernel segment. Virtual pages
// in this segment can never be translated through the TLB, so distinct
// addresses from it are used to fill unused entries.
const tlbInvalidBase = uint32(0x80000)

type tlbEntry struct {
	hi, lo uint32
}

// TLBHiInvalid returns a high word for entry index that can never match a
// user address. Every entry needs a different value because the hardware
// does not allow duplicate virtual pages.
func TLBHiInvalid(index int) uint32 {
	return (tlbInvalidBase + uint32(index)) << 12
}

// TLBLoInvalid returns a low word with the valid bit cleared.
func TLBLoInvalid() uint32 {
	return 0
}

// TLBRead returns the contents of the TLB entry at index on the current
// processor.
func TLBRead(index int) (hi, lo uint32) {
	e := &Current().tlb[index]
	return e.hi, e.lo
}

// TLBWrite overwrites the TLB entry at index on the current processor.
func TLBWrite(hi, lo uint32, index int) {
	Current().tlb[index] = tlbEntry{hi: hi, lo: lo}
}

// TLBProbe looks up the valid entry that translates the virtual page in hi
// and returns its index or -1 if no entry matches.
func TLBProbe(hi uint32) int {
	c := Current()
	for i := range c.tlb {
		if c.tlb[i].hi&TLBHiVPage == hi&TLBHiVPage && c.tlb[i].lo&TLBLoValid != 0 {
			return i
		}
	}

	return -1
}

// Translate emulates the hardware lookup performed on every memory access.
// It returns the physical address for vaddr and whether a valid entry
// matched; a miss is what raises a TLB fault.
func Translate(vaddr uint32) (uint32, bool) {
	index := TLBProbe(vaddr)
	if index < 0 {
		return 0, false
	}

	_, lo := TLBRead(index)
	return (lo & TLBLoPPage) | (vaddr &^ TLBHiVPage), true
}

func (c *CPU) invalidateTLB() {
	for i := range c.tlb {
		c.tlb[i] = tlbEntry{hi: TLBHiInvalid(i), lo: TLBLoInvalid()}
	}
}
