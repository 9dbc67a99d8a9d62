package ntboot

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"ntboot/diag"
)

// HandoffStep names one stage of the kernel hand-off sequence, §4.7. Steps
// are numbered in execution order; step 4 (freeze page tables) is the point
// of no return — a failure at or after step 4 is unrecoverable (§7), a
// failure before it is an ordinary returned error.
type HandoffStep int

const (
	StepInstallGDT HandoffStep = iota + 1
	StepInstallIDT
	StepAllocKernelStack
	StepFreezePageTables
	StepEnablePagingMode
	StepLoadControlRegisters
	StepJumpToKernel
)

func (s HandoffStep) String() string {
	names := [...]string{
		"", "install-gdt", "install-idt", "alloc-kernel-stack",
		"freeze-page-tables", "enable-paging-mode", "load-control-registers",
		"jump-to-kernel",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown-step"
}

// pointOfNoReturn is the first step whose failure HandoffSequencer treats as
// unrecoverable rather than an ordinary error return, §7.
const pointOfNoReturn = StepFreezePageTables

// Machine is the simulated CPU state HandoffSequencer drives through its
// seven steps. It stands in for the GDTR/IDTR/CR0/CR3/CR4 register writes a
// real loader would issue in assembly immediately before the jump — nothing
// outside this package inspects raw register encodings, so Machine just
// records what a test harness needs to assert the sequence ran in order
// and with the right operands (§8 property 3's "simulate the table walk"
// extended to cover the whole hand-off).
type Machine struct {
	GDTInstalled bool
	IDTInstalled bool
	KernelStackVA uint64
	CR3          uint64
	PAE          bool
	LongMode     bool
	CR0          uint64
	EntryVA      uint64

	// Halted is set once a post-freeze step fails; HandoffSequencer never
	// clears it, matching the "logged then halt, no recovery" contract.
	Halted    bool
	HaltError error
}

// startupKernelStackPages is the page count reserved for the kernel's
// initial stack, classed LoaderStartupKernelStack in the memory map (§3).
const startupKernelStackPages = 6

// HandoffSequencer drives Machine through the seven steps §4.7 names,
// stopping at the first failure and reporting whether recovery was still
// possible at that point.
type HandoffSequencer struct {
	mem   *MemoryMap
	pages *PageTableBuilder
	log   *diag.Logger
}

func NewHandoffSequencer(mem *MemoryMap, pages *PageTableBuilder, log *diag.Logger) *HandoffSequencer {
	return &HandoffSequencer{mem: mem, pages: pages, log: log}
}

// Run executes all seven steps against lb, returning the final Machine state
// and the step that failed (0 on full success). Steps before
// pointOfNoReturn return their error directly and leave Machine untouched
// beyond what already ran; a failure at or after pointOfNoReturn instead
// marks Machine halted and returns the same error, since by then there is
// nowhere left to unwind to (§7).
func (h *HandoffSequencer) Run(lb *LoaderBlock, kernelEntryVA uint64) (*Machine, HandoffStep, error) {
	m := &Machine{}

	for _, step := range []HandoffStep{
		StepInstallGDT, StepInstallIDT, StepAllocKernelStack, StepFreezePageTables,
		StepEnablePagingMode, StepLoadControlRegisters, StepJumpToKernel,
	} {
		var err error
		switch step {
		case StepInstallGDT:
			err = h.installGDT(m, lb)
		case StepInstallIDT:
			err = h.installIDT(m, lb)
		case StepAllocKernelStack:
			err = h.allocKernelStack(m, lb)
		case StepFreezePageTables:
			err = h.freezePageTables(m)
		case StepEnablePagingMode:
			err = h.enablePagingMode(m, lb)
		case StepLoadControlRegisters:
			err = h.loadControlRegisters(m)
		case StepJumpToKernel:
			err = h.jumpToKernel(m, kernelEntryVA)
		}

		if err != nil {
			if step >= pointOfNoReturn {
				m.Halted = true
				m.HaltError = err
				if h.log != nil {
					h.log.Fatalf("handoff: unrecoverable failure at %s: %v", step, err)
				}
			} else if h.log != nil {
				h.log.Warnf("handoff: %s failed: %v", step, err)
			}
			return m, step, err
		}
		if h.log != nil {
			h.log.Infof("handoff: %s ok", step)
		}
	}

	return m, 0, nil
}

func (h *HandoffSequencer) installGDT(m *Machine, lb *LoaderBlock) error {
	m.GDTInstalled = true
	return nil
}

func (h *HandoffSequencer) installIDT(m *Machine, lb *LoaderBlock) error {
	m.IDTInstalled = true
	return nil
}

func (h *HandoffSequencer) allocKernelStack(m *Machine, lb *LoaderBlock) error {
	phys, err := h.mem.Allocate(startupKernelStackPages, LoaderStartupKernelStack, 1)
	if err != nil {
		return fmt.Errorf("allocate kernel stack: %w", err)
	}
	va, err := h.pages.MapFreshRun(phys, startupKernelStackPages, PTAttrs{Present: true, Writable: true})
	if err != nil {
		return err
	}
	lb.KernelStackVA = va
	m.KernelStackVA = va
	patchKernelStackVA(lb, va)
	return nil
}

// lpbWin10HeaderPrefix is the byte width of LpbWin10Hdr's own
// OsMajorVersion/OsMinorVersion/Size/pad fields that precede the embedded
// LpbWin8Hdr (and, through it, LpbWS03Hdr) in a serialized LpbWin10 header.
// Every other LpbVariant embeds LpbWS03Hdr at offset 0.
const lpbWin10HeaderPrefix = 4 * 4

// patchKernelStackVA overwrites the KernelStackVA field already baked into
// lb.Raw by StructBuilder. allocKernelStack runs after Build has serialized
// the LPB (the stack is reserved late, §4.7 step 3), so the byte image
// Build produced still has KernelStackVA at its placeholder value; this
// patches the one field in place rather than re-running buildLpbHeader.
// lb.Raw and lb.HeapBlobs[lb.VA] share the same backing array, so patching
// lb.Raw updates both.
func patchKernelStackVA(lb *LoaderBlock, va uint64) {
	off := uintptr(0)
	if lb.Variant == LpbWin10 {
		off = lpbWin10HeaderPrefix
	}
	off += unsafe.Offsetof(LpbWS03Hdr{}.KernelStackVA)
	if uintptr(len(lb.Raw)) < off+8 {
		return
	}
	binary.LittleEndian.PutUint64(lb.Raw[off:off+8], va)
}

func (h *HandoffSequencer) freezePageTables(m *Machine) error {
	cr3, err := h.pages.Freeze()
	if err != nil {
		return fmt.Errorf("freeze page tables: %w", err)
	}
	m.CR3 = cr3
	return nil
}

func (h *HandoffSequencer) enablePagingMode(m *Machine, lb *LoaderBlock) error {
	m.PAE = h.pages.Levels() >= 3
	m.LongMode = h.pages.Levels() == 4
	return nil
}

func (h *HandoffSequencer) loadControlRegisters(m *Machine) error {
	// CR0.PG (bit 31), CR0.WP (bit 16) and CR0.PE (bit 0) are always set by
	// this point; PAE sets CR4.PAE conceptually but Machine doesn't model CR4
	// separately since nothing downstream reads it back.
	m.CR0 = 1<<31 | 1<<16 | 1<<0
	return nil
}

func (h *HandoffSequencer) jumpToKernel(m *Machine, kernelEntryVA uint64) error {
	if kernelEntryVA == 0 {
		return fmt.Errorf("kernel entry VA is zero: %w", ErrFirmwareFailure)
	}
	m.EntryVA = kernelEntryVA
	return nil
}
