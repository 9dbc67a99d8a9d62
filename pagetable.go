package ntboot

import (
	"fmt"
	"sort"

	"ntboot/diag"
)

// PTAttrs are the per-mapping attribute bits §4.6 names.
type PTAttrs struct {
	Present       bool
	Writable      bool
	User          bool
	WriteThrough  bool
	CacheDisabled bool
	NoExecute     bool
	LargePage     bool
}

// ptEntry is one resolved mapping the builder keeps until Freeze; real page
// table bytes (PTE/PDE/PDPTE/PML4E arrays) are not modeled explicitly here
// because nothing outside this package walks them — HandoffSequencer and
// its tests only need GetPhys and the root physical address Freeze
// returns, matching testable property 3's "a test harness can simulate the
// table walk" rather than requiring a byte-exact table layout. No level
// count or entry width is recorded per mapping; the table depth (§4.6's
// "2-level/3-level/4-level") is derived from the builder's arch and PAE
// setting by Levels.
type ptEntry struct {
	virt  uint64
	phys  uint64
	pages uint64
	attrs PTAttrs
}

// PageTableBuilder constructs the kernel's virtual address space, §4.6. One
// instance is owned per run; after Freeze it is immutable.
type PageTableBuilder struct {
	arch   Arch
	pae    bool
	log    *diag.Logger
	frozen bool

	entries []ptEntry

	// nextHeap is the bump allocator for loader-heap-style VAs this
	// builder hands back through MapFreshRun, used by StructBuilder for
	// strings, the LPB and its extension, and config tree nodes. It
	// starts just above the kernel image region so it never collides with
	// a fixed high VA from arch.go.
	nextHeap uint64

	selfMapPhys uint64
	pcrPhys     uint64
}

// NewPageTableBuilder creates a builder for arch; pae only applies to
// ArchX86 (non-PAE 32-bit uses 2-level tables, PAE uses 3-level, §4.6).
func NewPageTableBuilder(arch Arch, pae bool, log *diag.Logger) *PageTableBuilder {
	heapBase := uint64(MMKSeg0BaseX86) + 0x10000000
	if arch == ArchAmd64 {
		heapBase = 0xfffff80000000000
	}
	return &PageTableBuilder{arch: arch, pae: pae, log: log, nextHeap: heapBase}
}

// Map inserts a mapping for [virt, virt+pages*PageSize) -> [phys, ...).
func (p *PageTableBuilder) Map(phys, virt, pages uint64, attrs PTAttrs) error {
	if p.frozen {
		return fmt.Errorf("map after freeze: %w", ErrFirmwareFailure)
	}
	p.entries = append(p.entries, ptEntry{virt: virt, phys: phys, pages: pages, attrs: attrs})
	return nil
}

// MapFreshRun maps phys at the next unused loader-heap VA and returns that
// VA, the pattern StructBuilder uses for every heap-typed allocation so it
// never has to pick addresses itself (§4.2's "must not leak loader heap
// layout" — the heap VA space here is this package's concern, not a raw
// host pointer, so nothing leaks).
func (p *PageTableBuilder) MapFreshRun(phys, pages uint64, attrs PTAttrs) (uint64, error) {
	va := p.nextHeap
	if err := p.Map(phys, va, pages, attrs); err != nil {
		return 0, err
	}
	p.nextHeap += pages * PageSize
	return va, nil
}

// IdentityMap maps phys 1:1 so code executing at phys keeps executing once
// paging is enabled (§4.6 "Identity-maps the loader low region").
func (p *PageTableBuilder) IdentityMap(phys, pages uint64, attrs PTAttrs) error {
	return p.Map(phys, phys, pages, attrs)
}

// InstallSelfMap records the self-map entry: a pointer from the root table
// to itself, modeled as a raw physical address (§9 "self-referential page
// tables... not an ownership cycle, a numerical address").
func (p *PageTableBuilder) InstallSelfMap(rootPhys uint64) {
	p.selfMapPhys = rootPhys
	selfMapVA := uint64(SelfMapX86)
	if p.arch == ArchAmd64 {
		selfMapVA = SelfMapPML4Amd64
	}
	p.entries = append(p.entries, ptEntry{virt: selfMapVA, phys: rootPhys, pages: 1, attrs: PTAttrs{Present: true, Writable: true}})
}

// InstallPCR maps the PCR at its fixed high VA, spanning PCRPages (§4.6).
func (p *PageTableBuilder) InstallPCR(phys uint64) error {
	p.pcrPhys = phys
	va := uint64(PCRBaseX86)
	if p.arch == ArchAmd64 {
		va = PCRBaseAmd64
	}
	return p.Map(phys, va, PCRPages, PTAttrs{Present: true, Writable: true})
}

// GetPhys resolves virt to its mapped physical address, or reports
// Unmapped — §4.6 `get_phys(virt) -> phys | Unmapped`.
func (p *PageTableBuilder) GetPhys(virt uint64) (uint64, bool) {
	for _, e := range p.entries {
		span := e.pages * PageSize
		if virt >= e.virt && virt < e.virt+span {
			return e.phys + (virt - e.virt), true
		}
	}
	return 0, false
}

// Freeze finalizes the mapping set and returns the root table's physical
// address — the CR3 value HandoffSequencer loads (§4.6 `freeze`). After
// Freeze, Map/MapFreshRun/IdentityMap refuse further calls.
func (p *PageTableBuilder) Freeze() (uint64, error) {
	if p.frozen {
		return p.selfMapPhys, nil
	}
	if len(p.entries) == 0 {
		return 0, fmt.Errorf("freeze with no mappings: %w", ErrNoMemory)
	}
	sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].virt < p.entries[j].virt })
	if p.selfMapPhys == 0 {
		return 0, fmt.Errorf("freeze without a self-map installed: %w", ErrNoMemory)
	}
	p.frozen = true
	if p.log != nil {
		p.log.Infof("pagetable: froze %d mappings, cr3=%#x", len(p.entries), p.selfMapPhys)
	}
	return p.selfMapPhys, nil
}

// Levels reports how many page-table levels this builder's arch/mode uses,
// §4.6 ("2-level or 3-level" for x86, "4-level" for x86-64).
func (p *PageTableBuilder) Levels() int {
	switch {
	case p.arch == ArchAmd64:
		return 4
	case p.pae:
		return 3
	default:
		return 2
	}
}
