package ntboot

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"ntboot/diag"
)

// MemDescType classifies a run of physical pages the way the kernel's PFN
// database expects to find them tagged (§3 "Memory descriptor").
type MemDescType int

const (
	LoaderFree MemDescType = iota
	LoaderSystemCode
	LoaderHalCode
	LoaderBootDriver
	LoaderRegistryData
	LoaderNlsData
	LoaderStartupKernelStack
	LoaderOsloaderHeap
	LoaderMemoryData
	LoaderFirmwarePermanent
	LoaderFirmwareTemporary
	LoaderBad
	LoaderXIPRom
)

func (t MemDescType) String() string {
	names := [...]string{
		"LoaderFree", "LoaderSystemCode", "LoaderHalCode", "LoaderBootDriver",
		"LoaderRegistryData", "LoaderNlsData", "LoaderStartupKernelStack",
		"LoaderOsloaderHeap", "LoaderMemoryData", "LoaderFirmwarePermanent",
		"LoaderFirmwareTemporary", "LoaderBad", "LoaderXIPRom",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "LoaderUnknown"
}

// MemDescriptor is one {type, base_page, page_count} run, §3.
type MemDescriptor struct {
	Type      MemDescType
	BasePage  uint64
	PageCount uint64
}

func (d MemDescriptor) endPage() uint64 { return d.BasePage + d.PageCount }

// NumaRange is the supplemented NUMA memory range entry (§3.1, 2004+).
type NumaRange struct {
	BasePage  uint64
	PageCount uint64
	Proximity uint32
}

// MemoryMap owns the single untyped physical pool for the whole run (§5).
// It is not safe for concurrent use; the bootloader is single-threaded.
type MemoryMap struct {
	log   *diag.Logger
	descs []MemDescriptor // always sorted by BasePage, non-overlapping
	numa  []NumaRange
}

// NewMemoryMap seeds the map with the caller's full physical inventory,
// every page initially LoaderFree except what inventory itself excludes
// (e.g. firmware-reserved runs the collaborator already classified).
func NewMemoryMap(l *diag.Logger, inventory []MemDescriptor) *MemoryMap {
	m := &MemoryMap{log: l}
	m.descs = append(m.descs, inventory...)
	sort.Slice(m.descs, func(i, j int) bool { return m.descs[i].BasePage < m.descs[j].BasePage })
	return m
}

// Allocate splits a LoaderFree run and returns the base page of a
// page-count-sized, alignment-page-aligned region now classed as typ.
// First-fit upward, per §4.5 policy: deterministic, so repeated runs with
// the same inventory produce the same addresses.
func (m *MemoryMap) Allocate(pages uint64, typ MemDescType, alignPages uint64) (uint64, error) {
	if alignPages == 0 {
		alignPages = 1
	}
	for i := range m.descs {
		d := m.descs[i]
		if d.Type != LoaderFree {
			continue
		}
		base := AlignUp(d.BasePage, alignPages)
		if base+pages > d.endPage() {
			continue
		}
		m.splitAndClaim(i, base, pages, typ)
		return base, nil
	}
	return 0, fmt.Errorf("allocate %d pages as %s: %w", pages, typ, ErrNoMemory)
}

// ReserveBelow allocates pages whose end does not exceed limitPage, for
// real-mode callable regions and identity-mapped boot code (§4.5).
func (m *MemoryMap) ReserveBelow(pages uint64, limitPage uint64, typ MemDescType) (uint64, error) {
	for i := range m.descs {
		d := m.descs[i]
		if d.Type != LoaderFree {
			continue
		}
		base := d.BasePage
		if base+pages > d.endPage() {
			continue
		}
		if base+pages > limitPage {
			continue
		}
		m.splitAndClaim(i, base, pages, typ)
		return base, nil
	}
	return 0, fmt.Errorf("reserve %d pages below page %#x as %s: %w", pages, limitPage, typ, ErrNoMemory)
}

// splitAndClaim carves [base, base+pages) out of the free descriptor at
// index i, which must fully contain that range, replacing it with up to
// three descriptors (leading free remainder, the claimed run, trailing free
// remainder) and re-sorting.
func (m *MemoryMap) splitAndClaim(i int, base, pages uint64, typ MemDescType) {
	d := m.descs[i]
	var repl []MemDescriptor
	if base > d.BasePage {
		repl = append(repl, MemDescriptor{Type: LoaderFree, BasePage: d.BasePage, PageCount: base - d.BasePage})
	}
	repl = append(repl, MemDescriptor{Type: typ, BasePage: base, PageCount: pages})
	if tailStart := base + pages; tailStart < d.endPage() {
		repl = append(repl, MemDescriptor{Type: LoaderFree, BasePage: tailStart, PageCount: d.endPage() - tailStart})
	}

	tail := append([]MemDescriptor{}, m.descs[i+1:]...)
	m.descs = append(append(m.descs[:i:i], repl...), tail...)
}

// Reclassify overwrites the type of an existing run, splitting surrounding
// descriptors if the run only partially covers them.
func (m *MemoryMap) Reclassify(base, pages uint64, newType MemDescType) error {
	end := base + pages
	var out []MemDescriptor
	var coveredPages uint64
	for _, d := range m.descs {
		if d.endPage() <= base || d.BasePage >= end {
			out = append(out, d)
			continue
		}
		if d.BasePage < base {
			out = append(out, MemDescriptor{Type: d.Type, BasePage: d.BasePage, PageCount: base - d.BasePage})
		}
		lo, hi := base, end
		if d.BasePage > lo {
			lo = d.BasePage
		}
		if d.endPage() < hi {
			hi = d.endPage()
		}
		out = append(out, MemDescriptor{Type: newType, BasePage: lo, PageCount: hi - lo})
		coveredPages += hi - lo
		if d.endPage() > end {
			out = append(out, MemDescriptor{Type: d.Type, BasePage: end, PageCount: d.endPage() - end})
		}
	}
	if coveredPages != pages {
		return fmt.Errorf("reclassify [%#x,%#x): %w", base, end, ErrNoMemory)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BasePage < out[j].BasePage })
	m.descs = out
	return nil
}

// SetNuma records an optional NUMA inventory that Finalize hands back
// unchanged. Finalize does not consult any VersionDescriptor; the
// HasNumaRanges gate lives in StructBuilder.Build, which serializes
// BuildInputs.NumaRanges itself.
func (m *MemoryMap) SetNuma(ranges []NumaRange) {
	m.numa = append([]NumaRange{}, ranges...)
}

// Finalize coalesces adjacent same-type runs and returns the immutable
// descriptor chain plus the NUMA range table (empty if none was set), logging
// a byte-formatted summary the way the teacher logs image sizes.
func (m *MemoryMap) Finalize() ([]MemDescriptor, []NumaRange) {
	sort.Slice(m.descs, func(i, j int) bool { return m.descs[i].BasePage < m.descs[j].BasePage })

	var out []MemDescriptor
	for _, d := range m.descs {
		if d.PageCount == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Type == d.Type && out[n-1].endPage() == d.BasePage {
			out[n-1].PageCount += d.PageCount
			continue
		}
		out = append(out, d)
	}
	m.descs = out

	if m.log != nil {
		totals := map[MemDescType]uint64{}
		var largestFree uint64
		for _, d := range out {
			totals[d.Type] += d.PageCount
			if d.Type == LoaderFree && d.PageCount > largestFree {
				largestFree = d.PageCount
			}
		}
		for t, pages := range totals {
			m.log.Infof("memory map: %s = %s", t, humanize.Bytes(pages*PageSize))
		}
		m.log.Infof("memory map: largest free run %s", humanize.Bytes(largestFree*PageSize))
	}

	return append([]MemDescriptor{}, out...), append([]NumaRange{}, m.numa...)
}
