package ntboot_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ntboot"
	"ntboot/diag"
)

func TestMemoryMapAllocateIsFirstFitUpwardAndDeterministic(t *testing.T) {
	inv := []ntboot.MemDescriptor{
		{Type: ntboot.LoaderFree, BasePage: 0, PageCount: 0x10},
		{Type: ntboot.LoaderBad, BasePage: 0x10, PageCount: 0x4},
		{Type: ntboot.LoaderFree, BasePage: 0x14, PageCount: 0x10},
	}

	m1 := ntboot.NewMemoryMap(diag.Discard(), append([]ntboot.MemDescriptor{}, inv...))
	a1, err := m1.Allocate(4, ntboot.LoaderSystemCode, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a1 != 0 {
		t.Fatalf("first allocation base = %#x, want 0 (first-fit upward)", a1)
	}

	m2 := ntboot.NewMemoryMap(diag.Discard(), append([]ntboot.MemDescriptor{}, inv...))
	a2, err := m2.Allocate(4, ntboot.LoaderSystemCode, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a1 != a2 {
		t.Errorf("repeated run with identical inventory gave different addresses: %#x vs %#x", a1, a2)
	}
}

func TestMemoryMapAllocateSkipsReservedRuns(t *testing.T) {
	m := ntboot.NewMemoryMap(diag.Discard(), []ntboot.MemDescriptor{
		{Type: ntboot.LoaderBad, BasePage: 0, PageCount: 0x8},
		{Type: ntboot.LoaderFree, BasePage: 0x8, PageCount: 0x8},
	})
	base, err := m.Allocate(4, ntboot.LoaderSystemCode, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if base != 0x8 {
		t.Errorf("Allocate base = %#x, want 0x8 (first free run after reserved)", base)
	}
}

func TestMemoryMapExhaustion(t *testing.T) {
	m := ntboot.NewMemoryMap(diag.Discard(), []ntboot.MemDescriptor{
		{Type: ntboot.LoaderFree, BasePage: 0, PageCount: 2},
	})
	if _, err := m.Allocate(4, ntboot.LoaderSystemCode, 1); !errors.Is(err, ntboot.ErrNoMemory) {
		t.Errorf("Allocate beyond capacity = %v, want ErrNoMemory", err)
	}
}

// TestMemoryMapFinalizeCoalescesAndCoversEverything is §8 property 2: the
// final descriptor chain is sorted, non-overlapping, and covers every page
// the original inventory covered exactly once.
func TestMemoryMapFinalizeCoalescesAndCoversEverything(t *testing.T) {
	m := ntboot.NewMemoryMap(diag.Discard(), []ntboot.MemDescriptor{
		{Type: ntboot.LoaderFree, BasePage: 0, PageCount: 0x20},
	})
	a, err := m.Allocate(4, ntboot.LoaderSystemCode, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b, err := m.Allocate(4, ntboot.LoaderSystemCode, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	_ = a
	_ = b

	descs, _ := m.Finalize()

	var total uint64
	for i, d := range descs {
		total += d.PageCount
		if i > 0 && descs[i-1].BasePage+descs[i-1].PageCount > d.BasePage {
			t.Fatalf("descriptors overlap: %+v then %+v", descs[i-1], d)
		}
		if i > 0 && descs[i-1].Type == d.Type && descs[i-1].BasePage+descs[i-1].PageCount == d.BasePage {
			t.Fatalf("adjacent same-type runs not coalesced: %+v then %+v", descs[i-1], d)
		}
	}
	if total != 0x20 {
		t.Errorf("total pages after finalize = %#x, want 0x20", total)
	}
}

func TestMemoryMapReclassifySplitsPartialOverlap(t *testing.T) {
	m := ntboot.NewMemoryMap(diag.Discard(), []ntboot.MemDescriptor{
		{Type: ntboot.LoaderFree, BasePage: 0, PageCount: 0x10},
	})
	if err := m.Reclassify(4, 4, ntboot.LoaderNlsData); err != nil {
		t.Fatalf("Reclassify: %v", err)
	}
	descs, _ := m.Finalize()
	if len(descs) != 3 {
		t.Fatalf("Finalize() = %d descriptors, want 3 (pre/claimed/post)", len(descs))
	}
	want := ntboot.MemDescriptor{Type: ntboot.LoaderNlsData, BasePage: 4, PageCount: 4}
	if diff := cmp.Diff(want, descs[1]); diff != "" {
		t.Errorf("middle descriptor mismatch (-want +got):\n%s", diff)
	}
}

// TestMemoryMapReclassifyRejectsPartialCoverage is the regression for a
// silent-truncation bug: a request extending past the tracked inventory
// must fail instead of reclassifying only the covered prefix and dropping
// the rest of the requested range from the map.
func TestMemoryMapReclassifyRejectsPartialCoverage(t *testing.T) {
	m := ntboot.NewMemoryMap(diag.Discard(), []ntboot.MemDescriptor{
		{Type: ntboot.LoaderFree, BasePage: 0, PageCount: 0x10},
	})
	if err := m.Reclassify(0xC, 0x10, ntboot.LoaderNlsData); !errors.Is(err, ntboot.ErrNoMemory) {
		t.Fatalf("Reclassify(0xc,0x10) = %v, want ErrNoMemory", err)
	}
	descs, _ := m.Finalize()
	var total uint64
	for _, d := range descs {
		total += d.PageCount
	}
	if total != 0x10 {
		t.Errorf("total pages after rejected Reclassify = %#x, want 0x10 (map unchanged)", total)
	}
}
