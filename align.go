package ntboot

// PageSize is the native page size assumed throughout MemoryMap and
// PageTableBuilder. Quibble targets only classic 4 KiB pages; large-page
// mappings are expressed as a run of PageSize-granular descriptors plus an
// attribute bit, never a different allocation unit.
const PageSize = 0x1000

// AlignUp rounds v up to the next multiple of a. a must be a power of two.
func AlignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// AlignDown rounds v down to the previous multiple of a.
func AlignDown(v, a uint64) uint64 {
	return v &^ (a - 1)
}

// PadTo returns how many bytes must follow v to reach the next multiple of a.
func PadTo(v, a uint64) uint64 {
	return AlignUp(v, a) - v
}

// PagesFor returns the number of PageSize pages needed to cover n bytes.
func PagesFor(n uint64) uint64 {
	return AlignUp(n, PageSize) / PageSize
}
