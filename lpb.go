package ntboot

import "unsafe"

// LoaderParameterBlock variants, §3 "Loader parameter block (LPB)". The LPB
// is the root structure the kernel receives; only its header shape changes
// across the four LpbVariant tags (WS03/Vista/Win8/Win10), with every
// version-specific extension living in the separate Ext* block (ext.go)
// reached through the Extension pointer field every variant carries.
//
// Architecture sub-block and firmware information union are both modeled as
// raw uint64 fields holding kernel-side VAs rather than embedded unions —
// StructBuilder resolves the concrete bytes those VAs point at separately,
// matching §4.2's "the builder must not leak loader heap layout into the
// LPB" policy: nothing downstream of PageTableBuilder ever sees a host
// pointer.

// LpbWS03Hdr is the WS03 LPB: no OsMajorVersion/OsMinorVersion prefix, list
// heads start the struct (§6: "header starts at LoadOrderListHead").
type LpbWS03Hdr struct {
	LoadOrderListHead  ListEntry
	MemoryDescListHead ListEntry
	BootDriverListHead ListEntry

	KernelStackVA uint64
	PrcbVA        uint64
	ProcessVA     uint64
	ThreadVA      uint64

	RegistryLengh uint64 // spelling matches the field's NT name, not a typo
	RegistryBase  uint64

	ConfigurationRootVA uint64

	ArcBootDeviceName  [64]byte
	ArcHalDeviceName   [64]byte
	NtBootPathName     [64]byte
	NtHalPathName      [64]byte
	LoadOptions        [256]byte

	ArcDiskInfoListHead ListEntry

	ArchExtension uint64 // I386 sub-block VA, arch-dependent
	Extension     uint64 // LOADER_PARAMETER_EXTENSION VA

	FirmwareInformation uint64 // EFI_FIRMWARE_INFORMATION VA

	Reserved [64]byte
}

// LpbVistaHdr adds nothing to the header shape over WS03; Vista's changes
// are entirely in the extension block.
type LpbVistaHdr struct {
	LpbWS03Hdr
}

// LpbWin8Hdr adds a NUMA processor map pointer and reserved bytes at the
// LPB level (the core driver list head itself lives in the extension).
type LpbWin8Hdr struct {
	LpbVistaHdr
	NumaProcessorMapVA uint64
	Reserved           [24]byte
}

// LpbWin10Hdr adds the OsMajorVersion/OsMinorVersion/Size header prefix
// (§6: "OsMajorVersion absent" is the WS03/Vista/Win8 behavior; Win10 is
// where it first appears at the LPB level distinct from the extension's own
// Win7+ OsMajorVersion/Size prefix).
type LpbWin10Hdr struct {
	OsMajorVersion uint32
	OsMinorVersion uint32
	Size           uint32
	_              uint32 // alignment pad, not a real field
	LpbWin8Hdr
}

const (
	sizeofLpbWS03Hdr   = unsafe.Sizeof(LpbWS03Hdr{})
	sizeofLpbVistaHdr  = unsafe.Sizeof(LpbVistaHdr{})
	sizeofLpbWin8Hdr   = unsafe.Sizeof(LpbWin8Hdr{})
	sizeofLpbWin10Hdr  = unsafe.Sizeof(LpbWin10Hdr{})
)

// LoaderBlock is the architecture-and-version-erased view every downstream
// component (PageTableBuilder, HandoffSequencer) actually operates on;
// StructBuilder is the only place that knows which concrete Lpb*Hdr a given
// VersionDescriptor maps to and serializes accordingly. KernelStackVA is
// kept here because HandoffSequencer patches it post-construction (the
// kernel stack is allocated after the rest of the LPB, §4.7 step 3).
type LoaderBlock struct {
	Variant    LpbVariant
	ExtVariant ExtVariant
	VA         uint64 // kernel-side VA of the serialized LPB itself

	KernelStackVA uint64
	ExtensionVA   uint64
	ConfigRootVA  uint64

	// ArcBootPathVA, ArcHalPathVA, NtBootPathVA and LoadOptionsVA are the
	// kernel-side VAs of the four wide-char strings §3 requires the LPB
	// carry ("ARC boot/HAL/path strings, load options string"). StructBuilder
	// clones each string into loader-heap pages and records the VA here
	// rather than discarding it once cloned.
	ArcBootPathVA uint64
	ArcHalPathVA  uint64
	NtBootPathVA  uint64
	LoadOptionsVA uint64

	// DiskSignatureVA, EntropyVA, NumaTableVA and CodeIntegrityVA are the
	// VAs of the optional content blocks StructBuilder placed into
	// loader-heap pages and pointed at from the extension block, present
	// only when the descriptor's corresponding flag is set.
	DiskSignatureVA uint64
	EntropyVA       uint64
	NumaTableVA     uint64
	CodeIntegrityVA uint64

	Modules ModuleList

	// Raw holds the serialized, version-correct LPB header bytes once
	// StructBuilder has filled them; HandoffSequencer only overwrites the
	// KernelStackVA field in place at its fixed offset.
	Raw []byte

	// ExtensionRaw holds the serialized version-specific extension block
	// bytes pointed at by ExtensionVA, the Ext* struct literal StructBuilder
	// constructed for Variant/ExtVariant.
	ExtensionRaw []byte

	// HeapBlobs records every loader-heap byte range StructBuilder placed,
	// keyed by the VA it was mapped at. Pointer fields inside Raw and
	// ExtensionRaw only carry VAs, matching the real LOADER_PARAMETER_BLOCK
	// layout; HeapBlobs is how a test (or a future consumer that isn't
	// walking real mapped memory) reaches the bytes a VA field refers to
	// without re-implementing a physical memory reader.
	HeapBlobs map[uint64][]byte
}
