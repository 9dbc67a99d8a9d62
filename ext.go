package ntboot

import "unsafe"

// Extension block variants, §3 "Loader extension block" and §6 selection
// table. Each struct's compiled size is asserted against a literal size
// constant via the array-length idiom from §9: a mismatch in either
// direction makes one of the two array lengths below a negative constant
// expression, which the compiler rejects. Sizes here target the x86-64
// layout, the architecture every numbered scenario in SPEC_FULL §8 states
// its literal offsets against; the parallel x86 sizes are tracked as a
// constant table (extSizesX86 in structbuilder.go) instead of a second
// struct definition. No compile-time assert or test checks that table.

// ExtWS03 is the WS03-era extension: no firmware information, no entropy.
type ExtWS03 struct {
	LoaderPerformanceDataVA uint64
	BootDriverListHead      ListEntry
	Reserved                [232]byte
}

var _ [0x100 - unsafe.Sizeof(ExtWS03{})]byte
var _ [unsafe.Sizeof(ExtWS03{}) - 0x100]byte

// ExtVista adds firmware information over ExtWS03.
type ExtVista struct {
	ExtWS03
	FirmwareInfoVA uint64
	AcpiTableVA    uint64
	Reserved       [48]byte
}

var _ [0x140 - unsafe.Sizeof(ExtVista{})]byte
var _ [unsafe.Sizeof(ExtVista{}) - 0x140]byte

// ExtVistaSP2 adds ResumePages and DumpHeader.
type ExtVistaSP2 struct {
	ExtVista
	ResumePagesVA uint64
	DumpHeaderVA  uint64
	Reserved      [8]byte
}

var _ [0x158 - unsafe.Sizeof(ExtVistaSP2{})]byte
var _ [unsafe.Sizeof(ExtVistaSP2{}) - 0x158]byte

// ExtWin7 adds the OsMajorVersion/Size prefix and TPM boot entropy result.
type ExtWin7 struct {
	OsMajorVersion uint64
	Size           uint64
	ExtVistaSP2
	BootEntropyVA   uint64
	BootEntropySize uint64
	Reserved        [24]byte
}

var _ [0x190 - unsafe.Sizeof(ExtWin7{})]byte
var _ [unsafe.Sizeof(ExtWin7{}) - 0x190]byte

// ExtWin8 adds the core-driver list head.
type ExtWin8 struct {
	ExtWin7
	CoreDriverListHead ListEntry
	Reserved           [64]byte
}

var _ [0x1e0 - unsafe.Sizeof(ExtWin8{})]byte
var _ [unsafe.Sizeof(ExtWin8{}) - 0x1e0]byte

// ExtWin81 adds the TPM-core list head and offline crashdump table.
type ExtWin81 struct {
	ExtWin8
	TpmCoreListHead      ListEntry
	OfflineCrashdumpVA   uint64
	OfflineCrashdumpSize uint64
	Reserved             [48]byte
}

var _ [0x230 - unsafe.Sizeof(ExtWin81{})]byte
var _ [unsafe.Sizeof(ExtWin81{}) - 0x230]byte

// ExtWin10 is the base WIN10 extension (builds 10240, 10586): §8 scenario
// S1 expects its Size field (populated by StructBuilder, not this constant)
// to equal 0x930 on x86-64 — which is exactly this struct's compiled size.
type ExtWin10 struct {
	ExtWin81

	LoaderPerformanceDataV2VA uint64
	NlsDataVA                 uint64
	ArcDiskInfoVA             uint64
	DumpHeaderV2VA            uint64
	FirmwareInfoV2VA          uint64
	SmbiosEpsVA               uint64
	NetworkLoaderBlockVA      uint64
	HalpIrqTranslatorVA       uint64
	LoaderPagesSpanned        uint64
	BootEntropyFlags          uint64
	CodeIntegrityVA           uint64
	DrvDbImageVA              uint64
	DrvDbImageSize            uint64
	EmInfImageVA              uint64
	EmInfImageSize            uint64
	ApiSetSchemaVA            uint64
	ApiSetSchemaSize          uint64
	OfflineCrashdumpV2VA      uint64
	BootOptionsVA             uint64
	TpmBootEntropyResultVA    uint64

	// HiveRecoveryInfo: §9 Open Questions — five undocumented uint32
	// fields, zero-filled and passed through unmodified.
	HiveRecoveryInfo [5]uint32
	hiveRecoveryPad  [4]byte

	Reserved [1608]byte
}

const ExtWin10Amd64Size = 0x930

var _ [ExtWin10Amd64Size - unsafe.Sizeof(ExtWin10{})]byte
var _ [unsafe.Sizeof(ExtWin10{}) - ExtWin10Amd64Size]byte

// ExtWin10_1607 adds IUM policy fields and the hypercall code VA (x64 only;
// carried as a zero field on x86 builds, never interpreted there).
type ExtWin10_1607 struct {
	ExtWin10

	IumPolicyVA     uint64
	IumPolicySize   uint64
	HypercallCodeVA uint64
	VsmpDataVA      uint64

	Reserved [16]byte
}

var _ [0x960 - unsafe.Sizeof(ExtWin10_1607{})]byte
var _ [unsafe.Sizeof(ExtWin10_1607{}) - 0x960]byte

// ExtWin10_1703 adds the build-lab strings and KD boot entropy.
type ExtWin10_1703 struct {
	ExtWin10_1607

	BuildLab       [32]byte
	BuildLabEx     [32]byte
	ResetReason    uint64
	KdEntropyVA    uint64
	KdEntropySize  uint64
}

var _ [0x9b8 - unsafe.Sizeof(ExtWin10_1703{})]byte
var _ [unsafe.Sizeof(ExtWin10_1703{}) - 0x9b8]byte

// ExtWin10_1809 expands performance data and adds leap-second data. Scenario
// S2 (build 17763) expects Size == 0xd60 on x86-64 and LeapSecondData
// "present and null" when the collaborator supplies none — the field
// exists, StructBuilder just never fills it without an input table.
type ExtWin10_1809 struct {
	ExtWin10_1703

	LeapSecondData  uint64
	PerfDataV2VA    uint64
	PerfDataV2Size  uint64

	Reserved [912]byte
}

const ExtWin10_1809Amd64Size = 0xd60

var _ [ExtWin10_1809Amd64Size - unsafe.Sizeof(ExtWin10_1809{})]byte
var _ [unsafe.Sizeof(ExtWin10_1809{}) - ExtWin10_1809Amd64Size]byte

// ExtWin10_1903 adds VSM performance data and the mini-executive
// sub-structure (§3.1: image base/entry/size, populated with zero values
// when VSM is not configured).
type ExtWin10_1903 struct {
	ExtWin10_1809

	MiniExecImageBase   uint64
	MiniExecEntryPoint  uint64
	MiniExecSizeOfImage uint64
	VsmPerfDataVA       uint64

	Reserved [32]byte
}

var _ [0xda0 - unsafe.Sizeof(ExtWin10_1903{})]byte
var _ [unsafe.Sizeof(ExtWin10_1903{}) - 0xda0]byte

// ExtWin10_2004 adds the DrvDB patch fields, an opaque IOMMU fault policy
// passthrough, and the NUMA memory range table. §8 scenario S5 expects
// NumaMemoryRangeCount to sit at byte offset 0xde0 on x86-64.
type ExtWin10_2004 struct {
	ExtWin10_1903

	DrvDbPatchVA      uint64
	DrvDbPatchSize    uint64
	IommuFaultPolicy  uint64 // §9 Open Questions: allowed values undocumented
	ApiSetSchemaPatch uint64
	reservedPreNuma   [32]byte

	NumaMemoryRangeCount uint64
	NumaMemoryRangeVA    uint64

	Reserved [64]byte
}

const ExtWin10_2004NumaOffset = 0xde0

var _ [ExtWin10_2004NumaOffset - unsafe.Offsetof(ExtWin10_2004{}.NumaMemoryRangeCount)]byte
var _ [unsafe.Offsetof(ExtWin10_2004{}.NumaMemoryRangeCount) - ExtWin10_2004NumaOffset]byte

// Named size constants, one per extension variant, so structbuilder.go can
// look sizes up without repeating unsafe.Sizeof call sites.
const (
	sizeofExtWS03         = unsafe.Sizeof(ExtWS03{})
	sizeofExtVista        = unsafe.Sizeof(ExtVista{})
	sizeofExtVistaSP2     = unsafe.Sizeof(ExtVistaSP2{})
	sizeofExtWin7         = unsafe.Sizeof(ExtWin7{})
	sizeofExtWin8         = unsafe.Sizeof(ExtWin8{})
	sizeofExtWin81        = unsafe.Sizeof(ExtWin81{})
	sizeofExtWin10        = unsafe.Sizeof(ExtWin10{})
	sizeofExtWin10_1607   = unsafe.Sizeof(ExtWin10_1607{})
	sizeofExtWin10_1703   = unsafe.Sizeof(ExtWin10_1703{})
	sizeofExtWin10_1809   = unsafe.Sizeof(ExtWin10_1809{})
	sizeofExtWin10_1903   = unsafe.Sizeof(ExtWin10_1903{})
	sizeofExtWin10_2004   = unsafe.Sizeof(ExtWin10_2004{})
)
