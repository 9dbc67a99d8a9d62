package ntboot

// LoadFlags bits carried on a Module entry's load-flags bitset.
type LoadFlags uint32

const (
	LoadFlagNone           LoadFlags = 0
	LoadFlagSystemImage    LoadFlags = 1 << 0
	LoadFlagEntryProcessed LoadFlags = 1 << 1
)

// DriverStatus is the per-entry recovery status the kernel reads back off a
// BOOT_DRIVER_LIST_ENTRY when DependencyResolver could not fully resolve a
// boot driver (§4.4 failure semantics, S3).
type DriverStatus uint32

const (
	DriverStatusOK DriverStatus = iota
	DriverStatusImageUnreadable
	DriverStatusSignatureInvalid
	DriverStatusMissingExport
)

// Module is one loaded PE image: a kernel, the HAL, or a boot driver. Its
// fields are exactly what the kernel's LDR_DATA_TABLE_ENTRY-family structs
// need: a VA-resolved path and name, the physical/virtual placement PeLoader
// and PageTableBuilder agreed on, and the bookkeeping DependencyResolver
// attaches once the image is classified.
type Module struct {
	FullPath    string
	BaseName    string
	PhysBase    uint64
	VirtualBase uint64
	SizeOfImage uint32
	EntryPoint  uint64
	Checksum    uint32
	LoadFlags   LoadFlags
	ExceptionTableVA uint64
	DebugInfoVA      uint64

	// Status is DriverStatusOK unless this module is a boot driver that
	// DependencyResolver could not fully resolve; the kernel observes this
	// field instead of the load failing the whole boot (§4.4).
	Status DriverStatus

	// CodeIntegrity is populated (never enforced) from an Authenticode
	// signature on the image, if present. Zero value if absent or
	// unparsable — see PeLoader's signature population policy (§4.3).
	CodeIntegrity CodeIntegrityInfo
}

// CodeIntegrityInfo is the populated-but-unenforced SYSTEM_CODE_INTEGRITY
// placeholder described in SPEC_FULL §3.1.
type CodeIntegrityInfo struct {
	Present      bool
	SignerName   string
	DigestAlgOID string
}

// ModuleList is the ordering DependencyResolver produces: load order first
// (HAL, then kernel, then drivers in dependency order), plus the subset
// views the kernel walks through separate list heads on versions that carry
// them (§3 "three lists the kernel walks").
type ModuleList struct {
	LoadOrder      []*Module
	BootDriver     []*Module
	CoreDriver     []*Module
	CoreExtension  []*Module
	TpmCore        []*Module
	EarlyLaunch    []*Module
}

// HalAndKernel returns the HAL and kernel modules in load-order position,
// enforcing the invariant that the kernel is always LoadOrder[1] (§3).
func (m ModuleList) HalAndKernel() (hal, kernel *Module, ok bool) {
	if len(m.LoadOrder) < 2 {
		return nil, nil, false
	}
	return m.LoadOrder[0], m.LoadOrder[1], true
}
