package ntboot

import "fmt"

// LpbVariant names the shape of the root LOADER_PARAMETER_BLOCK.
type LpbVariant int

const (
	LpbWS03 LpbVariant = iota
	LpbVista
	LpbWin8
	LpbWin10
)

func (v LpbVariant) String() string {
	switch v {
	case LpbWS03:
		return "WS03"
	case LpbVista:
		return "VISTA"
	case LpbWin8:
		return "WIN8"
	case LpbWin10:
		return "WIN10"
	default:
		return "unknown"
	}
}

// ExtVariant names the shape of the trailing LOADER_PARAMETER_EXTENSION.
// Values are named ExtVariantXxx rather than reusing ext.go's bare ExtXxx
// struct names: the two live in the same package and Go's identifier space
// doesn't distinguish a type from a value, so "ExtWin10" can name only one
// of them.
type ExtVariant int

const (
	ExtVariantWS03 ExtVariant = iota
	ExtVariantVista
	ExtVariantVistaSP2
	ExtVariantWin7
	ExtVariantWin8
	ExtVariantWin81
	ExtVariantWin10
	ExtVariantWin10_1607
	ExtVariantWin10_1703
	ExtVariantWin10_1809
	ExtVariantWin10_1903
	ExtVariantWin10_2004
)

func (v ExtVariant) String() string {
	names := [...]string{
		"WS03", "VISTA", "VISTA_SP2", "WIN7", "WIN8", "WIN81",
		"WIN10", "WIN10_1607", "WIN10_1703", "WIN10_1809", "WIN10_1903", "WIN10_2004",
	}
	if int(v) < len(names) {
		return names[v]
	}
	return "unknown"
}

// EntropyShape describes the size and format of the boot entropy result
// carried in the extension block.
type EntropyShape int

const (
	EntropyNone EntropyShape = iota
	EntropyTPMLdrResult
	Entropy7Source
	Entropy8Source
	Entropy8SourceKd
	Entropy10Source
)

// FirmwareInfoVariant selects which EFI_FIRMWARE_INFORMATION union arm the
// extension's firmware-information field holds.
type FirmwareInfoVariant int

const (
	FirmwareInfoNone FirmwareInfoVariant = iota
	FirmwareInfoWin7
	FirmwareInfoWin8
	FirmwareInfoWin81
)

// VersionDescriptor is the immutable record LookupVersion returns: everything downstream needs to know about a target NT build's
// on-disk contract.
type VersionDescriptor struct {
	Major, Minor uint32
	Build        uint32

	LpbVariant ExtSelector
	ExtVariant ExtVariant
	Entropy    EntropyShape
	Firmware   FirmwareInfoVariant

	HasCoreDriverList   bool
	HasTpmCoreList      bool
	HasHypercallVA      bool
	HasNumaRanges       bool
	HasMiniExecutive    bool
	EntropySourceCount  int
	HasCodeIntegrityExt bool
}

// ExtSelector is a type alias of LpbVariant (the same type, not a distinct
// one), so a VersionDescriptor literal reads as "LpbVariant: LpbWin10"; it
// ranges over the same four LPB shapes.
type ExtSelector = LpbVariant

type versionEntry struct {
	major, minor  uint32
	minBuild      uint32
	lpb           LpbVariant
	ext           ExtVariant
	entropy       EntropyShape
	firmware      FirmwareInfoVariant
	coreDriver    bool
	tpmCore       bool
	hypercallVA   bool
	numaRanges    bool
	miniExec      bool
	entropyCount  int
	codeIntegrity bool
}

// versionTable is ordered by ascending (major, minor, minBuild).
// LookupVersion picks the last entry whose key is <= the requested (major, minor, build),
// realizing the "versions between tabled points use the previous entry's
// layout" policy from §4.1.
var versionTable = []versionEntry{
	{major: 5, minor: 2, minBuild: 3790, lpb: LpbWS03, ext: ExtVariantWS03, entropy: EntropyNone, firmware: FirmwareInfoNone},
	{major: 6, minor: 0, minBuild: 6000, lpb: LpbVista, ext: ExtVariantVista, entropy: EntropyNone, firmware: FirmwareInfoNone},
	{major: 6, minor: 0, minBuild: 6002, lpb: LpbVista, ext: ExtVariantVistaSP2, entropy: EntropyNone, firmware: FirmwareInfoNone},
	{major: 6, minor: 1, minBuild: 7600, lpb: LpbVista, ext: ExtVariantWin7, entropy: EntropyTPMLdrResult, firmware: FirmwareInfoWin7},
	{major: 6, minor: 2, minBuild: 9200, lpb: LpbWin8, ext: ExtVariantWin8, entropy: Entropy7Source, firmware: FirmwareInfoWin8, coreDriver: true, entropyCount: 7},
	{major: 6, minor: 3, minBuild: 9600, lpb: LpbWin8, ext: ExtVariantWin81, entropy: Entropy8Source, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, entropyCount: 8},
	{major: 10, minor: 0, minBuild: 10240, lpb: LpbWin10, ext: ExtVariantWin10, entropy: Entropy8Source, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, entropyCount: 8, codeIntegrity: true},
	{major: 10, minor: 0, minBuild: 10586, lpb: LpbWin10, ext: ExtVariantWin10, entropy: Entropy8Source, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, entropyCount: 8, codeIntegrity: true},
	{major: 10, minor: 0, minBuild: 14393, lpb: LpbWin10, ext: ExtVariantWin10_1607, entropy: Entropy8Source, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, hypercallVA: true, entropyCount: 8, codeIntegrity: true},
	{major: 10, minor: 0, minBuild: 15063, lpb: LpbWin10, ext: ExtVariantWin10_1703, entropy: Entropy8SourceKd, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, hypercallVA: true, entropyCount: 8, codeIntegrity: true},
	{major: 10, minor: 0, minBuild: 16299, lpb: LpbWin10, ext: ExtVariantWin10_1703, entropy: Entropy8SourceKd, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, hypercallVA: true, entropyCount: 8, codeIntegrity: true},
	{major: 10, minor: 0, minBuild: 17763, lpb: LpbWin10, ext: ExtVariantWin10_1809, entropy: Entropy10Source, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, hypercallVA: true, entropyCount: 10, codeIntegrity: true},
	{major: 10, minor: 0, minBuild: 18362, lpb: LpbWin10, ext: ExtVariantWin10_1903, entropy: Entropy10Source, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, hypercallVA: true, miniExec: true, entropyCount: 10, codeIntegrity: true},
	{major: 10, minor: 0, minBuild: 19041, lpb: LpbWin10, ext: ExtVariantWin10_2004, entropy: Entropy10Source, firmware: FirmwareInfoWin81, coreDriver: true, tpmCore: true, hypercallVA: true, miniExec: true, numaRanges: true, entropyCount: 10, codeIntegrity: true},
}

// LookupVersion maps (major, minor, build) to its VersionDescriptor, failing
// closed with ErrUnsupportedVersion outside the NT 5.2-10 range §4.1
// requires.
func LookupVersion(major, minor, build uint32) (VersionDescriptor, error) {
	if major < 5 || (major == 5 && minor < 2) || major > 10 {
		return VersionDescriptor{}, fmt.Errorf("major.minor %d.%d: %w", major, minor, ErrUnsupportedVersion)
	}

	var best *versionEntry
	for i := range versionTable {
		e := &versionTable[i]
		if e.major != major || e.minor != minor {
			continue
		}
		if e.minBuild > build {
			continue
		}
		if best == nil || e.minBuild > best.minBuild {
			best = e
		}
	}
	if best == nil {
		return VersionDescriptor{}, fmt.Errorf("build %d: %w", build, ErrUnsupportedVersion)
	}

	return VersionDescriptor{
		Major: major, Minor: minor, Build: build,
		LpbVariant:          best.lpb,
		ExtVariant:          best.ext,
		Entropy:             best.entropy,
		Firmware:            best.firmware,
		HasCoreDriverList:   best.coreDriver,
		HasTpmCoreList:      best.tpmCore,
		HasHypercallVA:      best.hypercallVA,
		HasNumaRanges:       best.numaRanges,
		HasMiniExecutive:    best.miniExec,
		EntropySourceCount:  best.entropyCount,
		HasCodeIntegrityExt: best.codeIntegrity,
	}, nil
}
