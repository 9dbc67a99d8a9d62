package ntboot_test

import (
	"encoding/binary"
	"testing"

	"ntboot"
	"ntboot/diag"
)

// fakeImageSource serves pre-built image bytes from a map, for deps_test.go's
// synthetic HAL/kernel/driver images — the ImageSource a real boot would
// satisfy via bootsource.FileSource.
type fakeImageSource struct {
	images map[string][]byte
}

func (f *fakeImageSource) ReadImage(name string) ([]byte, error) {
	b, ok := f.images[name]
	if !ok {
		return nil, ntboot.ErrBadImage
	}
	return b, nil
}

const (
	depsHeaderSize  = 0x200
	depsSectionRVA  = depsHeaderSize
	depsSectionSize = 0x400
)

// depsImageBuilder synthesizes a minimal PE32+ image carrying an optional
// export and/or import directory, mirroring pe_test.go's peBuilder but
// extended with export-table construction for the root package's own tests
// (deps_test.go can't reach pe_test's unexported helper across packages).
type depsImageBuilder struct {
	imageBase uint64

	exportName  string // empty: no export directory
	exportRVA   uint32 // RVA (relative to image base) the export resolves to

	importLib  string // empty: no import directory
	importFunc string
}

func (b *depsImageBuilder) build() []byte {
	section := make([]byte, depsSectionSize)

	var exportDirRVA, exportDirSize uint32
	if b.exportName != "" {
		const (
			edOff      = 0x00
			funcsOff   = 0x40
			namesOff   = 0x60
			ordsOff    = 0x80
			nameStrOff = 0xa0
		)
		binary.LittleEndian.PutUint32(section[edOff+16:edOff+20], 0) // Base
		binary.LittleEndian.PutUint32(section[edOff+20:edOff+24], 1) // NumberOfFunctions
		binary.LittleEndian.PutUint32(section[edOff+24:edOff+28], 1) // NumberOfNames
		binary.LittleEndian.PutUint32(section[edOff+28:edOff+32], depsSectionRVA+funcsOff)
		binary.LittleEndian.PutUint32(section[edOff+32:edOff+36], depsSectionRVA+namesOff)
		binary.LittleEndian.PutUint32(section[edOff+36:edOff+40], depsSectionRVA+ordsOff)

		binary.LittleEndian.PutUint32(section[funcsOff:funcsOff+4], b.exportRVA)
		binary.LittleEndian.PutUint32(section[namesOff:namesOff+4], depsSectionRVA+nameStrOff)
		binary.LittleEndian.PutUint16(section[ordsOff:ordsOff+2], 0)
		copy(section[nameStrOff:], b.exportName)

		exportDirRVA = depsSectionRVA + edOff
		exportDirSize = 40
	}

	var importDirRVA, importDirSize uint32
	if b.importLib != "" {
		const (
			descOff  = 0x100
			thunkOff = 0x140
			nameOff  = 0x160
			hintOff  = 0x180
		)
		copy(section[nameOff:], b.importLib)
		binary.LittleEndian.PutUint16(section[hintOff:hintOff+2], 0)
		copy(section[hintOff+2:], b.importFunc)

		thunkRVA := depsSectionRVA + uint32(thunkOff)
		binary.LittleEndian.PutUint64(section[thunkOff:thunkOff+8], uint64(depsSectionRVA+uint32(hintOff)))

		binary.LittleEndian.PutUint32(section[descOff+0:descOff+4], 0)
		binary.LittleEndian.PutUint32(section[descOff+12:descOff+16], depsSectionRVA+uint32(nameOff))
		binary.LittleEndian.PutUint32(section[descOff+16:descOff+20], thunkRVA)

		importDirRVA = depsSectionRVA + uint32(descOff)
		importDirSize = 20
	}

	total := depsHeaderSize + len(section)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint16(buf[0:2], 0x5a4d)
	binary.LittleEndian.PutUint32(buf[0x3c:0x40], 0x80)

	peOff := 0x80
	binary.LittleEndian.PutUint32(buf[peOff:peOff+4], 0x00004550)
	coff := buf[peOff+4:]
	binary.LittleEndian.PutUint16(coff[0:2], 0x8664) // pe.MachineAmd64
	binary.LittleEndian.PutUint16(coff[2:4], 1)
	sizeOfOptional := uint16(112 + 16*8)
	binary.LittleEndian.PutUint16(coff[16:18], sizeOfOptional)

	opt := coff[20:]
	binary.LittleEndian.PutUint16(opt[0:2], 0x020b) // pe.Magic64
	binary.LittleEndian.PutUint32(opt[16:20], depsSectionRVA)
	binary.LittleEndian.PutUint64(opt[24:32], b.imageBase)
	binary.LittleEndian.PutUint32(opt[32:36], 0x1000)
	binary.LittleEndian.PutUint32(opt[36:40], 0x200)
	binary.LittleEndian.PutUint32(opt[56:60], uint32(total))
	binary.LittleEndian.PutUint32(opt[64:68], 0xabcd)

	dirs := opt[112:]
	if exportDirSize != 0 {
		binary.LittleEndian.PutUint32(dirs[0:4], exportDirRVA)
		binary.LittleEndian.PutUint32(dirs[4:8], exportDirSize)
	}
	if importDirSize != 0 {
		binary.LittleEndian.PutUint32(dirs[8:12], importDirRVA)
		binary.LittleEndian.PutUint32(dirs[12:16], importDirSize)
	}

	sectionTable := opt[sizeOfOptional:]
	copy(sectionTable[0:8], ".text\x00\x00\x00")
	binary.LittleEndian.PutUint32(sectionTable[8:12], uint32(len(section)))
	binary.LittleEndian.PutUint32(sectionTable[12:16], depsSectionRVA)
	binary.LittleEndian.PutUint32(sectionTable[16:20], uint32(len(section)))
	binary.LittleEndian.PutUint32(sectionTable[20:24], depsHeaderSize)

	copy(buf[depsHeaderSize:], section)
	return buf
}

func newResolver(t *testing.T, images map[string][]byte) *ntboot.DependencyResolver {
	t.Helper()
	mem := ntboot.NewMemoryMap(diag.Discard(), []ntboot.MemDescriptor{
		{Type: ntboot.LoaderFree, BasePage: 0, PageCount: 0x10000},
	})
	pages := ntboot.NewPageTableBuilder(ntboot.ArchAmd64, false, diag.Discard())
	return ntboot.NewDependencyResolver(mem, pages, &fakeImageSource{images: images}, ntboot.ArchAmd64, diag.Discard())
}

// TestLoadHalAndKernelBreaksImportCycle exercises §4.4's two-phase load: HAL
// and kernel each import a function the other exports, and neither export
// table exists until both images are placed.
func TestLoadHalAndKernelBreaksImportCycle(t *testing.T) {
	hal := (&depsImageBuilder{
		imageBase:  0x140000000,
		exportName: "HalQuerySystemInformation",
		exportRVA:  depsSectionRVA,
		importLib:  "ntoskrnl.exe",
		importFunc: "KeInitializeApc",
	}).build()
	kernel := (&depsImageBuilder{
		imageBase:  0x150000000,
		exportName: "KeInitializeApc",
		exportRVA:  depsSectionRVA,
		importLib:  "hal.dll",
		importFunc: "HalQuerySystemInformation",
	}).build()

	r := newResolver(t, map[string][]byte{
		"hal.dll":      hal,
		"ntoskrnl.exe": kernel,
	})

	halMod, kernelMod, err := r.LoadHalAndKernel("hal.dll", "ntoskrnl.exe")
	if err != nil {
		t.Fatalf("LoadHalAndKernel: %v", err)
	}
	if halMod.VirtualBase == 0 || kernelMod.VirtualBase == 0 {
		t.Errorf("expected nonzero virtual bases, got hal=%#x kernel=%#x", halMod.VirtualBase, kernelMod.VirtualBase)
	}
}

func TestLoadHalAndKernelMissingExportFails(t *testing.T) {
	hal := (&depsImageBuilder{
		imageBase:  0x140000000,
		exportName: "HalQuerySystemInformation",
		exportRVA:  depsSectionRVA,
		importLib:  "ntoskrnl.exe",
		importFunc: "KeInitializeApc",
	}).build()
	kernel := (&depsImageBuilder{
		imageBase: 0x150000000,
		// no export: kernel never defines KeInitializeApc
		importLib:  "hal.dll",
		importFunc: "HalQuerySystemInformation",
	}).build()

	r := newResolver(t, map[string][]byte{
		"hal.dll":      hal,
		"ntoskrnl.exe": kernel,
	})

	if _, _, err := r.LoadHalAndKernel("hal.dll", "ntoskrnl.exe"); err == nil {
		t.Error("LoadHalAndKernel with unresolvable import succeeded, want error")
	}
}

// TestLoadBootDriversRecoversPerDriverFailures is §4.4's failure semantics
// (S3): an unreadable image or a missing export never aborts the whole run,
// they're recorded as a DriverStatus on that driver alone.
func TestLoadBootDriversRecoversPerDriverFailures(t *testing.T) {
	ok := (&depsImageBuilder{imageBase: 0x160000000, exportName: "DriverEntry", exportRVA: depsSectionRVA}).build()
	missingExport := (&depsImageBuilder{
		imageBase:  0x170000000,
		importLib:  "nonexistent.sys",
		importFunc: "Whatever",
	}).build()

	r := newResolver(t, map[string][]byte{
		"ok.sys":      ok,
		"missing.sys": missingExport,
		// "gone.sys" deliberately absent from the source map
	})

	services := []ntboot.RegistryService{
		{Name: "gone", Start: ntboot.ServiceBootStart, Type: ntboot.ServiceKernelDriver, Image: "gone.sys", Group: "Core"},
		{Name: "missing", Start: ntboot.ServiceBootStart, Type: ntboot.ServiceKernelDriver, Image: "missing.sys", Group: "Core"},
		{Name: "ok", Start: ntboot.ServiceBootStart, Type: ntboot.ServiceKernelDriver, Image: "ok.sys", Group: "Core"},
		{Name: "skipped", Start: ntboot.ServiceBootStart + 1, Type: ntboot.ServiceKernelDriver, Image: "ok.sys", Group: "Core"},
	}

	list := r.LoadBootDrivers(services, ntboot.VersionDescriptor{HasCoreDriverList: true})

	if len(list.BootDriver) != 3 {
		t.Fatalf("BootDriver count = %d, want 3 (non-boot-start service excluded)", len(list.BootDriver))
	}
	if list.BootDriver[0].Status != ntboot.DriverStatusImageUnreadable {
		t.Errorf("gone.sys status = %v, want ImageUnreadable", list.BootDriver[0].Status)
	}
	if list.BootDriver[1].Status != ntboot.DriverStatusMissingExport {
		t.Errorf("missing.sys status = %v, want MissingExport", list.BootDriver[1].Status)
	}
	if list.BootDriver[2].Status != ntboot.DriverStatusOK {
		t.Errorf("ok.sys status = %v, want OK", list.BootDriver[2].Status)
	}
	if len(list.CoreDriver) != 3 {
		t.Errorf("CoreDriver count = %d, want 3 (all Group=Core, classified regardless of status)", len(list.CoreDriver))
	}
}

func TestLoadBootDriversSkipsUnsupportedTypeAndLateStart(t *testing.T) {
	ok := (&depsImageBuilder{imageBase: 0x160000000, exportName: "DriverEntry", exportRVA: depsSectionRVA}).build()
	r := newResolver(t, map[string][]byte{"ok.sys": ok})

	services := []ntboot.RegistryService{
		{Name: "demand", Start: ntboot.ServiceBootStart + 1, Type: ntboot.ServiceKernelDriver, Image: "ok.sys"},
		{Name: "adapter", Start: ntboot.ServiceBootStart, Type: 4, Image: "ok.sys"}, // SERVICE_ADAPTER, not loaded at boot
	}
	list := r.LoadBootDrivers(services, ntboot.VersionDescriptor{})
	if len(list.BootDriver) != 0 {
		t.Errorf("BootDriver count = %d, want 0", len(list.BootDriver))
	}
}
