package pe_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"ntboot/pe"
)

type fakeExporter struct {
	name    string
	exports map[string]uint64
}

func (f *fakeExporter) Name() string { return f.name }
func (f *fakeExporter) ExportVA(name string) (uint64, bool) {
	va, ok := f.exports[name]
	return va, ok
}
func (f *fakeExporter) ExportVAByOrdinal(uint16) (uint64, bool) { return 0, false }

// buildImportDirectory lays out one IMAGE_IMPORT_DESCRIPTOR (no
// OriginalFirstThunk, IAT doubles as the lookup table), a single named
// thunk entry, the Hint/Name string, and the library name string, all at
// RVAs inside section, returning the directory's own RVA.
func buildImportDirectory(section []byte, libName, funcName string) (dirRVA uint32) {
	const (
		descOff  = 0x00
		thunkOff = 0x40
		nameOff  = 0x60
		hintOff  = 0x80
	)

	copy(section[nameOff:], libName)
	section[nameOff+len(libName)] = 0

	binary.LittleEndian.PutUint16(section[hintOff:hintOff+2], 0) // Hint
	copy(section[hintOff+2:], funcName)

	thunkRVA := sectionRVA + uint32(thunkOff)
	binary.LittleEndian.PutUint64(section[thunkOff:thunkOff+8], uint64(sectionRVA+uint32(hintOff)))

	binary.LittleEndian.PutUint32(section[descOff+0:descOff+4], 0)            // OriginalFirstThunk
	binary.LittleEndian.PutUint32(section[descOff+12:descOff+16], sectionRVA+uint32(nameOff))
	binary.LittleEndian.PutUint32(section[descOff+16:descOff+20], thunkRVA) // FirstThunk
	// null-terminator descriptor follows immediately (20 bytes of zero,
	// already zero-valued in the fresh section buffer).

	return sectionRVA + uint32(descOff)
}

func TestResolveImportsPatchesIAT(t *testing.T) {
	section := make([]byte, 0x100)
	dirRVA := buildImportDirectory(section, "hal.dll", "HalInit")

	b := &peBuilder{
		imageBase:   0x140000000,
		sectionData: section,
		imports:     section[0:0x40], // non-nil marker; size below overrides length semantics
		importsRVA:  dirRVA,
	}
	blob := b.build()

	h, err := pe.ParseHeaders(blob, pe.MachineAmd64)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}

	known := map[string]pe.Exporter{
		"hal.dll": &fakeExporter{name: "hal.dll", exports: map[string]uint64{"HalInit": 0x140001000}},
	}
	if err := pe.ResolveImports(h, blob, known); err != nil {
		t.Fatalf("ResolveImports: %v", err)
	}

	thunkFileOff := headerSize + 0x40
	got := binary.LittleEndian.Uint64(blob[thunkFileOff : thunkFileOff+8])
	if got != 0x140001000 {
		t.Errorf("patched IAT entry = %#x, want 0x140001000", got)
	}
}

func TestResolveImportsMissingExport(t *testing.T) {
	section := make([]byte, 0x100)
	dirRVA := buildImportDirectory(section, "hal.dll", "HalInit")

	b := &peBuilder{
		imageBase:   0x140000000,
		sectionData: section,
		imports:     section[0:0x40],
		importsRVA:  dirRVA,
	}
	blob := b.build()

	h, err := pe.ParseHeaders(blob, pe.MachineAmd64)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}

	known := map[string]pe.Exporter{
		"hal.dll": &fakeExporter{name: "hal.dll", exports: map[string]uint64{}},
	}
	if err := pe.ResolveImports(h, blob, known); !errors.Is(err, pe.ErrMissingExport) {
		t.Errorf("ResolveImports with missing export = %v, want ErrMissingExport", err)
	}
}
