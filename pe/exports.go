package pe

import (
	"encoding/binary"
	"fmt"
)

const imageDirectoryEntryExport = 0

// ExportTable is the result of ParseExports: every named and ordinal-only
// export in an already-placed (post-relocation) image, keyed by RVA-resolved
// VA — the form ResolveImports' Exporter needs, §4.3 `resolve_imports`.
type ExportTable struct {
	ByName    map[string]uint64
	ByOrdinal map[uint16]uint64
}

// ParseExports walks IMAGE_EXPORT_DIRECTORY in image (already placed at its
// final VA, i.e. post-ApplyRelocations) and returns every export address.
// An image with no export directory (most boot drivers) returns an empty,
// non-nil table and no error.
func ParseExports(h Headers, image []byte, baseVA uint64) (ExportTable, error) {
	tbl := ExportTable{ByName: map[string]uint64{}, ByOrdinal: map[uint16]uint64{}}

	dir := h.DataDirectories[imageDirectoryEntryExport]
	if dir.Size == 0 {
		return tbl, nil
	}
	if uint64(dir.VirtualAddress)+40 > uint64(len(image)) {
		return tbl, fmt.Errorf("export directory out of range: %w", ErrBadImage)
	}

	ed := image[dir.VirtualAddress:]
	base := binary.LittleEndian.Uint32(ed[16:20])
	numFuncs := binary.LittleEndian.Uint32(ed[20:24])
	numNames := binary.LittleEndian.Uint32(ed[24:28])
	addrFuncsRVA := binary.LittleEndian.Uint32(ed[28:32])
	addrNamesRVA := binary.LittleEndian.Uint32(ed[32:36])
	addrOrdinalsRVA := binary.LittleEndian.Uint32(ed[36:40])

	funcs := make([]uint32, numFuncs)
	for i := uint32(0); i < numFuncs; i++ {
		off := int(addrFuncsRVA) + int(i)*4
		if off+4 > len(image) {
			break
		}
		funcs[i] = binary.LittleEndian.Uint32(image[off : off+4])
	}

	for i := uint32(0); i < numFuncs; i++ {
		if funcs[i] == 0 {
			continue
		}
		tbl.ByOrdinal[uint16(base+i)] = baseVA + uint64(funcs[i])
	}

	for i := uint32(0); i < numNames; i++ {
		nameOff := int(addrNamesRVA) + int(i)*4
		ordOff := int(addrOrdinalsRVA) + int(i)*2
		if nameOff+4 > len(image) || ordOff+2 > len(image) {
			break
		}
		nameRVA := binary.LittleEndian.Uint32(image[nameOff : nameOff+4])
		ordIdx := binary.LittleEndian.Uint16(image[ordOff : ordOff+2])
		if int(ordIdx) >= len(funcs) {
			continue
		}
		name := cstringAt(image, nameRVA)
		tbl.ByName[name] = baseVA + uint64(funcs[ordIdx])
	}

	return tbl, nil
}
