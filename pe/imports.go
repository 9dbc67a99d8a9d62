package pe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMissingExport mirrors ntboot.ErrMissingExport without importing the
// root package (pe is a leaf the root package imports, not vice versa).
var ErrMissingExport = errors.New("missing import export")

// Exporter is the minimal view ResolveImports needs of an already loaded
// module: its name table and the VA each name (or ordinal) resolves to.
type Exporter interface {
	Name() string
	ExportVA(name string) (uint64, bool)
	ExportVAByOrdinal(ordinal uint16) (uint64, bool)
}

type importDescriptor struct {
	origFirstThunkRVA uint32
	nameRVA           uint32
	firstThunkRVA     uint32
}

// ResolveImports walks image's import directory, finds each named exporter
// in known, and patches the IAT (firstThunk array) in place with the
// resolved VA — §4.3 `resolve_imports`. h.Is64 selects 8-byte vs 4-byte
// thunk entries. An import whose exporter isn't found in known returns
// ErrMissingExport; the caller (DependencyResolver) decides whether that's
// fatal (kernel/HAL) or recoverable (boot driver, §4.4).
func ResolveImports(h Headers, image []byte, known map[string]Exporter) error {
	dir := h.DataDirectories[ImageDirectoryEntryImport]
	if dir.Size == 0 {
		return nil
	}

	descSize := 20
	for off := int(dir.VirtualAddress); off+descSize <= len(image); off += descSize {
		row := image[off : off+descSize]
		desc := importDescriptor{
			origFirstThunkRVA: binary.LittleEndian.Uint32(row[0:4]),
			nameRVA:           binary.LittleEndian.Uint32(row[12:16]),
			firstThunkRVA:     binary.LittleEndian.Uint32(row[16:20]),
		}
		if desc.nameRVA == 0 && desc.firstThunkRVA == 0 {
			break // null terminator descriptor
		}

		libName := cstringAt(image, desc.nameRVA)
		exporter, ok := known[libName]
		if !ok {
			return fmt.Errorf("import library %q: %w", libName, ErrMissingExport)
		}

		thunkRVA := desc.origFirstThunkRVA
		if thunkRVA == 0 {
			thunkRVA = desc.firstThunkRVA
		}
		entrySize := 4
		if h.Is64 {
			entrySize = 8
		}

		for i := 0; ; i++ {
			thunkOff := int(thunkRVA) + i*entrySize
			iatOff := int(desc.firstThunkRVA) + i*entrySize
			if thunkOff+entrySize > len(image) || iatOff+entrySize > len(image) {
				return fmt.Errorf("import thunk out of range for %q: %w", libName, ErrBadImage)
			}

			var thunk uint64
			if h.Is64 {
				thunk = binary.LittleEndian.Uint64(image[thunkOff : thunkOff+8])
			} else {
				thunk = uint64(binary.LittleEndian.Uint32(image[thunkOff : thunkOff+4]))
			}
			if thunk == 0 {
				break
			}

			var va uint64
			ordinalFlag := uint64(1) << 63
			if !h.Is64 {
				ordinalFlag = uint64(1) << 31
			}
			if thunk&ordinalFlag != 0 {
				ordinal := uint16(thunk & 0xffff)
				resolved, ok := exporter.ExportVAByOrdinal(ordinal)
				if !ok {
					return fmt.Errorf("%s!#%d: %w", libName, ordinal, ErrMissingExport)
				}
				va = resolved
			} else {
				name := cstringAt(image, uint32(thunk)+2) // skip Hint word
				resolved, ok := exporter.ExportVA(name)
				if !ok {
					return fmt.Errorf("%s!%s: %w", libName, name, ErrMissingExport)
				}
				va = resolved
			}

			if h.Is64 {
				binary.LittleEndian.PutUint64(image[iatOff:iatOff+8], va)
			} else {
				binary.LittleEndian.PutUint32(image[iatOff:iatOff+4], uint32(va))
			}
		}
	}
	return nil
}

func cstringAt(image []byte, rva uint32) string {
	if int(rva) >= len(image) {
		return ""
	}
	end := int(rva)
	for end < len(image) && image[end] != 0 {
		end++
	}
	return string(image[rva:end])
}
