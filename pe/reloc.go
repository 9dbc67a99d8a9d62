package pe

import (
	"encoding/binary"
	"fmt"
)

// Base relocation types, IMAGE_REL_BASED_*, §4.3.
const (
	RelBasedAbsolute = 0
	RelBasedHigh     = 1
	RelBasedLow      = 2
	RelBasedHighLow  = 3
	RelBasedHighAdj  = 4
	RelBasedDir64    = 10
)

// ApplyRelocations walks the .reloc directory in h and patches image (a
// byte buffer already holding the copied sections at their RVA-mapped
// offsets) for the delta between the image's preferred base and actualBase.
// HIGHADJ consumes the slot that follows it; HIGH and LOW entries are each
// applied on their own, with no state carried from one entry to the next.
// Any other type is rejected with ErrBadImage (the spec calls this BadRelocation, a
// refinement of BadImage since PeLoader only has the five kinds from §7).
func ApplyRelocations(h Headers, image []byte, actualBase uint64) error {
	delta := int64(actualBase) - int64(h.ImageBase)
	if delta == 0 {
		return nil // §8 property 5: preferred base load writes nothing beyond sections
	}

	dir := h.DataDirectories[ImageDirectoryEntryBaseReloc]
	if dir.Size == 0 {
		return nil
	}
	if uint64(dir.VirtualAddress)+uint64(dir.Size) > uint64(len(image)) {
		return fmt.Errorf("reloc directory out of range: %w", ErrBadImage)
	}

	data := image[dir.VirtualAddress : dir.VirtualAddress+dir.Size]
	pos := 0
	for pos+8 <= len(data) {
		pageRVA := binary.LittleEndian.Uint32(data[pos : pos+4])
		blockSize := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		if blockSize < 8 || pos+int(blockSize) > len(data) {
			return fmt.Errorf("bad relocation block size %d: %w", blockSize, ErrBadImage)
		}
		entries := data[pos+8 : pos+int(blockSize)]
		for i := 0; i+2 <= len(entries); i += 2 {
			entry := binary.LittleEndian.Uint16(entries[i : i+2])
			typ := entry >> 12
			offset := uint32(entry & 0x0fff)
			va := int(pageRVA + offset)
			if va+4 > len(image) {
				return fmt.Errorf("relocation target out of range: %w", ErrBadImage)
			}

			switch typ {
			case RelBasedAbsolute:
				// padding entry, no-op
			case RelBasedHighLow:
				orig := binary.LittleEndian.Uint32(image[va : va+4])
				binary.LittleEndian.PutUint32(image[va:va+4], uint32(int64(orig)+delta))
			case RelBasedDir64:
				if va+8 > len(image) {
					return fmt.Errorf("DIR64 relocation target out of range: %w", ErrBadImage)
				}
				orig := binary.LittleEndian.Uint64(image[va : va+8])
				binary.LittleEndian.PutUint64(image[va:va+8], uint64(int64(orig)+delta))
			case RelBasedHigh:
				orig := binary.LittleEndian.Uint16(image[va : va+2])
				adj := uint16((int32(orig) << 16 >> 16) + int32(delta>>16))
				binary.LittleEndian.PutUint16(image[va:va+2], adj)
			case RelBasedLow:
				orig := binary.LittleEndian.Uint16(image[va : va+2])
				adj := uint16(int32(orig) + int32(delta))
				binary.LittleEndian.PutUint16(image[va:va+2], adj)
			case RelBasedHighAdj:
				// HIGHADJ consumes the following entry slot as the low
				// 16 bits of the addend, per the documented two-slot
				// encoding; i is advanced an extra step below.
				if i+4 > len(entries) {
					return fmt.Errorf("truncated HIGHADJ pair: %w", ErrBadImage)
				}
				lowHalf := binary.LittleEndian.Uint16(entries[i+2 : i+4])
				orig := binary.LittleEndian.Uint16(image[va : va+2])
				addend := (int32(orig) << 16) | int32(lowHalf)
				adj := uint16((addend + int32(delta)) >> 16)
				binary.LittleEndian.PutUint16(image[va:va+2], adj)
				i += 2
			default:
				return fmt.Errorf("unsupported relocation type %d: %w", typ, ErrBadImage)
			}
		}
		pos += int(blockSize)
	}
	return nil
}
