package bootsource

import (
	"encoding/binary"
	"fmt"

	"ntboot"
)

// registryRecord is the flat fixed-header record format §4.4's domain-stack
// note describes for a single `Services\*` entry once the loader's own
// minimal hive reader has extracted it: no variable-length value parsing,
// just a fixed header of scalar fields followed by three length-counted
// (not NUL-terminated) string fields packed back to back.
//
//	offset 0  uint32 Start
//	offset 4  uint32 Type
//	offset 8  uint16 nameLen
//	offset 10 uint16 groupLen
//	offset 12 uint16 imageLen
//	offset 14 uint16 _pad
//	offset 16 name, then group, then image (nameLen+groupLen+imageLen bytes)
const registryRecordHeaderSize = 16

// ParseRegistryServices decodes blob (the already-decompressed hive extract
// bootblob.Decode produced) into the RegistryService rows DependencyResolver
// consumes, §4.4.
func ParseRegistryServices(blob []byte) ([]ntboot.RegistryService, error) {
	var out []ntboot.RegistryService
	pos := 0
	for pos+registryRecordHeaderSize <= len(blob) {
		hdr := blob[pos : pos+registryRecordHeaderSize]
		start := binary.LittleEndian.Uint32(hdr[0:4])
		typ := binary.LittleEndian.Uint32(hdr[4:8])
		nameLen := binary.LittleEndian.Uint16(hdr[8:10])
		groupLen := binary.LittleEndian.Uint16(hdr[10:12])
		imageLen := binary.LittleEndian.Uint16(hdr[12:14])

		total := int(nameLen) + int(groupLen) + int(imageLen)
		strOff := pos + registryRecordHeaderSize
		if strOff+total > len(blob) {
			return nil, fmt.Errorf("registry record at offset %#x: %w", pos, ntboot.ErrBadImage)
		}

		name := string(blob[strOff : strOff+int(nameLen)])
		strOff += int(nameLen)
		group := string(blob[strOff : strOff+int(groupLen)])
		strOff += int(groupLen)
		image := string(blob[strOff : strOff+int(imageLen)])

		out = append(out, ntboot.RegistryService{
			Name:  name,
			Start: start,
			Type:  typ,
			Group: group,
			Image: image,
		})

		pos = strOff + int(imageLen)
		// Each record is padded to a 4-byte boundary.
		if rem := pos % 4; rem != 0 {
			pos += 4 - rem
		}
	}
	return out, nil
}
