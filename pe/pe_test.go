package pe_test

import (
	"encoding/binary"

	"ntboot/pe"
)

// buildPE assembles a minimal, syntactically valid PE32+ image with one
// executable section, an optional base-relocation directory and an optional
// import directory, for headers_test.go/reloc_test.go/imports_test.go. It is
// not a realistic compiler-emitted image — just enough bytes in the right
// places for ParseHeaders/ApplyRelocations/ResolveImports to walk.
type peBuilder struct {
	imageBase   uint64
	sectionData []byte
	relocs      []byte // pre-built .reloc directory bytes, or nil
	imports     []byte // pre-built .idata directory bytes, or nil
	importsRVA  uint32
	relocsRVA   uint32
}

const (
	headerSize  = 0x200
	sectionRVA  = headerSize // keeps the synthetic image's RVA layout 1:1 with its file layout
	fileAlign   = 0x200
	sectionAlgn = 0x1000
)

func (b *peBuilder) build() []byte {
	total := headerSize + len(b.sectionData)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint16(buf[0:2], 0x5a4d) // MZ
	binary.LittleEndian.PutUint32(buf[0x3c:0x40], 0x80)

	peOff := 0x80
	binary.LittleEndian.PutUint32(buf[peOff:peOff+4], 0x00004550) // PE\0\0
	coff := buf[peOff+4:]
	binary.LittleEndian.PutUint16(coff[0:2], pe.MachineAmd64)
	binary.LittleEndian.PutUint16(coff[2:4], 1) // NumberOfSections
	sizeOfOptional := uint16(112 + 16*8)
	binary.LittleEndian.PutUint16(coff[16:18], sizeOfOptional)

	opt := coff[20:]
	binary.LittleEndian.PutUint16(opt[0:2], pe.Magic64)
	binary.LittleEndian.PutUint32(opt[16:20], sectionRVA) // AddressOfEntryPoint
	binary.LittleEndian.PutUint64(opt[24:32], b.imageBase)
	binary.LittleEndian.PutUint32(opt[32:36], sectionAlgn)
	binary.LittleEndian.PutUint32(opt[36:40], fileAlign)
	binary.LittleEndian.PutUint32(opt[56:60], uint32(total)) // SizeOfImage
	binary.LittleEndian.PutUint32(opt[64:68], 0xabcd)        // Checksum

	dirs := opt[112:]
	if b.relocs != nil {
		binary.LittleEndian.PutUint32(dirs[5*8:5*8+4], b.relocsRVA)
		binary.LittleEndian.PutUint32(dirs[5*8+4:5*8+8], uint32(len(b.relocs)))
	}
	if b.imports != nil {
		binary.LittleEndian.PutUint32(dirs[1*8:1*8+4], b.importsRVA)
		binary.LittleEndian.PutUint32(dirs[1*8+4:1*8+8], uint32(len(b.imports)))
	}

	sectionTable := opt[sizeOfOptional:]
	copy(sectionTable[0:8], ".text\x00\x00\x00")
	binary.LittleEndian.PutUint32(sectionTable[8:12], uint32(len(b.sectionData)))  // VirtualSize
	binary.LittleEndian.PutUint32(sectionTable[12:16], sectionRVA)                 // VirtualAddress
	binary.LittleEndian.PutUint32(sectionTable[16:20], uint32(len(b.sectionData))) // SizeOfRawData
	binary.LittleEndian.PutUint32(sectionTable[20:24], headerSize)                 // PointerToRawData

	copy(buf[headerSize:], b.sectionData)
	return buf
}
