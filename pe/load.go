package pe

import "fmt"

// Image is the in-memory result of Load: the fully copied, relocated image
// bytes plus the header metadata the caller (DependencyResolver) needs to
// place it and patch its imports.
type Image struct {
	Headers Headers
	Bytes   []byte // length == Headers.SizeOfImage, section-placed
	Module  ModuleInfo
}

// ModuleInfo is the subset of a loaded image DependencyResolver copies into
// its own Module entry; kept separate from ntboot.Module so this package
// has no dependency on the root package (pe is a leaf).
type ModuleInfo struct {
	EntryPointRVA uint32
	Checksum      uint32
	SizeOfImage   uint32
	Signature     SignatureInfo
}

// Load parses blob's headers, copies its sections into a fresh
// SizeOfImage-sized buffer at section alignment, and applies base
// relocations for actualBase — §4.3 `load(blob) -> Module`. The caller has
// already decided actualBase (the VA PageTableBuilder.MapFreshRun returned
// for the pages MemoryMap.Allocate reserved) and whether this
// image belongs in LoaderSystemCode or LoaderBootDriver; Load itself is
// memory-pool-agnostic, it just produces bytes ready to be copied in.
func Load(blob []byte, wantMachine uint16, actualBase uint64) (Image, error) {
	h, err := ParseHeaders(blob, wantMachine)
	if err != nil {
		return Image{}, err
	}

	out := make([]byte, h.SizeOfImage)

	// Headers (everything before the first section) copy verbatim.
	headerLen := uint32(0)
	if len(h.Sections) > 0 {
		headerLen = h.Sections[0].VirtualAddress
	}
	if headerLen > uint32(len(blob)) {
		headerLen = uint32(len(blob))
	}
	copy(out[:headerLen], blob[:headerLen])

	for _, s := range h.Sections {
		if uint64(s.VirtualAddress)+uint64(s.VirtualSize) > uint64(len(out)) {
			return Image{}, fmt.Errorf("section %s exceeds SizeOfImage: %w", s.Name, ErrBadImage)
		}
		n := s.SizeOfRawData
		if n > s.VirtualSize {
			n = s.VirtualSize // raw data may be file-alignment padded past the section's mapped size
		}
		if uint64(s.PointerToRawData) > uint64(len(blob)) {
			n = 0
		} else if uint64(s.PointerToRawData)+uint64(n) > uint64(len(blob)) {
			n = uint32(len(blob)) - s.PointerToRawData
		}
		if s.PointerToRawData > 0 && n > 0 {
			copy(out[s.VirtualAddress:s.VirtualAddress+n], blob[s.PointerToRawData:s.PointerToRawData+n])
		}
		// Bytes from n..VirtualSize are already zero (fresh out slice).
	}

	if err := ApplyRelocations(h, out, actualBase); err != nil {
		return Image{}, err
	}

	sig, _ := ParseSignature(h, blob) // non-fatal, §3.1 Code Integrity note

	return Image{
		Headers: h,
		Bytes:   out,
		Module: ModuleInfo{
			EntryPointRVA: h.EntryPointRVA,
			Checksum:      h.Checksum,
			SizeOfImage:   h.SizeOfImage,
			Signature:     sig,
		},
	}, nil
}
