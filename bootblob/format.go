// Package bootblob decompresses the resource blobs StructBuilder copies
// into loader-heap pages (DrvDB, EmInf, the API-set schema, the offline
// crashdump table, the boot options blob), §4.2's "domain stack" note.
// Format detection and the decoder dispatch are grounded on the teacher's
// format.go/compress.go magic-sniffing and Decoder wrapper, narrowed down to
// the compression kinds those blobs actually ship in.
package bootblob

import "bytes"

// Format names a compression container bootblob can unwrap.
type Format int

const (
	Raw Format = iota
	Gzip
	Xz
	Lzma
	Bzip2
	Lz4
)

const (
	gzip1Magic = "\x1f\x8b"
	gzip2Magic = "\x1f\x9e"
	xzMagic    = "\xfd7zXZ"
	bzipMagic  = "BZh"
	lz4Magic1  = "\x03\x21\x4c\x18"
	lz4Magic2  = "\x04\x22\x4d\x18"
)

// Detect sniffs buf's leading bytes the way CheckFmt does, narrowed to the
// formats the boot-configuration blobs this repo consumes actually use.
func Detect(buf []byte) Format {
	match := func(p string) bool {
		return len(buf) >= len(p) && bytes.Equal([]byte(p), buf[:len(p)])
	}

	switch {
	case match(gzip1Magic), match(gzip2Magic):
		return Gzip
	case match(xzMagic):
		return Xz
	case len(buf) >= 13 && bytes.Equal([]byte("\x5d\x00\x00"), buf[:3]) && (buf[12] == '\xff' || buf[12] == '\x00'):
		return Lzma
	case match(bzipMagic):
		return Bzip2
	case match(lz4Magic1), match(lz4Magic2):
		return Lz4
	default:
		return Raw
	}
}

func (f Format) String() string {
	switch f {
	case Gzip:
		return "gzip"
	case Xz:
		return "xz"
	case Lzma:
		return "lzma"
	case Bzip2:
		return "bzip2"
	case Lz4:
		return "lz4"
	default:
		return "raw"
	}
}
