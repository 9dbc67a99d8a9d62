package bootblob

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Decode detects blob's compression and returns its fully inflated bytes, or
// blob itself unchanged if it's already Raw. Grounded on the teacher's
// Decoder type and its per-format reader construction in compress.go, minus
// the CLI-facing file-handle plumbing this repo has no use for.
func Decode(blob []byte) ([]byte, error) {
	format := Detect(blob)
	if format == Raw {
		return blob, nil
	}

	reader, err := newReader(format, bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("open %s decoder: %w", format, err)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s blob: %w", format, err)
	}
	return out, nil
}

func newReader(f Format, src io.Reader) (io.Reader, error) {
	switch f {
	case Gzip:
		return gzip.NewReader(src)
	case Xz:
		return xz.NewReader(src)
	case Lzma:
		return lzma.NewReader(src)
	case Bzip2:
		return bzip2.NewReader(src), nil
	case Lz4:
		return lz4.NewReader(src), nil
	default:
		return src, nil
	}
}
