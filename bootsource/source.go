// Package bootsource resolves named boot images (ntoskrnl.exe, hal.dll,
// boot drivers, the registry hive blob) to bytes DependencyResolver and
// StructBuilder can hand to PeLoader, memory-mapping each file the way the
// teacher's patch.go does with github.com/edsrzf/mmap-go rather than
// reading whole files into a fresh buffer.
package bootsource

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// FileSource resolves image names against a root directory (the mounted
// system volume's root, in practice), memory-mapping each file read-only
// and caching the mapping so a name requested twice (e.g. a driver and its
// own dependency) isn't mapped twice.
type FileSource struct {
	root string

	mu   sync.Mutex
	open map[string]mmap.MMap
}

func NewFileSource(root string) *FileSource {
	return &FileSource{root: root, open: map[string]mmap.MMap{}}
}

// ReadImage implements ntboot.ImageSource.
func (s *FileSource) ReadImage(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.open[name]; ok {
		return []byte(m), nil
	}

	path := filepath.Join(s.root, name)
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer fd.Close()

	fi, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	if fi.Size() == 0 {
		// mmap-go refuses to map a zero-length file; an empty boot image
		// is malformed regardless, so surface it as a read failure rather
		// than special-casing it downstream.
		return nil, fmt.Errorf("%q is empty", path)
	}

	m, err := mmap.Map(fd, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap %q: %w", path, err)
	}
	s.open[name] = m
	return []byte(m), nil
}

// Close unmaps every file this source opened. HandoffSequencer never calls
// it; cmd/quibble's run defers it, and callers that reuse a FileSource
// across several boot attempts can call it between them.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, m := range s.open {
		if err := m.Unmap(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmap %q: %w", name, err)
		}
		delete(s.open, name)
	}
	return firstErr
}
