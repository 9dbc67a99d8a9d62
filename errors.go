package ntboot

import "errors"

// The five error kinds the hand-off pipeline can fail with. Every exported
// entry point before HandoffSequencer step 4 returns one of these, wrapped
// with context via fmt.Errorf("...: %w", ...), never a bare string.
var (
	ErrUnsupportedVersion = errors.New("unsupported NT version")
	ErrBadImage           = errors.New("bad PE image")
	ErrNoMemory           = errors.New("physical allocator exhausted")
	ErrMissingExport      = errors.New("missing import export")
	ErrFirmwareFailure    = errors.New("firmware call failed")
)
