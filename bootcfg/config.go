// Package bootcfg holds the flat configuration struct cmd/quibble loads
// before driving the hand-off pipeline, §10 ambient stack note: one plain
// struct, no nested option groups, matching the teacher's own preference
// for flat parameter passing over builder/options-pattern ceremony.
package bootcfg

import "ntboot"

// Config is everything a single boot attempt needs, resolved once at
// startup and never mutated afterward.
type Config struct {
	Major, Minor, Build uint32
	Arch                ntboot.Arch
	PAE                 bool

	SystemRoot string // root directory bootsource.FileSource resolves names against
	KernelName string // usually "ntoskrnl.exe"
	HalName    string // usually "hal.dll"

	RegistryBlobPath string

	ArcBootPath string
	ArcHalPath  string
	LoadOptions string

	DiskSignatures []ntboot.ArcDiskSignature
	NumaRanges     []ntboot.NumaRange

	AcpiTableBase uint64
	SmbiosEPS     uint64

	DrvDBPath            string
	EmInfPath            string
	ApiSetSchemaPath     string
	OfflineCrashdumpPath string
	BootOptionsBlobPath  string
}
