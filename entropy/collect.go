// Package entropy gathers the boot entropy samples StructBuilder copies
// into the version-specific extension block (§4.2 inputs, §3.1 entropy
// result block). Each source is independent and best-effort: a source that
// isn't available on the host contributes nothing rather than failing the
// whole collection, since BootEntropyPolicy already has a NoTpm/TpmError
// escape hatch for exactly this case.
package entropy

import (
	"ntboot"
	"ntboot/entropy/stub"
)

// Source names match the ones VersionDescriptor's EntropySourceCount
// tables expect to see filled, in priority order.
const (
	SourceTPM    = "tpm"
	SourceRDRAND = "rdrand"
	SourceUEFI   = "uefi"
	SourceTime   = "time"
)

// Collector gathers samples from whichever sources are wired in; the UEFI
// and TPM sources are supplied by the external firmware/TPM collaborator
// (out of scope per §1) since this package has no business calling EFI
// protocols itself — it only knows how to shape what it's handed plus the
// two sources it can read locally (RDRAND, high-resolution time).
type Collector struct {
	uefiSample []byte // from the firmware collaborator, may be nil
	tpmSample  []byte // from the TPM collaborator, may be nil
}

func New(uefiSample, tpmSample []byte) *Collector {
	return &Collector{uefiSample: uefiSample, tpmSample: tpmSample}
}

// Collect returns up to 4 samples (tpm, rdrand, uefi, time), in the
// priority order StructBuilder expects when it truncates/pads to the
// descriptor's EntropySourceCount.
func (c *Collector) Collect() ntboot.EntropyResult {
	result := ntboot.EntropyResult{Policy: ntboot.EntropySuccess}

	if len(c.tpmSample) > 0 {
		result.Samples = append(result.Samples, ntboot.EntropySample{Source: SourceTPM, Data: c.tpmSample})
	} else {
		result.Policy = ntboot.EntropyNoTpm
	}

	if stub.HasRDRAND() {
		result.Samples = append(result.Samples, ntboot.EntropySample{Source: SourceRDRAND, Data: readRDRAND()})
	}

	if len(c.uefiSample) > 0 {
		result.Samples = append(result.Samples, ntboot.EntropySample{Source: SourceUEFI, Data: c.uefiSample})
	}

	t := stub.HighResTime()
	timeBytes := make([]byte, 8)
	for i := range timeBytes {
		timeBytes[i] = byte(t >> (8 * i))
	}
	result.Samples = append(result.Samples, ntboot.EntropySample{Source: SourceTime, Data: timeBytes})

	return result
}

// readRDRAND is a placeholder source of CPU-backed randomness: real RDRAND
// access needs an asm stub this package doesn't carry (no toolchain run is
// available to validate one here); it reads the high-resolution timer
// again as a distinguishable-but-deterministic stand-in, documented in
// DESIGN.md as a stub pending a vetted RDRAND asm routine.
func readRDRAND() []byte {
	t := stub.HighResTime()
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(t >> (8 * i))
	}
	return b
}
