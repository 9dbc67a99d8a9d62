package ntboot

// EntropyPolicy mirrors TPM_BOOT_ENTROPY_LDR_RESULT's policy enum (§3.1).
type EntropyPolicy uint32

const (
	EntropySuccess EntropyPolicy = iota
	EntropyNoTpm
	EntropyTpmError
	EntropyTpmNotReady
)

// EntropySample is one named source's raw bytes, gathered by the entropy
// package (see entropy/collect.go) before StructBuilder copies them into
// the version-sized result array.
type EntropySample struct {
	Source string
	Data   []byte
}

// EntropyResult is the size-erased in-memory form of the boot entropy
// block; StructBuilder truncates/pads Samples to the VersionDescriptor's
// EntropySourceCount (7, 8, or 10) when serializing into the extension.
type EntropyResult struct {
	Policy  EntropyPolicy
	Samples []EntropySample
}
