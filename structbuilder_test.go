package ntboot_test

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"ntboot"
	"ntboot/diag"
)

// newTestBuilder gives each scenario its own MemoryMap/PageTableBuilder pair
// with enough free pages for a full LPB+extension build, matching the setup
// cmd/quibble's run() performs before calling StructBuilder.Build.
func newTestBuilder(t *testing.T) (*ntboot.StructBuilder, *ntboot.MemoryMap, *ntboot.PageTableBuilder) {
	t.Helper()
	mem := ntboot.NewMemoryMap(diag.Discard(), []ntboot.MemDescriptor{
		{Type: ntboot.LoaderFree, BasePage: 0x100, PageCount: 0x4000},
	})
	pages := ntboot.NewPageTableBuilder(ntboot.ArchAmd64, false, diag.Discard())
	return ntboot.NewStructBuilder(mem, pages, diag.Discard()), mem, pages
}

// diskSigRecord re-derives StructBuilder's own fixed 64-byte disk signature
// record layout (ArcName[0:32], MBRSignature[32:36] LE, GPTSignature[36:52],
// IsGPT flag at [52], CheckSum[56:60] LE) so a test can read back what
// serializeDiskSignatures wrote without exporting the helper itself.
type diskSigRecord struct {
	mbrSignature uint32
	gptSignature [16]byte
	isGPT        bool
}

func decodeDiskSigRecord(rec []byte) diskSigRecord {
	var out diskSigRecord
	out.mbrSignature = binary.LittleEndian.Uint32(rec[32:36])
	copy(out.gptSignature[:], rec[36:52])
	out.isGPT = rec[52] != 0
	return out
}

// TestStructBuilderS1MBRSignature is SPEC_FULL §8 S1: NT 10.0 build 10586
// (ExtWin10, x86-64), an MBR disk with signature 0xDEADBEEF, must produce a
// 0x930-byte extension with that signature reachable from the built LPB.
func TestStructBuilderS1MBRSignature(t *testing.T) {
	builder, _, _ := newTestBuilder(t)

	desc, err := ntboot.LookupVersion(10, 0, 10586)
	if err != nil {
		t.Fatalf("LookupVersion: %v", err)
	}
	if desc.ExtVariant != ntboot.ExtVariantWin10 {
		t.Fatalf("ExtVariant = %s, want ExtWin10", desc.ExtVariant)
	}

	lb, err := builder.Build(ntboot.BuildInputs{
		Descriptor:   desc,
		Arch:         ntboot.ArchAmd64,
		ArcBootPath:  `multi(0)disk(0)rdisk(0)partition(1)`,
		ArcHalPath:   `multi(0)disk(0)rdisk(0)partition(1)`,
		NtSystemRoot: `\Windows`,
		FirmwareInfo: ntboot.FirmwareInfo{Present: true, FirmwareDescListVA: 0x1000},
		DiskSignatures: []ntboot.ArcDiskSignature{
			{ArcName: `multi(0)disk(0)rdisk(0)partition(1)`, MBRSignature: 0xDEADBEEF},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got, want := len(lb.ExtensionRaw), int(ntboot.ExtWin10Amd64Size); got != want {
		t.Errorf("extension size = %#x, want %#x", got, want)
	}

	if lb.DiskSignatureVA == 0 {
		t.Fatalf("DiskSignatureVA not set")
	}
	raw, ok := lb.HeapBlobs[lb.DiskSignatureVA]
	if !ok || len(raw) < 64 {
		t.Fatalf("HeapBlobs[DiskSignatureVA] = %v, want a 64-byte disk signature record", raw)
	}
	rec := decodeDiskSigRecord(raw[:64])
	if rec.mbrSignature != 0xDEADBEEF {
		t.Errorf("MBR signature = %#x, want 0xdeadbeef", rec.mbrSignature)
	}
	if rec.isGPT {
		t.Errorf("IsGPT = true, want false for an MBR disk")
	}
}

// TestStructBuilderS2GPTEntropyAndNullLeapSecond is SPEC_FULL §8 S2: NT
// 10.0 build 17763 (ExtWin10_1809), a GPT disk, 10 entropy sources, and
// LeapSecondData present but null.
func TestStructBuilderS2GPTEntropyAndNullLeapSecond(t *testing.T) {
	builder, _, _ := newTestBuilder(t)

	desc, err := ntboot.LookupVersion(10, 0, 17763)
	if err != nil {
		t.Fatalf("LookupVersion: %v", err)
	}
	if desc.ExtVariant != ntboot.ExtVariantWin10_1809 {
		t.Fatalf("ExtVariant = %s, want ExtWin10_1809", desc.ExtVariant)
	}
	if desc.EntropySourceCount != 10 {
		t.Fatalf("EntropySourceCount = %d, want 10", desc.EntropySourceCount)
	}

	var guid [16]byte
	for i := range guid {
		guid[i] = byte(i + 1)
	}
	samples := make([]ntboot.EntropySample, 10)
	for i := range samples {
		samples[i] = ntboot.EntropySample{Source: "tpm", Data: []byte{byte(i)}}
	}

	lb, err := builder.Build(ntboot.BuildInputs{
		Descriptor:   desc,
		Arch:         ntboot.ArchAmd64,
		ArcBootPath:  `multi(0)disk(0)rdisk(0)partition(1)`,
		ArcHalPath:   `multi(0)disk(0)rdisk(0)partition(1)`,
		NtSystemRoot: `\Windows`,
		FirmwareInfo: ntboot.FirmwareInfo{Present: true, FirmwareDescListVA: 0x1000},
		Entropy:      ntboot.EntropyResult{Policy: ntboot.EntropySuccess, Samples: samples},
		DiskSignatures: []ntboot.ArcDiskSignature{
			{ArcName: `multi(0)disk(0)rdisk(0)partition(1)`, IsGPT: true, GPTSignature: guid},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got, want := len(lb.ExtensionRaw), int(ntboot.ExtWin10_1809Amd64Size); got != want {
		t.Errorf("extension size = %#x, want %#x", got, want)
	}

	leapOff := unsafe.Offsetof(ntboot.ExtWin10_1809{}.LeapSecondData)
	leap := lb.ExtensionRaw[leapOff : leapOff+8]
	for _, b := range leap {
		if b != 0 {
			t.Errorf("LeapSecondData = %x, want all-zero (present and null per S2)", leap)
			break
		}
	}

	raw, ok := lb.HeapBlobs[lb.DiskSignatureVA]
	if !ok || len(raw) < 64 {
		t.Fatalf("HeapBlobs[DiskSignatureVA] = %v, want a 64-byte disk signature record", raw)
	}
	rec := decodeDiskSigRecord(raw[:64])
	if !rec.isGPT {
		t.Errorf("IsGPT = false, want true for a GPT disk")
	}
	if rec.gptSignature != guid {
		t.Errorf("GPTSignature = %x, want %x", rec.gptSignature, guid)
	}

	entropyBytes, ok := lb.HeapBlobs[lb.EntropyVA]
	if !ok {
		t.Fatalf("HeapBlobs[EntropyVA] missing")
	}
	const entropyRecordSize = 32 // 8-byte source tag + 24-byte sample data
	if got, want := len(entropyBytes), 10*entropyRecordSize; got != want {
		t.Errorf("entropy table size = %d, want %d (10 sources)", got, want)
	}
}

// TestStructBuilderS5NumaRanges is SPEC_FULL §8 S5: NT 10.0 build 19041
// (ExtWin10_2004) with two NUMA memory ranges; NumaMemoryRangeCount must
// land at the kernel-fixed byte offset 0xde0 and equal 2.
func TestStructBuilderS5NumaRanges(t *testing.T) {
	builder, _, _ := newTestBuilder(t)

	desc, err := ntboot.LookupVersion(10, 0, 19041)
	if err != nil {
		t.Fatalf("LookupVersion: %v", err)
	}
	if desc.ExtVariant != ntboot.ExtVariantWin10_2004 {
		t.Fatalf("ExtVariant = %s, want ExtWin10_2004", desc.ExtVariant)
	}
	if !desc.HasNumaRanges {
		t.Fatalf("HasNumaRanges = false, want true for build 19041")
	}

	ranges := []ntboot.NumaRange{
		{BasePage: 0x1000, PageCount: 0x2000, Proximity: 0},
		{BasePage: 0x4000, PageCount: 0x1000, Proximity: 1},
	}

	lb, err := builder.Build(ntboot.BuildInputs{
		Descriptor:   desc,
		Arch:         ntboot.ArchAmd64,
		ArcBootPath:  `multi(0)disk(0)rdisk(0)partition(1)`,
		ArcHalPath:   `multi(0)disk(0)rdisk(0)partition(1)`,
		NtSystemRoot: `\Windows`,
		FirmwareInfo: ntboot.FirmwareInfo{Present: true, FirmwareDescListVA: 0x1000},
		NumaRanges:   ranges,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	countOff := unsafe.Offsetof(ntboot.ExtWin10_2004{}.NumaMemoryRangeCount)
	if countOff != ntboot.ExtWin10_2004NumaOffset {
		t.Fatalf("NumaMemoryRangeCount offset = %#x, want %#x", countOff, ntboot.ExtWin10_2004NumaOffset)
	}
	got := binary.LittleEndian.Uint64(lb.ExtensionRaw[countOff : countOff+8])
	if got != 2 {
		t.Errorf("NumaMemoryRangeCount = %d, want 2", got)
	}

	table, ok := lb.HeapBlobs[lb.NumaTableVA]
	if !ok {
		t.Fatalf("HeapBlobs[NumaTableVA] missing")
	}
	const numaRecordSize = 24
	if got, want := len(table), len(ranges)*numaRecordSize; got != want {
		t.Fatalf("NUMA table size = %d, want %d", got, want)
	}
	for i, r := range ranges {
		rec := table[i*numaRecordSize : (i+1)*numaRecordSize]
		if got := binary.LittleEndian.Uint64(rec[0:8]); got != r.BasePage {
			t.Errorf("range %d BasePage = %#x, want %#x", i, got, r.BasePage)
		}
		if got := binary.LittleEndian.Uint64(rec[8:16]); got != r.PageCount {
			t.Errorf("range %d PageCount = %#x, want %#x", i, got, r.PageCount)
		}
		if got := binary.LittleEndian.Uint32(rec[16:20]); got != r.Proximity {
			t.Errorf("range %d Proximity = %d, want %d", i, got, r.Proximity)
		}
	}
}
