// Command quibble drives the kernel hand-off pipeline end to end: resolve
// the target NT version, build the physical memory map, load the HAL,
// kernel and boot drivers, assemble the versioned loader parameter block,
// build the page tables, and hand off. Flag parsing and the top-level
// dispatch follow the teacher's own Usage()/argument-handling style in
// magiskboot.go, adapted from a verb-based CLI to this repo's single
// boot-attempt command.
package main

import (
	"flag"
	"fmt"
	"os"

	"ntboot"
	"ntboot/bootblob"
	"ntboot/bootcfg"
	"ntboot/bootsource"
	"ntboot/diag"
	"ntboot/entropy"
)

func usage() {
	fmt.Fprintf(os.Stderr, `quibble - NT kernel hand-off loader

Usage: %s -root <system-root> -registry <hive-blob> [flags]

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage

	root := flag.String("root", "", "system volume root containing ntoskrnl.exe, hal.dll and boot drivers")
	registryPath := flag.String("registry", "", "path to the extracted Services registry blob")
	major := flag.Uint("major", 10, "target NT major version")
	minor := flag.Uint("minor", 0, "target NT minor version")
	build := flag.Uint("build", 19041, "target NT build number")
	arch := flag.String("arch", "amd64", "target architecture: x86 or amd64")
	pae := flag.Bool("pae", false, "enable PAE on x86 (ignored on amd64)")
	kernelName := flag.String("kernel", "ntoskrnl.exe", "kernel image file name")
	halName := flag.String("hal", "hal.dll", "HAL image file name")
	logPath := flag.String("log", "", "write diagnostic log here instead of stderr")

	flag.Parse()

	if *root == "" || *registryPath == "" {
		usage()
		os.Exit(1)
	}

	var a ntboot.Arch
	switch *arch {
	case "x86":
		a = ntboot.ArchX86
	case "amd64":
		a = ntboot.ArchAmd64
	default:
		fmt.Fprintf(os.Stderr, "quibble: unknown -arch %q\n", *arch)
		os.Exit(1)
	}

	logOut := os.Stderr
	if *logPath != "" {
		f, err := os.Create(*logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "quibble: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	log := diag.New(logOut)

	cfg := bootcfg.Config{
		Major: uint32(*major), Minor: uint32(*minor), Build: uint32(*build),
		Arch: a, PAE: *pae,
		SystemRoot:       *root,
		KernelName:       *kernelName,
		HalName:          *halName,
		RegistryBlobPath: *registryPath,
	}

	if err := run(cfg, log); err != nil {
		log.Fatalf("quibble: %v", err)
		os.Exit(1)
	}
}

// run wires the seven components together for one boot attempt. A failure
// before HandoffSequencer's point of no return is returned as an ordinary
// error; a failure at or after that point is reported through the
// Machine HandoffSequencer.Run returns, logged by HandoffSequencer itself,
// and surfaced to main as the same error so the process still exits
// non-zero — main is the only place allowed to call os.Exit, per §7.
func run(cfg bootcfg.Config, log *diag.Logger) error {
	desc, err := ntboot.LookupVersion(cfg.Major, cfg.Minor, cfg.Build)
	if err != nil {
		return fmt.Errorf("look up version %d.%d.%d: %w", cfg.Major, cfg.Minor, cfg.Build, err)
	}
	log.Infof("quibble: targeting NT %d.%d build %d (%s/%s)", cfg.Major, cfg.Minor, cfg.Build, desc.LpbVariant, desc.ExtVariant)

	source := bootsource.NewFileSource(cfg.SystemRoot)
	defer source.Close()

	registryBlob, err := source.ReadImage(cfg.RegistryBlobPath)
	if err != nil {
		return fmt.Errorf("read registry blob: %w", err)
	}
	registryBlob, err = bootblob.Decode(registryBlob)
	if err != nil {
		return fmt.Errorf("decompress registry blob: %w", err)
	}
	services, err := bootsource.ParseRegistryServices(registryBlob)
	if err != nil {
		return fmt.Errorf("parse registry services: %w", err)
	}

	mem := ntboot.NewMemoryMap(log, defaultInventory())
	pages := ntboot.NewPageTableBuilder(cfg.Arch, cfg.PAE, log)

	resolver := ntboot.NewDependencyResolver(mem, pages, source, cfg.Arch, log)
	hal, kernel, err := resolver.LoadHalAndKernel(cfg.HalName, cfg.KernelName)
	if err != nil {
		return fmt.Errorf("load HAL/kernel: %w", err)
	}
	modules := resolver.LoadBootDrivers(services, desc)
	modules.LoadOrder = append([]*ntboot.Module{hal, kernel}, modules.LoadOrder...)

	rootPhys, err := mem.Allocate(1, ntboot.LoaderMemoryData, 1)
	if err != nil {
		return fmt.Errorf("allocate page table root: %w", err)
	}
	pages.InstallSelfMap(rootPhys)

	var firmware ntboot.FirmwareInfo
	if desc.Firmware != ntboot.FirmwareInfoNone {
		// The real EFI memory-map handle/runtime-services VA come from the
		// firmware shim that invoked this loader (§1 Non-goal: this repo
		// doesn't implement that shim). A placeholder Present record lets
		// StructBuilder proceed; a real embedding replaces this with what
		// the firmware call actually returned.
		firmware = ntboot.FirmwareInfo{Present: true}
	}

	drvDB, err := readOptional(source, cfg.DrvDBPath)
	if err != nil {
		return fmt.Errorf("read DrvDB image: %w", err)
	}
	emInf, err := readOptional(source, cfg.EmInfPath)
	if err != nil {
		return fmt.Errorf("read EmInf image: %w", err)
	}
	apiSetSchema, err := readOptional(source, cfg.ApiSetSchemaPath)
	if err != nil {
		return fmt.Errorf("read ApiSet schema: %w", err)
	}
	offlineCrashdump, err := readOptional(source, cfg.OfflineCrashdumpPath)
	if err != nil {
		return fmt.Errorf("read offline crashdump table: %w", err)
	}
	bootOptions, err := readOptional(source, cfg.BootOptionsBlobPath)
	if err != nil {
		return fmt.Errorf("read boot options blob: %w", err)
	}

	// The UEFI/TPM-backed entropy sources come from firmware/TPM
	// collaborators this repo doesn't implement (§1 Non-goal); collect
	// gathers what it can read locally (RDRAND, high-resolution time).
	entropyResult := entropy.New(nil, nil).Collect()

	builder := ntboot.NewStructBuilder(mem, pages, log)
	lb, err := builder.Build(ntboot.BuildInputs{
		Descriptor:            desc,
		Arch:                  cfg.Arch,
		ArcBootPath:           cfg.ArcBootPath,
		ArcHalPath:            cfg.ArcHalPath,
		NtSystemRoot:          cfg.SystemRoot,
		LoadOptions:           cfg.LoadOptions,
		DiskSignatures:        cfg.DiskSignatures,
		FirmwareInfo:          firmware,
		AcpiTableBase:         cfg.AcpiTableBase,
		SmbiosEPS:             cfg.SmbiosEPS,
		CodeIntegrity:         kernel.CodeIntegrity,
		Entropy:               entropyResult,
		NumaRanges:            cfg.NumaRanges,
		DrvDBImage:            drvDB,
		EmInfImage:            emInf,
		ApiSetSchema:          apiSetSchema,
		OfflineCrashdumpTable: offlineCrashdump,
		BootOptionsBlob:       bootOptions,
		Modules:               modules,
	})
	if err != nil {
		return fmt.Errorf("build loader parameter block: %w", err)
	}

	sequencer := ntboot.NewHandoffSequencer(mem, pages, log)
	_, failedStep, err := sequencer.Run(lb, kernel.EntryPoint)
	if err != nil {
		return fmt.Errorf("hand-off failed at step %s: %w", failedStep, err)
	}

	log.Infof("quibble: hand-off complete, kernel entry %#x", kernel.EntryPoint)
	return nil
}

// readOptional reads name through source, returning (nil, nil) when name is
// empty — the convention bootcfg.Config uses for "this version-specific
// resource wasn't supplied". The bytes returned are whatever ReadImage
// handed back (possibly still compressed); StructBuilder's own
// placeResourceBlob is what calls bootblob.Decode on them, so callers here
// must not decode twice.
func readOptional(source *bootsource.FileSource, name string) ([]byte, error) {
	if name == "" {
		return nil, nil
	}
	return source.ReadImage(name)
}

// defaultInventory is a placeholder physical memory inventory until the
// firmware memory-map collaborator (outside this repo's scope, §1 Non-goals)
// supplies a real one; it gives MemoryMap a single large free run so the
// rest of the pipeline can be exercised end to end.
func defaultInventory() []ntboot.MemDescriptor {
	const totalPages = 0x40000 // 1 GiB at 4K pages
	return []ntboot.MemDescriptor{
		{Type: ntboot.LoaderFree, BasePage: 0x100, PageCount: totalPages - 0x100},
	}
}
