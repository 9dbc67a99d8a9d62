package ntboot

import (
	"fmt"

	"ntboot/diag"
	"ntboot/pe"
)

// ImageSource hands DependencyResolver and PeLoader the raw bytes of a
// named image; the real implementation (bootsource package) memory-maps
// the file the external FS collaborator resolved a path for. Kept as an
// interface here so tests can supply images from a map.
type ImageSource interface {
	ReadImage(name string) ([]byte, error)
}

// RegistryService describes one `Services\*` entry the registry blob
// collaborator extracted, §4.4.
type RegistryService struct {
	Name  string
	Start uint32
	Type  uint32
	Group string
	Image string // file name to resolve via ImageSource
}

const (
	ServiceBootStart = 0

	ServiceKernelDriver     = 1
	ServiceFileSystemDriver = 2
	ServiceRecognizer       = 8
)

// moduleExporter adapts one loaded image's export table to pe.Exporter so
// ResolveImports can look names up without the pe package depending on the
// root package.
type moduleExporter struct {
	name string
	tbl  pe.ExportTable
}

func (e *moduleExporter) Name() string { return e.name }
func (e *moduleExporter) ExportVA(name string) (uint64, bool) {
	va, ok := e.tbl.ByName[name]
	return va, ok
}
func (e *moduleExporter) ExportVAByOrdinal(ordinal uint16) (uint64, bool) {
	va, ok := e.tbl.ByOrdinal[ordinal]
	return va, ok
}

// DependencyResolver constructs the topological load order rooted at the
// kernel and HAL, then loads boot drivers from the registry blob, §4.4.
type DependencyResolver struct {
	mem    *MemoryMap
	pages  *PageTableBuilder
	source ImageSource
	log    *diag.Logger
	arch   Arch

	exporters map[string]pe.Exporter
}

func NewDependencyResolver(mem *MemoryMap, pages *PageTableBuilder, source ImageSource, arch Arch, log *diag.Logger) *DependencyResolver {
	return &DependencyResolver{mem: mem, pages: pages, source: source, arch: arch, log: log, exporters: map[string]pe.Exporter{}}
}

func (r *DependencyResolver) machine() uint16 {
	if r.arch == ArchAmd64 {
		return pe.MachineAmd64
	}
	return pe.MachineI386
}

// LoadHalAndKernel loads hal.dll and ntoskrnl.exe, breaking their import
// cycle the way §4.4 prescribes: place the HAL first and the kernel second,
// register both export tables, then resolve the kernel's imports and the
// HAL's imports once each against the combined set. A failure loading
// either is fatal.
func (r *DependencyResolver) LoadHalAndKernel(halName, kernelName string) (hal, kernel *Module, err error) {
	hal, halHdr, halBytes, err := r.loadRaw(halName, LoaderHalCode)
	if err != nil {
		return nil, nil, fmt.Errorf("load HAL %q: %w", halName, err)
	}
	r.registerExports(hal.BaseName, halHdr, halBytes, hal.VirtualBase)

	kernel, kernelHdr, kernelBytes, err := r.loadRaw(kernelName, LoaderSystemCode)
	if err != nil {
		return nil, nil, fmt.Errorf("load kernel %q: %w", kernelName, err)
	}
	r.registerExports(kernel.BaseName, kernelHdr, kernelBytes, kernel.VirtualBase)

	// Both export tables now exist: resolve each image's imports against
	// the full set, patching the kernel->HAL and HAL->kernel back-edges.
	if err := pe.ResolveImports(kernelHdr, kernelBytes, r.exporters); err != nil {
		return nil, nil, fmt.Errorf("resolve kernel imports: %w", err)
	}
	if err := pe.ResolveImports(halHdr, halBytes, r.exporters); err != nil {
		return nil, nil, fmt.Errorf("resolve HAL imports: %w", err)
	}

	return hal, kernel, nil
}

// loadRaw places name's image and returns its Module entry alongside the
// parsed headers and post-relocation bytes, so the caller can run import
// resolution itself once every export table it needs is registered.
func (r *DependencyResolver) loadRaw(name string, typ MemDescType) (*Module, pe.Headers, []byte, error) {
	blob, err := r.source.ReadImage(name)
	if err != nil {
		return nil, pe.Headers{}, nil, fmt.Errorf("read %q: %w", name, ErrBadImage)
	}

	hdr, err := pe.ParseHeaders(blob, r.machine())
	if err != nil {
		return nil, pe.Headers{}, nil, fmt.Errorf("%w: %w", ErrBadImage, err)
	}

	pages := PagesFor(uint64(hdr.SizeOfImage))
	phys, err := r.mem.Allocate(pages, typ, PagesFor(uint64(hdr.SectionAlign)))
	if err != nil {
		return nil, pe.Headers{}, nil, err
	}
	va, err := r.pages.MapFreshRun(phys, pages, PTAttrs{Present: true, Writable: true})
	if err != nil {
		return nil, pe.Headers{}, nil, err
	}

	img, err := pe.Load(blob, r.machine(), va)
	if err != nil {
		return nil, pe.Headers{}, nil, fmt.Errorf("%w: %w", ErrBadImage, err)
	}

	m := &Module{
		FullPath:    name,
		BaseName:    name,
		PhysBase:    phys,
		VirtualBase: va,
		SizeOfImage: img.Module.SizeOfImage,
		EntryPoint:  va + uint64(img.Module.EntryPointRVA),
		Checksum:    img.Module.Checksum,
	}
	if img.Module.Signature.Present {
		m.CodeIntegrity = CodeIntegrityInfo{
			Present:      true,
			SignerName:   img.Module.Signature.SignerName,
			DigestAlgOID: img.Module.Signature.DigestAlgOID,
		}
	}

	if r.log != nil {
		r.log.Infof("deps: loaded %s at VA %#x (%d bytes)", name, va, m.SizeOfImage)
	}
	return m, img.Headers, img.Bytes, nil
}

func (r *DependencyResolver) registerExports(name string, hdr pe.Headers, bytes []byte, va uint64) {
	tbl, err := pe.ParseExports(hdr, bytes, va)
	if err != nil {
		tbl = pe.ExportTable{ByName: map[string]uint64{}, ByOrdinal: map[uint16]uint64{}}
	}
	r.exporters[name] = &moduleExporter{name: name, tbl: tbl}
}

// LoadBootDrivers loads every Start<=SERVICE_BOOT_START driver of a
// supported Type from services, classifying each into the boot-driver list
// and, where the target version carries them (§3 "three lists the kernel
// walks"), the core/core-extension/TPM-core/early-launch lists by registry
// group. A driver that fails to load is never fatal: it's recorded with a
// DriverStatus instead (§4.4 failure semantics, S3); only a HAL/kernel
// failure halts the boot.
func (r *DependencyResolver) LoadBootDrivers(services []RegistryService, desc VersionDescriptor) ModuleList {
	var list ModuleList
	for _, svc := range services {
		if svc.Start > ServiceBootStart {
			continue
		}
		switch svc.Type {
		case ServiceKernelDriver, ServiceFileSystemDriver, ServiceRecognizer:
		default:
			continue
		}

		m, status := r.loadBootDriver(svc)
		m.Status = status
		list.BootDriver = append(list.BootDriver, m)
		list.LoadOrder = append(list.LoadOrder, m)

		if !desc.HasCoreDriverList {
			continue
		}
		switch svc.Group {
		case "Core":
			list.CoreDriver = append(list.CoreDriver, m)
		case "CoreExtension":
			list.CoreExtension = append(list.CoreExtension, m)
		case "TpmCore":
			if desc.HasTpmCoreList {
				list.TpmCore = append(list.TpmCore, m)
			}
		case "EarlyLaunch":
			list.EarlyLaunch = append(list.EarlyLaunch, m)
		}
	}
	return list
}

func (r *DependencyResolver) loadBootDriver(svc RegistryService) (*Module, DriverStatus) {
	blob, err := r.source.ReadImage(svc.Image)
	if err != nil {
		return &Module{FullPath: svc.Image, BaseName: svc.Name}, DriverStatusImageUnreadable
	}

	hdr, err := pe.ParseHeaders(blob, r.machine())
	if err != nil {
		return &Module{FullPath: svc.Image, BaseName: svc.Name}, DriverStatusImageUnreadable
	}

	pages := PagesFor(uint64(hdr.SizeOfImage))
	phys, err := r.mem.Allocate(pages, LoaderBootDriver, PagesFor(uint64(hdr.SectionAlign)))
	if err != nil {
		return &Module{FullPath: svc.Image, BaseName: svc.Name}, DriverStatusImageUnreadable
	}
	va, err := r.pages.MapFreshRun(phys, pages, PTAttrs{Present: true, Writable: true})
	if err != nil {
		return &Module{FullPath: svc.Image, BaseName: svc.Name}, DriverStatusImageUnreadable
	}

	img, err := pe.Load(blob, r.machine(), va)
	if err != nil {
		return &Module{FullPath: svc.Image, BaseName: svc.Name, PhysBase: phys, VirtualBase: va}, DriverStatusImageUnreadable
	}

	m := &Module{
		FullPath:    svc.Image,
		BaseName:    svc.Name,
		PhysBase:    phys,
		VirtualBase: va,
		SizeOfImage: img.Module.SizeOfImage,
		EntryPoint:  va + uint64(img.Module.EntryPointRVA),
		Checksum:    img.Module.Checksum,
	}
	if img.Module.Signature.Present {
		m.CodeIntegrity = CodeIntegrityInfo{
			Present:      true,
			SignerName:   img.Module.Signature.SignerName,
			DigestAlgOID: img.Module.Signature.DigestAlgOID,
		}
	}

	if err := pe.ResolveImports(img.Headers, img.Bytes, r.exporters); err != nil {
		if r.log != nil {
			r.log.Warnf("deps: boot driver %s missing export: %v", svc.Name, err)
		}
		return m, DriverStatusMissingExport
	}

	r.registerExports(svc.Name, img.Headers, img.Bytes, va)
	return m, DriverStatusOK
}
