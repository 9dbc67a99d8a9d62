package ntboot

// ConfigurationClass / ConfigurationType mirror the ARC legacy taxonomy a
// ConfigComponent node is tagged with (§3 "Configuration component data").
type ConfigurationClass int

const (
	SystemClass ConfigurationClass = iota
	ProcessorClass
	CacheClass
	AdapterClass
	ControllerClass
	PeripheralClass
	MemoryClass
)

type ConfigurationType int

const (
	ArcSystem ConfigurationType = iota
	MultiFunctionAdapter
	DiskController
	FloppyDiskPeripheral
	RealModeIrqRoutingTable
	RealModePCIEnumeration
)

// PCIRegistryInfo is the fixed-shape payload carried on the synthesized PCI
// bus child of the ArcSystem root (§3).
type PCIRegistryInfo struct {
	MajorRevision uint8
	MinorRevision uint8
	NoBuses       uint8
	HardwareMechanism uint8
}

// ConfigComponent is one node of the hardware topology tree the LPB's
// ConfigurationRoot references. Built once by StructBuilder, never mutated
// after hand-off (§3 lifecycle note) — so this type exposes no mutating
// methods beyond the tree-building helpers used while assembling it.
type ConfigComponent struct {
	Class          ConfigurationClass
	Type           ConfigurationType
	Identifier     uint32
	ConfigurationData []byte

	Parent  *ConfigComponent
	Child   *ConfigComponent
	Sibling *ConfigComponent
}

// NewArcSystemRoot builds the canonical root: a SystemClass/ArcSystem node
// with a single PCI bus child carrying PCIRegistryInfo, per §3.
func NewArcSystemRoot(pci PCIRegistryInfo) *ConfigComponent {
	root := &ConfigComponent{Class: SystemClass, Type: ArcSystem}

	data := []byte{pci.MajorRevision, pci.MinorRevision, pci.NoBuses, pci.HardwareMechanism}
	bus := &ConfigComponent{
		Class:             AdapterClass,
		Type:              MultiFunctionAdapter,
		ConfigurationData: data,
		Parent:            root,
	}
	root.Child = bus
	return root
}

// AddChild appends child as a new first child of parent, chaining the
// previous first child onto child's Sibling pointer — the same
// insert-at-head pattern the kernel's own IoAssignResource uses for this
// tree, since the tree is built bottom-up as devices are discovered.
func (parent *ConfigComponent) AddChild(child *ConfigComponent) {
	child.Parent = parent
	child.Sibling = parent.Child
	parent.Child = child
}
