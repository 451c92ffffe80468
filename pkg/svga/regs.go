// Package svga drives a VMware SVGA II display device: version
// negotiation, the FIFO command ring, guest memory regions and the SVGA3D
// command set. All device access goes through PortIO for registers and
// Memory for mapped regions; no raw addresses are exposed.
package svga

// Reg is an SVGA register index, written to the index port before each
// value port access.
type Reg uint32

const (
	RegID           Reg = 0
	RegEnable       Reg = 1
	RegWidth        Reg = 2
	RegHeight       Reg = 3
	RegMaxWidth     Reg = 4
	RegMaxHeight    Reg = 5
	RegDepth        Reg = 6
	RegBitsPerPixel Reg = 7
	RegPseudocolor  Reg = 8
	RegRedMask      Reg = 9
	RegGreenMask    Reg = 10
	RegBlueMask     Reg = 11
	RegBytesPerLine Reg = 12
	RegFBStart      Reg = 13
	RegFBOffset     Reg = 14
	RegVRAMSize     Reg = 15
	RegFBSize       Reg = 16
	RegCapabilities Reg = 17
	RegMemStart     Reg = 18
	RegMemSize      Reg = 19
	RegConfigDone   Reg = 20
	RegSync         Reg = 21
	RegBusy         Reg = 22
	RegGuestID      Reg = 23
	RegScratchSize  Reg = 29
	RegMemRegs      Reg = 30

	RegGMRID               Reg = 41
	RegGMRDescriptor       Reg = 42
	RegGMRMaxIDs           Reg = 43
	RegGMRMaxDescriptorLen Reg = 44
)

// RegSync reasons. SyncFIFOFull tells the device that NEXT_CMD equal to
// STOP means a whole lap of commands rather than an empty ring.
const (
	SyncGeneric  uint32 = 1
	SyncFIFOFull uint32 = 2
)

// Port offsets from the I/O base.
const (
	IndexPort uint16 = 0
	ValuePort uint16 = 1
)

// Protocol version ids, tried from highest to lowest.
const (
	Magic uint32 = 0x90000000
	ID0   uint32 = Magic | 0
	ID1   uint32 = Magic | 1
	ID2   uint32 = Magic | 2
)

// Device capability bits from RegCapabilities.
const (
	CapRectCopy     uint32 = 0x00000002
	CapCursor       uint32 = 0x00000020
	Cap3D           uint32 = 0x00004000
	CapExtendedFIFO uint32 = 0x00008000
	CapMultimon     uint32 = 0x00010000
	CapPitchlock    uint32 = 0x00020000
	CapIRQMask      uint32 = 0x00040000
	CapGMR          uint32 = 0x00100000
	CapTraces       uint32 = 0x00200000
	CapGMR2         uint32 = 0x00400000
)

// FIFO register word indices. The command area starts after them.
const (
	FIFOMin         = 0
	FIFOMax         = 1
	FIFONextCmd     = 2
	FIFOStop        = 3
	FIFOCaps        = 4
	FIFOFlags       = 5
	FIFOFence       = 6
	FIFOHWVersion3D = 7

	// FIFONumRegs is the minimum register block; MIN is at least
	// FIFONumRegs*4 bytes.
	FIFONumRegs = 4
)

// FIFO capability bits, valid only with CapExtendedFIFO.
const (
	FIFOCapFence      uint32 = 0x01
	FIFOCapAccelFront uint32 = 0x02
	FIFOCapPitchlock  uint32 = 0x04
	FIFOCapReserve    uint32 = 0x40
	FIFOCapGMR2       uint32 = 0x100
)

// 3D hardware versions reported in FIFOHWVersion3D.
const (
	HWVersionWS5RC1  uint32 = 0x00000001
	HWVersionWS6B1   uint32 = 0x00010001
	HWVersionWS65B1  uint32 = 0x00020000
	HWVersionWS8B1   uint32 = 0x00020001
	HWVersionCurrent        = HWVersionWS8B1
)

// PortIO is 32-bit port access to the device's I/O BAR.
type PortIO interface {
	In32(port uint16) uint32
	Out32(port uint16, v uint32)
}

// Registers reads and writes SVGA registers through the index/value port
// pair at base.
type Registers struct {
	io   PortIO
	base uint16
}

// NewRegisters returns register access at the given I/O base.
func NewRegisters(io PortIO, base uint16) *Registers {
	return &Registers{io: io, base: base}
}

// Read returns the value of reg.
func (r *Registers) Read(reg Reg) uint32 {
	r.io.Out32(r.base+IndexPort, uint32(reg))
	return r.io.In32(r.base + ValuePort)
}

// Write sets reg to v.
func (r *Registers) Write(reg Reg, v uint32) {
	r.io.Out32(r.base+IndexPort, uint32(reg))
	r.io.Out32(r.base+ValuePort, v)
}

// HasCap reports whether every bit of c is set in caps.
func HasCap(caps, c uint32) bool {
	return caps&c == c
}
