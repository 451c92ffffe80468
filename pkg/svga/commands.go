package svga

// 2D FIFO command ids.
const (
	CmdInvalid      uint32 = 0
	CmdUpdate       uint32 = 1
	CmdRectCopy     uint32 = 3
	CmdFrontROPFill uint32 = 29
	CmdFence        uint32 = 30
	CmdDefineGMR2   uint32 = 41
	CmdRemapGMR2    uint32 = 42
)

// ROPCopy is the raster operation that writes the source unchanged.
const ROPCopy uint32 = 0xCC

// RemapGMR2PPN32 selects an inline list of 32-bit page numbers in
// CmdRemapGMR2.
const RemapGMR2PPN32 uint32 = 0

// Update asks the device to refresh a screen rectangle from VRAM.
func (f *FIFO) Update(x, y, w, h uint32) bool {
	return f.WriteCommand(CmdUpdate, x, y, w, h)
}

// RectFill fills a VRAM rectangle with an ARGB color.
func (f *FIFO) RectFill(color, x, y, w, h uint32) bool {
	return f.WriteCommand(CmdFrontROPFill, color, x, y, w, h, ROPCopy)
}

// RectCopy copies a VRAM rectangle. The device must report CapRectCopy.
func (f *FIFO) RectCopy(sx, sy, dx, dy, w, h uint32) bool {
	return f.WriteCommand(CmdRectCopy, sx, sy, dx, dy, w, h)
}

// Fence inserts a marker the device echoes to the FENCE register once all
// earlier commands have been processed.
func (f *FIFO) Fence(id uint32) bool {
	return f.WriteCommand(CmdFence, id)
}

// DefineGMR2 creates or, with zero pages, destroys guest memory region id.
func (f *FIFO) DefineGMR2(id, pages uint32) bool {
	return f.WriteCommand(CmdDefineGMR2, id, pages)
}

// RemapGMR2 backs region id with the given physical pages, starting at
// page offset zero.
func (f *FIFO) RemapGMR2(id uint32, ppns []uint32) bool {
	cmd := make([]uint32, 0, 5+len(ppns))
	cmd = append(cmd, CmdRemapGMR2, id, RemapGMR2PPN32, 0, uint32(len(ppns)))
	cmd = append(cmd, ppns...)
	return f.WriteCommand(cmd...)
}
