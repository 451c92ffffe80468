package svga

import (
	"github.com/taigrr/tessel/internal/logging"
)

// drain executes every command between STOP and NEXT_CMD. Commands are
// never split across the end of the ring, so each one is read in a single
// piece. With full set, STOP equal to NEXT_CMD is a whole lap to execute.
func (s *Sim) drain(full bool) {
	if s.regs[RegConfigDone] == 0 || s.hung {
		return
	}
	w := NewWords(s.fifo)
	minOff, maxOff := w.Word(FIFOMin), w.Word(FIFOMax)
	if minOff < FIFONumRegs*4 || maxOff > uint32(len(s.fifo)) || minOff >= maxOff {
		logging.Get().Error("svga sim: bad fifo bounds", "min", minOff, "max", maxOff)
		return
	}
	for {
		next, stop := w.Word(FIFONextCmd), w.Word(FIFOStop)
		if stop == next && !full {
			return
		}
		full = false
		n, ok := s.commandLen(w, stop, maxOff)
		if !ok {
			logging.Get().Warn("svga sim: undecodable command, dropping ring", "id", w.Word(int(stop/4)), "offset", stop)
			w.SetWord(FIFOStop, next)
			return
		}
		cmd := make([]uint32, n)
		w.ReadWords(int64(stop), cmd)
		if !s.execute(cmd) {
			s.hung = true
			return
		}
		s.stats.Commands++
		stop += n * 4
		if stop >= maxOff {
			stop = minOff + (stop - maxOff)
		}
		w.SetWord(FIFOStop, stop)
	}
}

// commandLen returns the length in words of the command at off.
func (s *Sim) commandLen(w Words, off, maxOff uint32) (uint32, bool) {
	avail := (maxOff - off) / 4
	word := func(i uint32) (uint32, bool) {
		if i >= avail {
			return 0, false
		}
		return w.Word(int(off/4 + i)), true
	}
	id, _ := word(0)
	var n uint32
	switch {
	case id == CmdUpdate:
		n = 5
	case id == CmdRectCopy, id == CmdFrontROPFill:
		n = 7
	case id == CmdFence:
		n = 2
	case id == CmdDefineGMR2:
		n = 3
	case id == CmdRemapGMR2:
		pages, ok := word(4)
		if !ok {
			return 0, false
		}
		n = 5 + pages
	case id >= Cmd3DBase && id < Cmd3DMax:
		size, ok := word(1)
		if !ok || size%4 != 0 {
			return 0, false
		}
		n = 2 + size/4
	default:
		return 0, false
	}
	return n, n <= avail
}

// execute runs one command. It returns false when the device hangs.
func (s *Sim) execute(cmd []uint32) bool {
	switch cmd[0] {
	case CmdUpdate:
		s.stats.Updates++
	case CmdFrontROPFill:
		s.fillRect(cmd[1], cmd[2], cmd[3], cmd[4], cmd[5])
	case CmdRectCopy:
		s.copyRect(cmd[1], cmd[2], cmd[3], cmd[4], cmd[5], cmd[6])
	case CmdFence:
		s.fence = cmd[1]
		if w := NewWords(s.fifo); w.Word(FIFOMin) > FIFOFence*4 {
			w.SetWord(FIFOFence, cmd[1])
		}
	case CmdDefineGMR2:
		if cmd[2] == 0 {
			delete(s.gmrs, cmd[1])
		} else {
			s.gmrs[cmd[1]] = make([]uint32, cmd[2])
		}
	case CmdRemapGMR2:
		s.remapGMR2(cmd[1], cmd[2], cmd[3], cmd[5:])
	default:
		return s.execute3D(cmd[0], cmd[2:])
	}
	return true
}

// screen returns VRAM rows of the current mode as words.
func (s *Sim) screen() (w Words, pitch, width, height uint32) {
	return NewWords(s.vram), s.bytesPerLine(), s.regs[RegWidth], s.regs[RegHeight]
}

func (s *Sim) fillRect(color, x, y, w, h uint32) {
	vram, pitch, sw, sh := s.screen()
	x1, y1 := min(x+w, sw), min(y+h, sh)
	if x >= x1 || y >= y1 {
		return
	}
	row := make([]uint32, x1-x)
	for i := range row {
		row[i] = color
	}
	for yy := y; yy < y1; yy++ {
		vram.WriteWords(int64(yy*pitch+x*4), row)
	}
}

func (s *Sim) copyRect(sx, sy, dx, dy, w, h uint32) {
	vram, pitch, sw, sh := s.screen()
	w = min(w, sw-min(sx, sw), sw-min(dx, sw))
	h = min(h, sh-min(sy, sh), sh-min(dy, sh))
	if w == 0 || h == 0 {
		return
	}
	// Read the whole source first so overlapping copies are correct.
	src := make([]uint32, w*h)
	for r := range h {
		vram.ReadWords(int64((sy+r)*pitch+sx*4), src[r*w:(r+1)*w])
	}
	for r := range h {
		vram.WriteWords(int64((dy+r)*pitch+dx*4), src[r*w:(r+1)*w])
	}
}

func (s *Sim) defineLegacyGMR(id, descPPN uint32) {
	if descPPN == 0 {
		delete(s.gmrs, id)
		return
	}
	var ppns []uint32
	for ppn := descPPN; ppn != 0; {
		page, ok := s.page(ppn)
		if !ok {
			logging.Get().Warn("svga sim: gmr descriptor outside ram", "id", id, "ppn", ppn)
			return
		}
		w := NewWords(page)
		next := uint32(0)
		for i := 0; i+1 < PageSize/4; i += 2 {
			base, n := w.Word(i), w.Word(i+1)
			if n == 0 {
				// A zero count either ends the list or, with a non-zero
				// page number, continues it on another descriptor page.
				next = base
				break
			}
			for j := range n {
				ppns = append(ppns, base+j)
			}
		}
		ppn = next
	}
	s.gmrs[id] = ppns
}

func (s *Sim) remapGMR2(id, flags, offsetPages uint32, ppns []uint32) {
	pages, ok := s.gmrs[id]
	if !ok || flags != RemapGMR2PPN32 {
		logging.Get().Warn("svga sim: bad gmr remap", "id", id, "flags", flags)
		return
	}
	for i, p := range ppns {
		if int(offsetPages)+i < len(pages) {
			pages[int(offsetPages)+i] = p
		}
	}
}

// gmrCopy moves bytes between region id at off and buf. toGMR selects the
// direction.
func (s *Sim) gmrCopy(id uint32, off int, buf []byte, toGMR bool) bool {
	pages, ok := s.gmrs[id]
	if !ok {
		return false
	}
	for len(buf) > 0 {
		idx := off / PageSize
		if idx >= len(pages) {
			return false
		}
		page, ok := s.page(pages[idx])
		if !ok {
			return false
		}
		in := off % PageSize
		var n int
		if toGMR {
			n = copy(page[in:], buf)
		} else {
			n = copy(buf, page[in:])
		}
		buf = buf[n:]
		off += n
	}
	return true
}
