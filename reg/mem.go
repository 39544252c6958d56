package reg

import (
	"fmt"
)

// Hook is called by Mem after every store of val. old is the value before the store; the
// hook may modify the register file through m (for instance to raise a ready bit).
type Hook func(m *Mem, offset uintptr, old, val uint32)

// LoadHook is called by Mem before every load.
type LoadHook func(m *Mem, offset uintptr)

// Mem is a Bus backed by ordinary memory. It's used to stand in for hardware.
type Mem struct {
	regs      []uint32
	hooks     []Hook
	loadHooks []LoadHook
}

// NewMem returns a register file of size bytes, all zero.
func NewMem(size int) *Mem {
	return &Mem{regs: make([]uint32, (size+3)/4)}
}

func (m *Mem) index(offset uintptr) int {
	if offset%4 != 0 {
		panic(fmt.Sprintf("unaligned register offset %#x", offset))
	}
	i := int(offset / 4)
	if i >= len(m.regs) {
		panic(fmt.Sprintf("register offset %#x outside %d byte block", offset, len(m.regs)*4))
	}
	return i
}

func (m *Mem) Load(offset uintptr) uint32 {
	i := m.index(offset)
	for _, h := range m.loadHooks {
		h(m, offset)
	}
	return m.regs[i]
}

// Store writes val and then runs the hooks.
func (m *Mem) Store(offset uintptr, val uint32) {
	i := m.index(offset)
	old := m.regs[i]
	m.regs[i] = val
	for _, h := range m.hooks {
		h(m, offset, old, val)
	}
}

// Poke writes val without running the hooks. Hooks use it to update status bits.
func (m *Mem) Poke(offset uintptr, val uint32) {
	m.regs[m.index(offset)] = val
}

// OnStore adds a hook that runs after every Store.
func (m *Mem) OnStore(h Hook) {
	m.hooks = append(m.hooks, h)
}

// OnLoad adds a hook that runs before every Load.
func (m *Mem) OnLoad(h LoadHook) {
	m.loadHooks = append(m.loadHooks, h)
}

// Peek reads a register without running the load hooks.
func (m *Mem) Peek(offset uintptr) uint32 {
	return m.regs[m.index(offset)]
}
