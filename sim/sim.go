// Package sim imitates the RCC and flash interface blocks of an STM32H7 closely
// enough to run the clock configuration against them: PLL1 reports ready some reads
// after it's switched on, and the clock switch status follows the switch once the
// selected source is ready. Every store is recorded.
package sim

import (
	"fmt"

	"github.com/Jon-Bright/rccctl/flash"
	"github.com/Jon-Bright/rccctl/rcc"
	"github.com/Jon-Bright/rccctl/reg"
)

const (
	FLASH_ACR_RESET = 0x00000037

	cfgrSWMask  = 0x7
	cfgrSWSPos  = 3
	cfgrSWSMask = 0x7 << cfgrSWSPos
)

// Write is one recorded store.
type Write struct {
	Block  string // "RCC" or "FLASH"
	Offset uintptr
	Old    uint32
	New    uint32
}

func (w Write) String() string {
	name := regNames[w.Block][w.Offset]
	if name == "" {
		name = fmt.Sprintf("%#03x", w.Offset)
	}
	return fmt.Sprintf("%s.%s %08X -> %08X", w.Block, name, w.Old, w.New)
}

var regNames = map[string]map[uintptr]string{
	"RCC": {
		rcc.CR_OFFSET:        "CR",
		rcc.CFGR_OFFSET:      "CFGR",
		rcc.D1CFGR_OFFSET:    "D1CFGR",
		rcc.D2CFGR_OFFSET:    "D2CFGR",
		rcc.D3CFGR_OFFSET:    "D3CFGR",
		rcc.PLLCKSELR_OFFSET: "PLLCKSELR",
		rcc.PLLCFGR_OFFSET:   "PLLCFGR",
		rcc.PLL1DIVR_OFFSET:  "PLL1DIVR",
	},
	"FLASH": {
		flash.ACR_OFFSET: "ACR",
	},
}

// Board is a simulated RCC and flash interface, both starting at their reset values.
type Board struct {
	RCC   *reg.Mem
	Flash *reg.Mem

	// PLLReadyAfter is how many reads of CR see PLL1RDY clear after PLL1ON is set.
	PLLReadyAfter int
	// SwitchAfter is how many reads of CFGR see the old SWS after SW changes.
	SwitchAfter int

	writes    []Write
	pllWait   int
	swWait    int
	swPending bool
}

func NewBoard() *Board {
	b := &Board{
		RCC:   reg.NewMem(rcc.RCC_SIZE),
		Flash: reg.NewMem(flash.FLASH_SIZE),
	}
	b.RCC.Poke(rcc.CR_OFFSET, rcc.RCC_CR_RESET)
	b.RCC.Poke(rcc.PLLCKSELR_OFFSET, rcc.RCC_PLLCKSELR_RESET)
	b.RCC.Poke(rcc.PLLCFGR_OFFSET, rcc.RCC_PLLCFGR_RESET)
	b.RCC.Poke(rcc.PLL1DIVR_OFFSET, rcc.RCC_PLL1DIVR_RESET)
	b.Flash.Poke(flash.ACR_OFFSET, FLASH_ACR_RESET)

	b.RCC.OnStore(b.rccStore)
	b.RCC.OnLoad(b.rccLoad)
	b.Flash.OnStore(func(m *reg.Mem, offset uintptr, old, val uint32) {
		b.writes = append(b.writes, Write{"FLASH", offset, old, val})
	})
	return b
}

func (b *Board) rccStore(m *reg.Mem, offset uintptr, old, val uint32) {
	b.writes = append(b.writes, Write{"RCC", offset, old, val})
	switch offset {
	case rcc.CR_OFFSET:
		switch {
		case val&rcc.RCC_CR_PLL1ON != 0 && old&rcc.RCC_CR_PLL1ON == 0:
			b.pllWait = b.PLLReadyAfter
			b.settle()
		case val&rcc.RCC_CR_PLL1ON == 0:
			m.Poke(offset, val&^rcc.RCC_CR_PLL1RDY)
		default:
			// PLL1RDY is read-only
			m.Poke(offset, val&^rcc.RCC_CR_PLL1RDY|old&rcc.RCC_CR_PLL1RDY)
		}
	case rcc.CFGR_OFFSET:
		// SWS is read-only
		m.Poke(offset, val&^cfgrSWSMask|old&cfgrSWSMask)
		if val&cfgrSWMask != old&cfgrSWMask {
			b.swWait = b.SwitchAfter
			b.swPending = true
			b.settle()
		}
	}
}

func (b *Board) rccLoad(m *reg.Mem, offset uintptr) {
	switch offset {
	case rcc.CR_OFFSET:
		if b.pllWait > 0 {
			b.pllWait--
		}
	case rcc.CFGR_OFFSET:
		if b.swWait > 0 {
			b.swWait--
		}
	}
	b.settle()
}

// settle raises PLL1RDY and updates SWS once their delays have run out.
func (b *Board) settle() {
	cr := b.RCC.Peek(rcc.CR_OFFSET)
	if cr&rcc.RCC_CR_PLL1ON != 0 && b.pllWait == 0 {
		cr |= rcc.RCC_CR_PLL1RDY
		b.RCC.Poke(rcc.CR_OFFSET, cr)
	}
	if !b.swPending || b.swWait > 0 {
		return
	}
	cfgr := b.RCC.Peek(rcc.CFGR_OFFSET)
	sw := cfgr & cfgrSWMask
	if sw == rcc.RCC_CFGR_SW_PLL1 && cr&rcc.RCC_CR_PLL1RDY == 0 {
		// The hardware won't switch to a source that isn't ready.
		return
	}
	b.RCC.Poke(rcc.CFGR_OFFSET, cfgr&^cfgrSWSMask|sw<<cfgrSWSPos)
	b.swPending = false
}

// Writes returns the stores made so far, oldest first.
func (b *Board) Writes() []Write {
	return append([]Write(nil), b.writes...)
}

// ResetWrites forgets the recorded stores.
func (b *Board) ResetWrites() {
	b.writes = nil
}
