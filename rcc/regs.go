package rcc

import (
	"github.com/Jon-Bright/rccctl/hertz"
	"github.com/Jon-Bright/rccctl/reg"
)

// Register layout of the STM32H742/743/753/750 RCC. See RM0433 section 8.7.
const (
	RCC_BASE = uintptr(0x58024400)
	RCC_SIZE = 0x400

	CR_OFFSET        = uintptr(0x000)
	CFGR_OFFSET      = uintptr(0x010)
	D1CFGR_OFFSET    = uintptr(0x018)
	D2CFGR_OFFSET    = uintptr(0x01c)
	D3CFGR_OFFSET    = uintptr(0x020)
	PLLCKSELR_OFFSET = uintptr(0x028)
	PLLCFGR_OFFSET   = uintptr(0x02c)
	PLL1DIVR_OFFSET  = uintptr(0x030)

	AHB3RSTR_OFFSET  = uintptr(0x07c)
	AHB1RSTR_OFFSET  = uintptr(0x080)
	AHB2RSTR_OFFSET  = uintptr(0x084)
	AHB4RSTR_OFFSET  = uintptr(0x088)
	APB3RSTR_OFFSET  = uintptr(0x08c)
	APB1LRSTR_OFFSET = uintptr(0x090)
	APB1HRSTR_OFFSET = uintptr(0x094)
	APB2RSTR_OFFSET  = uintptr(0x098)
	APB4RSTR_OFFSET  = uintptr(0x09c)

	AHB3ENR_OFFSET  = uintptr(0x0d4)
	AHB1ENR_OFFSET  = uintptr(0x0d8)
	AHB2ENR_OFFSET  = uintptr(0x0dc)
	AHB4ENR_OFFSET  = uintptr(0x0e0)
	APB3ENR_OFFSET  = uintptr(0x0e4)
	APB1LENR_OFFSET = uintptr(0x0e8)
	APB1HENR_OFFSET = uintptr(0x0ec)
	APB2ENR_OFFSET  = uintptr(0x0f0)
	APB4ENR_OFFSET  = uintptr(0x0f4)
)

const (
	RCC_CR_HSION   = 1 << 0
	RCC_CR_HSIRDY  = 1 << 2
	RCC_CR_PLL1ON  = 1 << 24
	RCC_CR_PLL1RDY = 1 << 25

	RCC_CFGR_SW_HSI  = 0
	RCC_CFGR_SW_PLL1 = 3

	RCC_PLLCKSELR_PLLSRC_HSI = 0

	RCC_PLLCFGR_PLL1FRACEN = 1 << 0
	RCC_PLLCFGR_PLL1VCOSEL = 1 << 1
	RCC_PLLCFGR_DIVP1EN    = 1 << 16

	// Reset values
	RCC_CR_RESET        = 0x00000025
	RCC_PLLCKSELR_RESET = 0x02020200
	RCC_PLLCFGR_RESET   = 0x01ff0000
	RCC_PLL1DIVR_RESET  = 0x01010280
)

// HSI is the frequency of the internal oscillator with HSIDIV left at 1.
const HSI = 64 * hertz.MHz

// regs names the fields freeze touches.
type regs struct {
	sw      reg.Field
	sws     reg.Field
	hpre    reg.Field
	d1ppre  reg.Field
	d2ppre1 reg.Field
	d2ppre2 reg.Field
	d3ppre  reg.Field
	pllsrc  reg.Field
	divm1   reg.Field
	pll1rge reg.Field
	divn1   reg.Field
	divp1   reg.Field
	pll1On  reg.Field
	pll1Rdy reg.Field
	vcoSel  reg.Field
	fracEn  reg.Field
	divp1En reg.Field

	frozen bool
}

func newRegs(bus reg.Bus) *regs {
	cr := reg.At(bus, CR_OFFSET)
	cfgr := reg.At(bus, CFGR_OFFSET)
	d1cfgr := reg.At(bus, D1CFGR_OFFSET)
	d2cfgr := reg.At(bus, D2CFGR_OFFSET)
	d3cfgr := reg.At(bus, D3CFGR_OFFSET)
	pllckselr := reg.At(bus, PLLCKSELR_OFFSET)
	pllcfgr := reg.At(bus, PLLCFGR_OFFSET)
	pll1divr := reg.At(bus, PLL1DIVR_OFFSET)
	return &regs{
		sw:      reg.Field{Name: "SW", Reg: cfgr, Pos: 0, Width: 3},
		sws:     reg.Field{Name: "SWS", Reg: cfgr, Pos: 3, Width: 3},
		hpre:    reg.Field{Name: "HPRE", Reg: d1cfgr, Pos: 0, Width: 4},
		d1ppre:  reg.Field{Name: "D1PPRE", Reg: d1cfgr, Pos: 4, Width: 3},
		d2ppre1: reg.Field{Name: "D2PPRE1", Reg: d2cfgr, Pos: 4, Width: 3},
		d2ppre2: reg.Field{Name: "D2PPRE2", Reg: d2cfgr, Pos: 8, Width: 3},
		d3ppre:  reg.Field{Name: "D3PPRE", Reg: d3cfgr, Pos: 4, Width: 3},
		pllsrc:  reg.Field{Name: "PLLSRC", Reg: pllckselr, Pos: 0, Width: 2},
		divm1:   reg.Field{Name: "DIVM1", Reg: pllckselr, Pos: 4, Width: 6},
		pll1rge: reg.Field{Name: "PLL1RGE", Reg: pllcfgr, Pos: 2, Width: 2},
		divn1:   reg.Field{Name: "DIVN1", Reg: pll1divr, Pos: 0, Width: 9},
		divp1:   reg.Field{Name: "DIVP1", Reg: pll1divr, Pos: 9, Width: 7},
		pll1On:  reg.Field{Name: "PLL1ON", Reg: cr, Pos: 24, Width: 1},
		pll1Rdy: reg.Field{Name: "PLL1RDY", Reg: cr, Pos: 25, Width: 1},
		vcoSel:  reg.Field{Name: "PLL1VCOSEL", Reg: pllcfgr, Pos: 1, Width: 1},
		fracEn:  reg.Field{Name: "PLL1FRACEN", Reg: pllcfgr, Pos: 0, Width: 1},
		divp1En: reg.Field{Name: "DIVP1EN", Reg: pllcfgr, Pos: 16, Width: 1},
	}
}
