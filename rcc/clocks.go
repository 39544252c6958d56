package rcc

import (
	"fmt"
	"strings"

	"github.com/Jon-Bright/rccctl/flash"
	"github.com/Jon-Bright/rccctl/hertz"
)

// Clocks holds the frozen clock frequencies.
//
// Having one means the clock configuration has been applied and can't be changed
// any more, so drivers take it to work out their own baud rates and timings.
type Clocks struct {
	sysClk hertz.Hertz
	hclk   hertz.Hertz
	pclk   [4]hertz.Hertz
	hpre   uint32
	ppre   [4]uint32
	flash  flash.Timing
	pll    PLLDividers
}

// SysClk returns sys_ck, the clock feeding HPRE.
func (c Clocks) SysClk() hertz.Hertz { return c.sysClk }

// HCLK1 to HCLK4 all run from HPRE and are always equal.
func (c Clocks) HCLK1() hertz.Hertz { return c.hclk }
func (c Clocks) HCLK2() hertz.Hertz { return c.hclk }
func (c Clocks) HCLK3() hertz.Hertz { return c.hclk }
func (c Clocks) HCLK4() hertz.Hertz { return c.hclk }

// PCLK1 to PCLK4 are the peripheral bus clocks: APB3, APB1, APB2 and APB4, each
// hclk divided by its own prescaler.
func (c Clocks) PCLK1() hertz.Hertz { return c.pclk[0] }
func (c Clocks) PCLK2() hertz.Hertz { return c.pclk[1] }
func (c Clocks) PCLK3() hertz.Hertz { return c.pclk[2] }
func (c Clocks) PCLK4() hertz.Hertz { return c.pclk[3] }

// HPRE returns the core bus divisor.
func (c Clocks) HPRE() uint32 { return c.hpre }

// D1PPRE, D2PPRE1, D2PPRE2 and D3PPRE return the peripheral bus divisors behind
// PCLK1 to PCLK4.
func (c Clocks) D1PPRE() uint32  { return c.ppre[0] }
func (c Clocks) D2PPRE1() uint32 { return c.ppre[1] }
func (c Clocks) D2PPRE2() uint32 { return c.ppre[2] }
func (c Clocks) D3PPRE() uint32  { return c.ppre[3] }

// Flash returns the wait state setting that was applied.
func (c Clocks) Flash() flash.Timing { return c.flash }

// PLL returns the PLL1 dividers in use, and false if sys_ck runs from HSI.
func (c Clocks) PLL() (PLLDividers, bool) {
	return c.pll, c.pll.M != 0
}

func (c Clocks) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sys_ck %v", c.sysClk)
	if d, ok := c.PLL(); ok {
		fmt.Fprintf(&b, " (PLL1 %v)", d)
	} else {
		b.WriteString(" (HSI)")
	}
	fmt.Fprintf(&b, ", hclk %v (/%d)", c.hclk, c.hpre)
	names := [4]string{"pclk1", "pclk2", "pclk3", "pclk4"}
	for i, n := range names {
		fmt.Fprintf(&b, ", %s %v (/%d)", n, c.pclk[i], c.ppre[i])
	}
	fmt.Fprintf(&b, ", flash %v", c.flash)
	return b.String()
}
