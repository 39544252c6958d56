package rcc

import (
	"github.com/Jon-Bright/rccctl/hertz"
)

// CFGR collects the requested clock configuration. Nothing is written to the
// hardware until Freeze.
//
// Setters return the builder so calls can be chained:
//
//	clocks, err := rcc.CFGR.PLL(32, 200, 2).HCLK1(hertz.MegaHertz(100)).Freeze(flash.ACR)
//
// The first invalid value is remembered, later setters do nothing, and Freeze
// returns it without touching a register.
type CFGR struct {
	r      *regs
	hclk   [4]hertz.Hertz
	pclk   [4]hertz.Hertz
	sysClk hertz.Hertz
	pll    *PLLDividers
	err    error
}

func newCFGR(r *regs) *CFGR {
	return &CFGR{r: r}
}

// Err returns the first error recorded by a setter.
func (c *CFGR) Err() error {
	return c.err
}

func (c *CFGR) set(dst *hertz.Hertz, name string, f hertz.Freq) *CFGR {
	if c.err != nil {
		return c
	}
	hz := f.Hz()
	if hz == 0 {
		c.err = rangeErr(name, 0, 1, 0xffffffff, "frequency must be positive")
		return c
	}
	*dst = hz
	return c
}

// HCLK1 sets a frequency for the AHB1 bus. HCLK1 to HCLK4 share one prescaler;
// the lowest numbered one that's set is used.
func (c *CFGR) HCLK1(f hertz.Freq) *CFGR { return c.set(&c.hclk[0], "hclk1", f) }

// HCLK2 sets a frequency for the AHB2 bus.
func (c *CFGR) HCLK2(f hertz.Freq) *CFGR { return c.set(&c.hclk[1], "hclk2", f) }

// HCLK3 sets a frequency for the AHB3 bus.
func (c *CFGR) HCLK3(f hertz.Freq) *CFGR { return c.set(&c.hclk[2], "hclk3", f) }

// HCLK4 sets a frequency for the AHB4 bus.
func (c *CFGR) HCLK4(f hertz.Freq) *CFGR { return c.set(&c.hclk[3], "hclk4", f) }

// PCLK1 sets a frequency for the APB3 bus in domain 1 (D1PPRE).
func (c *CFGR) PCLK1(f hertz.Freq) *CFGR { return c.set(&c.pclk[0], "pclk1", f) }

// PCLK2 sets a frequency for the APB1 bus (D2PPRE1).
func (c *CFGR) PCLK2(f hertz.Freq) *CFGR { return c.set(&c.pclk[1], "pclk2", f) }

// PCLK3 sets a frequency for the APB2 bus (D2PPRE2).
func (c *CFGR) PCLK3(f hertz.Freq) *CFGR { return c.set(&c.pclk[2], "pclk3", f) }

// PCLK4 sets a frequency for the APB4 bus (D3PPRE).
func (c *CFGR) PCLK4(f hertz.Freq) *CFGR { return c.set(&c.pclk[3], "pclk4", f) }

// SysClk asks for a system clock of f. Unless PLL is also called, Freeze searches
// for PLL1 dividers that get as close to f as possible without exceeding it.
// Asking for HSI (64MHz) leaves the PLL off.
func (c *CFGR) SysClk(f hertz.Freq) *CFGR {
	if c.err != nil {
		return c
	}
	c.set(&c.sysClk, "sys_ck", f)
	if c.err == nil {
		c.pll = nil
	}
	return c
}

// PLL sets the PLL1 dividers explicitly and with them sys_ck = (HSI/m)*n/p.
func (c *CFGR) PLL(m, n, p uint32) *CFGR {
	return c.setPLL(PLLDividers{M: m, N: n, P: p})
}

// WithPLL is PLL for a partly filled in set of dividers: fields left at zero
// take their reset values (M=32, N=129, P=2).
func (c *CFGR) WithPLL(d PLLDividers) *CFGR {
	return c.setPLL(d.withDefaults())
}

func (c *CFGR) setPLL(d PLLDividers) *CFGR {
	if c.err != nil {
		return c
	}
	if err := d.Validate(); err != nil {
		c.err = err
		return c
	}
	c.pll = &d
	c.sysClk = d.Out()
	return c
}
