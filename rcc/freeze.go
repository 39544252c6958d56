package rcc

import (
	"errors"

	"github.com/Jon-Bright/rccctl/flash"
	"github.com/Jon-Bright/rccctl/hertz"
	"github.com/Jon-Bright/rccctl/reg"
	"github.com/golang/glog"
)

// plan is everything Freeze is going to write, worked out before the first store.
type plan struct {
	pll   *PLLDividers // nil: sys_ck stays on HSI
	sys   hertz.Hertz
	hpre  uint32
	hclk  hertz.Hertz
	ppre  [4]uint32
	flash flash.Timing
}

func (c *CFGR) plan() (*plan, error) {
	if c.err != nil {
		return nil, c.err
	}
	p := &plan{sys: HSI}
	if c.sysClk != 0 && c.sysClk != HSI {
		d := c.pll
		if d == nil {
			found, err := searchPLL(c.sysClk)
			if err != nil {
				return nil, err
			}
			d = &found
		}
		p.pll = d
		p.sys = d.Out()
	}

	var err error
	p.hpre, err = c.hpreFor(p.sys)
	if err != nil {
		return nil, err
	}
	p.hclk = p.sys / hertz.Hertz(p.hpre)
	p.ppre = c.ppreFor(p.hclk)

	p.flash, err = flash.TimingFor(p.hclk)
	if err != nil {
		var fe *flash.RangeError
		if errors.As(err, &fe) {
			return nil, rangeErr("hclk", uint32(fe.HCLK), 0, uint32(fe.Max)-1, "no flash timing")
		}
		return nil, err
	}

	// PLL1's dividers can't be changed while it runs, and stopping it under a
	// running system is a reconfiguration.
	if p.pll != nil && c.r.pll1On.Get() != 0 {
		return nil, ErrPLLRunning
	}
	return p, nil
}

// Freeze makes the configuration effective and returns the resulting clock tree.
// acr proves that nothing else is using the flash wait states.
//
// Everything is checked before the first register write: if Freeze returns an
// error, the hardware hasn't been touched. Freeze works once per RCC; afterwards
// it returns ErrFrozen. It may block forever if HSI or PLL1 never report ready.
func (c *CFGR) Freeze(acr *flash.ACR) (Clocks, error) {
	if c.r.frozen {
		return Clocks{}, ErrFrozen
	}
	p, err := c.plan()
	if err != nil {
		return Clocks{}, err
	}
	c.r.frozen = true
	r := c.r

	// Wait states go up before the clock does and down after it. The same goes for
	// HPRE, so that hclk never passes both its old and its new value in between.
	cur := acr.Current()
	raiseFlash := p.flash.Latency > cur.Latency || p.flash.WrHighFreq > cur.WrHighFreq
	if raiseFlash {
		glog.V(1).Infof("Raising flash timing to %v", p.flash)
		acr.Apply(p.flash)
	}
	hpreCode, _ := hpreTable.Code(p.hpre)
	raiseHPRE := p.hpre > hpreTable.Divisor(r.hpre.Get())
	if raiseHPRE {
		r.hpre.Set(hpreCode)
	}

	sys := HSI
	if p.pll != nil {
		sys = r.engagePLL(*p.pll)
	} else {
		// Usually this is what's already selected, but a previous program may have
		// left something else behind.
		r.switchTo(RCC_CFGR_SW_HSI)
	}

	if !raiseHPRE {
		r.hpre.Set(hpreCode)
	}
	hclk := sys / hertz.Hertz(p.hpre)

	// All four peripheral prescalers are known before any of them is written.
	fields := [4]reg.Field{r.d1ppre, r.d2ppre1, r.d2ppre2, r.d3ppre}
	var pclk [4]hertz.Hertz
	for i, f := range fields {
		code, _ := ppreTable.Code(p.ppre[i])
		f.Set(code)
		pclk[i] = hclk / hertz.Hertz(p.ppre[i])
	}

	if !raiseFlash {
		glog.V(1).Infof("Setting flash timing to %v", p.flash)
		acr.Apply(p.flash)
	}

	clk := Clocks{
		sysClk: sys,
		hclk:   hclk,
		pclk:   pclk,
		hpre:   p.hpre,
		ppre:   p.ppre,
		flash:  p.flash,
	}
	if p.pll != nil {
		clk.pll = *p.pll
	}
	glog.Infof("Clocks frozen: %v", clk)
	return clk, nil
}
