package rcc_test

import (
	"errors"
	"testing"

	"github.com/Jon-Bright/rccctl/flash"
	"github.com/Jon-Bright/rccctl/hertz"
	"github.com/Jon-Bright/rccctl/rcc"
	"github.com/Jon-Bright/rccctl/sim"
)

func setup(t *testing.T) (*sim.Board, *rcc.Rcc, *flash.Flash) {
	t.Helper()
	b := sim.NewBoard()
	r, err := rcc.Constrain(b.RCC)
	if err != nil {
		t.Fatalf("rcc.Constrain failed: %v", err)
	}
	f, err := flash.Constrain(b.Flash)
	if err != nil {
		t.Fatalf("flash.Constrain failed: %v", err)
	}
	return b, r, f
}

// find returns the index of the first write to block/offset for which match is true,
// or -1.
func find(ws []sim.Write, block string, offset uintptr, match func(w sim.Write) bool) int {
	for i, w := range ws {
		if w.Block == block && w.Offset == offset && (match == nil || match(w)) {
			return i
		}
	}
	return -1
}

func last(ws []sim.Write, block string, offset uintptr) int {
	for i := len(ws) - 1; i >= 0; i-- {
		if ws[i].Block == block && ws[i].Offset == offset {
			return i
		}
	}
	return -1
}

func pllOn(w sim.Write) bool {
	return w.New&rcc.RCC_CR_PLL1ON != 0 && w.Old&rcc.RCC_CR_PLL1ON == 0
}

func swChange(w sim.Write) bool {
	return w.New&0x7 != w.Old&0x7
}

type expect struct {
	sys, hclk  hertz.Hertz
	pclk       [4]hertz.Hertz
	hpre       uint32
	ppre       [4]uint32
	latency    uint32
	wrHighFreq uint32
	pll        *rcc.PLLDividers
}

func check(t *testing.T, name string, c rcc.Clocks, want expect) {
	t.Helper()
	if c.SysClk() != want.sys {
		t.Errorf("%s: SysClk incorrect, got: %v, want: %v", name, c.SysClk(), want.sys)
	}
	for i, h := range []hertz.Hertz{c.HCLK1(), c.HCLK2(), c.HCLK3(), c.HCLK4()} {
		if h != want.hclk {
			t.Errorf("%s: HCLK%d incorrect, got: %v, want: %v", name, i+1, h, want.hclk)
		}
	}
	pclk := [4]hertz.Hertz{c.PCLK1(), c.PCLK2(), c.PCLK3(), c.PCLK4()}
	if pclk != want.pclk {
		t.Errorf("%s: PCLKs incorrect, got: %v, want: %v", name, pclk, want.pclk)
	}
	if c.HPRE() != want.hpre {
		t.Errorf("%s: HPRE incorrect, got: %d, want: %d", name, c.HPRE(), want.hpre)
	}
	ppre := [4]uint32{c.D1PPRE(), c.D2PPRE1(), c.D2PPRE2(), c.D3PPRE()}
	if ppre != want.ppre {
		t.Errorf("%s: PPREs incorrect, got: %v, want: %v", name, ppre, want.ppre)
	}
	if f := c.Flash(); f.Latency != want.latency || f.WrHighFreq != want.wrHighFreq {
		t.Errorf("%s: flash timing incorrect, got: %v, want: LATENCY=%d WRHIGHFREQ=%d", name, f, want.latency, want.wrHighFreq)
	}
	d, ok := c.PLL()
	switch {
	case want.pll == nil && ok:
		t.Errorf("%s: PLL in use (%v), want HSI", name, d)
	case want.pll != nil && !ok:
		t.Errorf("%s: HSI in use, want PLL %v", name, *want.pll)
	case want.pll != nil && d != *want.pll:
		t.Errorf("%s: PLL incorrect, got: %v, want: %v", name, d, *want.pll)
	}
}

func mhz(f uint32) hertz.Hertz {
	return hertz.MegaHertz(f).Hz()
}

func TestFreezeScenarios(t *testing.T) {
	tests := []struct {
		name  string
		build func(c *rcc.CFGR) *rcc.CFGR
		want  expect
	}{
		{
			"reset",
			func(c *rcc.CFGR) *rcc.CFGR { return c },
			expect{
				sys: mhz(64), hclk: mhz(64),
				pclk: [4]hertz.Hertz{mhz(64), mhz(64), mhz(64), mhz(64)},
				hpre: 1, ppre: [4]uint32{1, 1, 1, 1},
				latency: 1, wrHighFreq: 1,
			},
		},
		{
			"default PLL",
			func(c *rcc.CFGR) *rcc.CFGR { return c.PLL(32, 129, 2) },
			expect{
				sys: mhz(129), hclk: mhz(129),
				pclk: [4]hertz.Hertz{mhz(129), mhz(129), mhz(129), mhz(129)},
				hpre: 1, ppre: [4]uint32{1, 1, 1, 1},
				latency: 2, wrHighFreq: 1,
				pll: &rcc.PLLDividers{M: 32, N: 129, P: 2},
			},
		},
		{
			"240MHz halves hclk",
			func(c *rcc.CFGR) *rcc.CFGR { return c.PLL(8, 60, 2) },
			expect{
				sys: mhz(240), hclk: mhz(120),
				pclk: [4]hertz.Hertz{mhz(120), mhz(120), mhz(120), mhz(120)},
				hpre: 2, ppre: [4]uint32{1, 1, 1, 1},
				latency: 2, wrHighFreq: 1,
				pll: &rcc.PLLDividers{M: 8, N: 60, P: 2},
			},
		},
		{
			"peripheral buses",
			func(c *rcc.CFGR) *rcc.CFGR {
				return c.PLL(8, 50, 2).
					PCLK1(hertz.MegaHertz(100)).
					PCLK2(hertz.MegaHertz(50)).
					PCLK3(hertz.MegaHertz(30)).
					PCLK4(hertz.MegaHertz(200))
			},
			expect{
				sys: mhz(200), hclk: mhz(200),
				pclk: [4]hertz.Hertz{mhz(100), mhz(50), mhz(25), mhz(200)},
				hpre: 1, ppre: [4]uint32{2, 4, 8, 1},
				latency: 4, wrHighFreq: 2,
				pll: &rcc.PLLDividers{M: 8, N: 50, P: 2},
			},
		},
		{
			"hclk undershoots",
			func(c *rcc.CFGR) *rcc.CFGR { return c.HCLK1(hertz.MegaHertz(60)) },
			expect{
				sys: mhz(64), hclk: mhz(32),
				pclk: [4]hertz.Hertz{mhz(32), mhz(32), mhz(32), mhz(32)},
				hpre: 2, ppre: [4]uint32{1, 1, 1, 1},
				latency: 0, wrHighFreq: 0,
			},
		},
		{
			"pclk below every divisor",
			func(c *rcc.CFGR) *rcc.CFGR { return c.PCLK1(hertz.MegaHertz(1)) },
			expect{
				sys: mhz(64), hclk: mhz(64),
				pclk: [4]hertz.Hertz{mhz(4), mhz(64), mhz(64), mhz(64)},
				hpre: 1, ppre: [4]uint32{16, 1, 1, 1},
				latency: 1, wrHighFreq: 1,
			},
		},
		{
			"searched 200MHz",
			func(c *rcc.CFGR) *rcc.CFGR { return c.SysClk(hertz.MegaHertz(200)) },
			expect{
				sys: mhz(200), hclk: mhz(200),
				pclk: [4]hertz.Hertz{mhz(200), mhz(200), mhz(200), mhz(200)},
				hpre: 1, ppre: [4]uint32{1, 1, 1, 1},
				latency: 4, wrHighFreq: 2,
				pll: &rcc.PLLDividers{M: 8, N: 50, P: 2},
			},
		},
		{
			"searched 399MHz",
			func(c *rcc.CFGR) *rcc.CFGR { return c.SysClk(hertz.MegaHertz(399)) },
			expect{
				sys: mhz(399), hclk: 199500 * hertz.KHz,
				pclk: [4]hertz.Hertz{199500 * hertz.KHz, 199500 * hertz.KHz, 199500 * hertz.KHz, 199500 * hertz.KHz},
				hpre: 2, ppre: [4]uint32{1, 1, 1, 1},
				latency: 4, wrHighFreq: 2,
				pll: &rcc.PLLDividers{M: 32, N: 399, P: 2},
			},
		},
		{
			"SysClk at HSI",
			func(c *rcc.CFGR) *rcc.CFGR { return c.SysClk(hertz.MegaHertz(64)) },
			expect{
				sys: mhz(64), hclk: mhz(64),
				pclk: [4]hertz.Hertz{mhz(64), mhz(64), mhz(64), mhz(64)},
				hpre: 1, ppre: [4]uint32{1, 1, 1, 1},
				latency: 1, wrHighFreq: 1,
			},
		},
	}
	for _, test := range tests {
		b, r, f := setup(t)
		b.PLLReadyAfter = 4
		b.SwitchAfter = 2
		c, err := test.build(r.CFGR).Freeze(f.ACR)
		if err != nil {
			t.Errorf("%s: Freeze failed: %v", test.name, err)
			continue
		}
		check(t, test.name, c, test.want)
		if test.want.pll == nil {
			if i := find(b.Writes(), "RCC", rcc.CR_OFFSET, pllOn); i >= 0 {
				t.Errorf("%s: PLL1 switched on for an HSI configuration: %v", test.name, b.Writes()[i])
			}
		}
		acr := b.Flash.Peek(flash.ACR_OFFSET)
		if acr&0xf != test.want.latency || acr>>4&0x3 != test.want.wrHighFreq {
			t.Errorf("%s: FLASH_ACR incorrect, got: %#x", test.name, acr)
		}
	}
}

func TestFreezePLLRegisters(t *testing.T) {
	tests := []struct {
		d      rcc.PLLDividers
		rge    uint32
		vcoSel uint32
	}{
		{rcc.PLLDividers{M: 32, N: 129, P: 2}, 1, 0},
		{rcc.PLLDividers{M: 8, N: 60, P: 2}, 3, 0},
		{rcc.PLLDividers{M: 16, N: 100, P: 4}, 2, 0},
		{rcc.PLLDividers{M: 63, N: 512, P: 2}, 0, 1},
	}
	for _, test := range tests {
		b, r, f := setup(t)
		c, err := r.CFGR.PLL(test.d.M, test.d.N, test.d.P).Freeze(f.ACR)
		if err != nil {
			t.Errorf("%v: Freeze failed: %v", test.d, err)
			continue
		}
		if c.SysClk() != test.d.Out() {
			t.Errorf("%v: SysClk incorrect, got: %v, want: %v", test.d, c.SysClk(), test.d.Out())
		}
		ckselr := b.RCC.Peek(rcc.PLLCKSELR_OFFSET)
		if got := ckselr >> 4 & 0x3f; got != test.d.M {
			t.Errorf("%v: DIVM1 incorrect, got: %d, want: %d", test.d, got, test.d.M)
		}
		if got := ckselr & 0x3; got != rcc.RCC_PLLCKSELR_PLLSRC_HSI {
			t.Errorf("%v: PLLSRC incorrect, got: %d", test.d, got)
		}
		divr := b.RCC.Peek(rcc.PLL1DIVR_OFFSET)
		if got := divr & 0x1ff; got != test.d.N-1 {
			t.Errorf("%v: DIVN1 incorrect, got: %d, want: %d", test.d, got, test.d.N-1)
		}
		if got := divr >> 9 & 0x7f; got != test.d.P-1 {
			t.Errorf("%v: DIVP1 incorrect, got: %d, want: %d", test.d, got, test.d.P-1)
		}
		pllcfgr := b.RCC.Peek(rcc.PLLCFGR_OFFSET)
		if got := pllcfgr >> 2 & 0x3; got != test.rge {
			t.Errorf("%v: PLL1RGE incorrect, got: %d, want: %d", test.d, got, test.rge)
		}
		if got := pllcfgr >> 1 & 0x1; got != test.vcoSel {
			t.Errorf("%v: PLL1VCOSEL incorrect, got: %d, want: %d", test.d, got, test.vcoSel)
		}
		if pllcfgr&rcc.RCC_PLLCFGR_PLL1FRACEN != 0 || pllcfgr&rcc.RCC_PLLCFGR_DIVP1EN == 0 {
			t.Errorf("%v: PLLCFGR incorrect, got: %#x", test.d, pllcfgr)
		}
		cr := b.RCC.Peek(rcc.CR_OFFSET)
		if cr&rcc.RCC_CR_PLL1ON == 0 || cr&rcc.RCC_CR_PLL1RDY == 0 {
			t.Errorf("%v: PLL1 not running, CR: %#x", test.d, cr)
		}
		if sws := b.RCC.Peek(rcc.CFGR_OFFSET) >> 3 & 0x7; sws != rcc.RCC_CFGR_SW_PLL1 {
			t.Errorf("%v: SWS incorrect, got: %d, want: %d", test.d, sws, rcc.RCC_CFGR_SW_PLL1)
		}
	}
}

func TestFreezeOrderRaising(t *testing.T) {
	b, r, f := setup(t)
	b.Flash.Poke(flash.ACR_OFFSET, 0)
	if _, err := r.CFGR.PLL(8, 60, 2).PCLK2(hertz.MegaHertz(60)).Freeze(f.ACR); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	ws := b.Writes()
	fl := find(ws, "FLASH", flash.ACR_OFFSET, nil)
	hpre := find(ws, "RCC", rcc.D1CFGR_OFFSET, nil)
	on := find(ws, "RCC", rcc.CR_OFFSET, pllOn)
	sw := find(ws, "RCC", rcc.CFGR_OFFSET, swChange)
	ppre := find(ws, "RCC", rcc.D2CFGR_OFFSET, nil)
	if fl < 0 || hpre < 0 || on < 0 || sw < 0 || ppre < 0 {
		t.Fatalf("missing writes (flash %d, HPRE %d, PLL1ON %d, SW %d, PPRE %d): %v", fl, hpre, on, sw, ppre, ws)
	}
	if fl != 0 {
		t.Errorf("raised flash timing should be the first write, got index %d: %v", fl, ws)
	}
	if !(hpre < on && on < sw) {
		t.Errorf("HPRE, PLL1ON and SW out of order: %d, %d, %d: %v", hpre, on, sw, ws)
	}
	if ppre < sw {
		t.Errorf("PPRE written before the switch: %v", ws)
	}
	if n := last(ws, "FLASH", flash.ACR_OFFSET); n != fl {
		t.Errorf("flash written twice: %v", ws)
	}
}

// Same LATENCY but a higher WRHIGHFREQ still counts as raising the flash timing.
func TestFreezeOrderRaisingWrHighFreq(t *testing.T) {
	b, r, f := setup(t)
	b.Flash.Poke(flash.ACR_OFFSET, 0x02) // LATENCY=2, WRHIGHFREQ=0
	if _, err := r.CFGR.PLL(8, 60, 2).Freeze(f.ACR); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	ws := b.Writes()
	fl := find(ws, "FLASH", flash.ACR_OFFSET, nil)
	sw := find(ws, "RCC", rcc.CFGR_OFFSET, swChange)
	if fl < 0 || sw < 0 || fl > sw {
		t.Errorf("flash timing should be written before the switch (flash %d, SW %d): %v", fl, sw, ws)
	}
	if got := b.Flash.Peek(flash.ACR_OFFSET); got != 0x12 {
		t.Errorf("FLASH_ACR incorrect, got: %#x, want: 0x12", got)
	}
}

func TestFreezeOrderLowering(t *testing.T) {
	b, r, f := setup(t)
	if _, err := r.CFGR.PLL(32, 129, 2).PCLK3(hertz.MegaHertz(40)).Freeze(f.ACR); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	ws := b.Writes()
	fl := find(ws, "FLASH", flash.ACR_OFFSET, nil)
	if fl != len(ws)-1 {
		t.Errorf("lowered flash timing should be the last write, got index %d of %d: %v", fl, len(ws), ws)
	}
	sw := find(ws, "RCC", rcc.CFGR_OFFSET, swChange)
	hpre := last(ws, "RCC", rcc.D1CFGR_OFFSET)
	for _, off := range []uintptr{rcc.D1CFGR_OFFSET, rcc.D2CFGR_OFFSET, rcc.D3CFGR_OFFSET} {
		if i := last(ws, "RCC", off); i < sw {
			t.Errorf("%#x written before the switch: %v", off, ws)
		}
	}
	if hpre < sw {
		t.Errorf("HPRE not written after the switch: %v", ws)
	}
}

func TestFreezeRangeErrorWritesNothing(t *testing.T) {
	tests := []struct {
		name  string
		build func(c *rcc.CFGR) *rcc.CFGR
		what  string
	}{
		{"hclk too fast", func(c *rcc.CFGR) *rcc.CFGR { return c.HCLK1(hertz.MegaHertz(201)) }, "hclk1"},
		{"hclk at limit", func(c *rcc.CFGR) *rcc.CFGR { return c.PLL(8, 60, 2).HCLK2(hertz.MegaHertz(200)) }, "hclk2"},
		{"bad DIVM1", func(c *rcc.CFGR) *rcc.CFGR { return c.PLL(64, 129, 2) }, "DIVM1"},
		{"odd DIVP1", func(c *rcc.CFGR) *rcc.CFGR { return c.PLL(32, 129, 3) }, "DIVP1"},
		{"PLL too fast", func(c *rcc.CFGR) *rcc.CFGR { return c.PLL(8, 100, 2) }, "pll1_p_ck"},
		{"sysclk 480MHz", func(c *rcc.CFGR) *rcc.CFGR { return c.SysClk(hertz.MegaHertz(480)) }, "sys_ck"},
		{"zero pclk", func(c *rcc.CFGR) *rcc.CFGR { return c.PCLK4(hertz.Hertz(0)) }, "pclk4"},
	}
	for _, test := range tests {
		b, r, f := setup(t)
		_, err := test.build(r.CFGR).Freeze(f.ACR)
		var re *rcc.RangeError
		if !errors.As(err, &re) {
			t.Errorf("%s: expected a RangeError, got: %v", test.name, err)
			continue
		}
		if re.What != test.what {
			t.Errorf("%s: RangeError for the wrong thing, got: %s, want: %s", test.name, re.What, test.what)
		}
		if ws := b.Writes(); len(ws) != 0 {
			t.Errorf("%s: registers written despite the error: %v", test.name, ws)
		}
	}
}

func TestFreezeTwice(t *testing.T) {
	b, r, f := setup(t)
	first, err := r.CFGR.PLL(8, 60, 2).Freeze(f.ACR)
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	b.ResetWrites()
	if _, err := r.CFGR.Freeze(f.ACR); err != rcc.ErrFrozen {
		t.Errorf("second Freeze incorrect, got: %v, want: %v", err, rcc.ErrFrozen)
	}
	if ws := b.Writes(); len(ws) != 0 {
		t.Errorf("second Freeze wrote registers: %v", ws)
	}
	if first.SysClk() != mhz(240) || first.HCLK3() != mhz(120) {
		t.Errorf("first Freeze's Clocks changed: %v", first)
	}
}

func TestFreezePLLRunning(t *testing.T) {
	b, r, f := setup(t)
	b.RCC.Poke(rcc.CR_OFFSET, rcc.RCC_CR_RESET|rcc.RCC_CR_PLL1ON|rcc.RCC_CR_PLL1RDY)
	if _, err := r.CFGR.PLL(8, 60, 2).Freeze(f.ACR); err != rcc.ErrPLLRunning {
		t.Errorf("Freeze incorrect, got: %v, want: %v", err, rcc.ErrPLLRunning)
	}
	if ws := b.Writes(); len(ws) != 0 {
		t.Errorf("registers written despite the error: %v", ws)
	}
}

func TestConstrainTwice(t *testing.T) {
	b, _, _ := setup(t)
	if _, err := rcc.Constrain(b.RCC); err != rcc.ErrTaken {
		t.Errorf("second rcc.Constrain incorrect, got: %v, want: %v", err, rcc.ErrTaken)
	}
	if _, err := flash.Constrain(b.Flash); err != flash.ErrTaken {
		t.Errorf("second flash.Constrain incorrect, got: %v, want: %v", err, flash.ErrTaken)
	}
}

// Whatever was asked for, each peripheral clock is hclk divided by a legal divisor
// and hclk stays below 200MHz.
func TestFreezeDerivedClocks(t *testing.T) {
	targets := []uint32{1, 7, 20, 33, 50, 64, 99, 100, 150, 199}
	for i, sys := range []uint32{64, 129, 200, 240, 300, 399} {
		b, r, f := setup(t)
		tg := func(k int) hertz.MegaHertz {
			return hertz.MegaHertz(targets[(i+k)%len(targets)])
		}
		c, err := r.CFGR.SysClk(hertz.MegaHertz(sys)).
			PCLK1(tg(0)).PCLK2(tg(3)).PCLK3(tg(5)).PCLK4(tg(8)).
			Freeze(f.ACR)
		if err != nil {
			t.Errorf("sys %dMHz: Freeze failed: %v", sys, err)
			continue
		}
		if c.HCLK1() >= mhz(200) {
			t.Errorf("sys %dMHz: hclk %v not below 200MHz", sys, c.HCLK1())
		}
		if c.HCLK1() != c.SysClk()/hertz.Hertz(c.HPRE()) {
			t.Errorf("sys %dMHz: hclk %v isn't sys_ck %v / %d", sys, c.HCLK1(), c.SysClk(), c.HPRE())
		}
		pclk := []hertz.Hertz{c.PCLK1(), c.PCLK2(), c.PCLK3(), c.PCLK4()}
		ppre := []uint32{c.D1PPRE(), c.D2PPRE1(), c.D2PPRE2(), c.D3PPRE()}
		for k := range pclk {
			if _, ok := rcc.PPRETable().Code(ppre[k]); !ok {
				t.Errorf("sys %dMHz: PCLK%d divisor %d isn't a PPRE setting", sys, k+1, ppre[k])
			}
			if pclk[k] != c.HCLK1()/hertz.Hertz(ppre[k]) {
				t.Errorf("sys %dMHz: PCLK%d %v isn't hclk %v / %d", sys, k+1, pclk[k], c.HCLK1(), ppre[k])
			}
		}
		if b.Flash.Peek(flash.ACR_OFFSET)&0xf != c.Flash().Latency {
			t.Errorf("sys %dMHz: FLASH_ACR doesn't match %v", sys, c.Flash())
		}
	}
}
