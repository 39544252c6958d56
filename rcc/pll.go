package rcc

import (
	"fmt"

	"github.com/Jon-Bright/rccctl/hertz"
	"github.com/golang/glog"
)

// PLLDividers are the three PLL1 dividers feeding sys_ck:
//
//	ref_ck    = HSI / M
//	pll1_p_ck = ref_ck * N / P
type PLLDividers struct {
	M uint32 // DIVM1, 1..63
	N uint32 // multiplier, 3..512
	P uint32 // even, 2..128
}

// The reset values of DIVM1, DIVN1 and DIVP1: 64MHz / 32 * 129 / 2 = 129MHz.
var defaultPLL = PLLDividers{M: 32, N: 129, P: 2}

const (
	minRef    = 1 * hertz.MHz  // exclusive
	maxRef    = 16 * hertz.MHz // exclusive
	maxPLLOut = 400 * hertz.MHz
)

// DefaultPLL returns the dividers PLL1 comes out of reset with.
func DefaultPLL() PLLDividers {
	return defaultPLL
}

func (d PLLDividers) withDefaults() PLLDividers {
	if d.M == 0 {
		d.M = defaultPLL.M
	}
	if d.N == 0 {
		d.N = defaultPLL.N
	}
	if d.P == 0 {
		d.P = defaultPLL.P
	}
	return d
}

func (d PLLDividers) String() string {
	return fmt.Sprintf("M=%d N=%d P=%d", d.M, d.N, d.P)
}

// Ref returns the PLL input frequency.
func (d PLLDividers) Ref() hertz.Hertz {
	return HSI / hertz.Hertz(d.M)
}

// VCO returns the PLL's oscillator frequency, before P.
func (d PLLDividers) VCO() uint64 {
	return uint64(d.Ref()) * uint64(d.N)
}

// Out returns the frequency of pll1_p_ck.
func (d PLLDividers) Out() hertz.Hertz {
	return hertz.Hertz(d.VCO() / uint64(d.P))
}

// Validate checks every divider against its field and the resulting frequencies
// against the PLL's input and output limits.
func (d PLLDividers) Validate() error {
	if d.M < 1 || d.M > 63 {
		return rangeErr("DIVM1", d.M, 1, 63, "")
	}
	if d.N < 3 || d.N > 512 {
		return rangeErr("DIVN1", d.N, 3, 512, "")
	}
	if d.P < 2 || d.P > 128 || d.P%2 != 0 {
		return rangeErr("DIVP1", d.P, 2, 128, "must be even")
	}
	ref := d.Ref()
	if ref <= minRef || ref >= maxRef {
		return rangeErr("ref_ck", uint32(ref), uint32(minRef)+1, uint32(maxRef)-1, fmt.Sprintf("HSI/%d", d.M))
	}
	if out := d.VCO() / uint64(d.P); out >= uint64(maxPLLOut) {
		v := uint32(0xffffffff)
		if out < uint64(v) {
			v = uint32(out)
		}
		return rangeErr("pll1_p_ck", v, 0, uint32(maxPLLOut)-1, d.String())
	}
	return nil
}

// rangeCode is the PLL1RGE setting for a reference frequency: 1-2, 2-4, 4-8 or
// 8-16MHz. A band includes its lower edge.
func rangeCode(ref hertz.Hertz) uint32 {
	switch {
	case ref < 2*hertz.MHz:
		return 0
	case ref < 4*hertz.MHz:
		return 1
	case ref < 8*hertz.MHz:
		return 2
	}
	return 3
}

// VCO ranges of PLL1. The medium range (VCOSEL=1) is used below a 2MHz reference.
const (
	wideVCOMin   = 192000000
	wideVCOMax   = 836000000
	mediumVCOMin = 150000000
	mediumVCOMax = 420000000
)

func vcoRange(ref hertz.Hertz) (uint64, uint64) {
	if ref < 2*hertz.MHz {
		return mediumVCOMin, mediumVCOMax
	}
	return wideVCOMin, wideVCOMax
}

// searchPLL finds dividers for a sys_ck of target. The result is the one whose output
// is closest to target without going over it; on a tie the smallest M, then the
// smallest P wins. Unlike an explicit triple, a searched one also has to keep the
// VCO inside its range.
func searchPLL(target hertz.Hertz) (PLLDividers, error) {
	if target == 0 || target >= maxPLLOut {
		return PLLDividers{}, rangeErr("sys_ck", uint32(target), 1, uint32(maxPLLOut)-1, "PLL output must stay below 400MHz")
	}
	var best PLLDividers
	var bestOut hertz.Hertz
	for m := uint32(1); m <= 63; m++ {
		ref := HSI / hertz.Hertz(m)
		if ref <= minRef || ref >= maxRef {
			continue
		}
		vcoMin, vcoMax := vcoRange(ref)
		for p := uint32(2); p <= 128; p += 2 {
			n := uint64(target) * uint64(p) / uint64(ref)
			if n > 512 {
				n = 512
			}
			if lim := vcoMax / uint64(ref); n > lim {
				n = lim
			}
			if n < 3 || uint64(ref)*n < vcoMin {
				continue
			}
			d := PLLDividers{M: m, N: uint32(n), P: p}
			if d.Validate() != nil {
				continue
			}
			if out := d.Out(); best.M == 0 || out > bestOut {
				best, bestOut = d, out
			}
		}
	}
	if best.M == 0 {
		return PLLDividers{}, rangeErr("sys_ck", uint32(target), 1, uint32(maxPLLOut)-1, "no PLL1 setting reaches it")
	}
	glog.V(1).Infof("PLL1 search for %v: %v gives %v", target, best, bestOut)
	return best, nil
}

// engagePLL programs PLL1 from d, starts it and switches sys_ck over to it. It
// returns sys_ck as computed from the fields actually in the registers.
//
// Neither wait has a timeout. If HSI or the PLL never comes ready, this never
// returns.
func (r *regs) engagePLL(d PLLDividers) hertz.Hertz {
	r.pllsrc.Set(RCC_PLLCKSELR_PLLSRC_HSI)
	r.divm1.Set(d.M)

	ref := d.Ref()
	r.pll1rge.Set(rangeCode(ref))
	if ref < 2*hertz.MHz {
		r.vcoSel.Set(1)
	} else {
		r.vcoSel.Set(0)
	}
	r.fracEn.Set(0)

	r.divn1.Set(d.N - 1)
	r.divp1En.Set(1)
	r.divp1.Set(d.P - 1)
	glog.V(1).Infof("PLL1 %v, ref_ck %v, PLL1RGE %d", d, ref, rangeCode(ref))

	r.pll1On.Set(1)
	glog.V(1).Infof("Waiting for PLL1 ready")
	i := 0
	for r.pll1Rdy.Get() == 0 {
		i++
	}
	glog.V(1).Infof("Done %d", i)

	r.switchTo(RCC_CFGR_SW_PLL1)

	programmed := PLLDividers{
		M: r.divm1.Get(),
		N: r.divn1.Get() + 1,
		P: r.divp1.Get() + 1,
	}
	return programmed.Out()
}

// switchTo selects the sys_ck source and waits, without a timeout, until the
// switch status confirms it.
func (r *regs) switchTo(src uint32) {
	r.sw.Set(src)
	glog.V(1).Infof("Waiting for SWS=%d", src)
	i := 0
	for r.sws.Get() != src {
		i++
	}
	glog.V(1).Infof("Done %d", i)
}
