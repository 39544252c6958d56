package rcc

import (
	"github.com/Jon-Bright/rccctl/hertz"
)

// divider is one legal prescaler setting: the division it performs and the value
// that selects it in the register field.
type divider struct {
	div  uint32
	code uint32
}

// DividerTable lists the settings of one prescaler field, in ascending divisor order.
type DividerTable []divider

// Divisors returns the divisors in the table.
func (t DividerTable) Divisors() []uint32 {
	d := make([]uint32, len(t))
	for i, v := range t {
		d[i] = v.div
	}
	return d
}

// Code returns the field value selecting divisor div.
func (t DividerTable) Code(div uint32) (uint32, bool) {
	for _, v := range t {
		if v.div == div {
			return v.code, true
		}
	}
	return 0, false
}

// Divisor decodes a field value. Codes below the first "divide" code all mean 1.
func (t DividerTable) Divisor(code uint32) uint32 {
	d := uint32(1)
	for _, v := range t {
		if code >= v.code {
			d = v.div
		}
	}
	return d
}

var (
	// HPRE, 4 bits: 0xxx is /1, then 1000../2 up to 1111../512 with no /32.
	hpreTable = DividerTable{
		{1, 0x0}, {2, 0x8}, {4, 0x9}, {8, 0xa}, {16, 0xb},
		{64, 0xc}, {128, 0xd}, {256, 0xe}, {512, 0xf},
	}
	// D1PPRE, D2PPRE1, D2PPRE2, D3PPRE, 3 bits: 0xx is /1, then 100../2 up to 111../16.
	ppreTable = DividerTable{
		{1, 0x0}, {2, 0x4}, {4, 0x5}, {8, 0x6}, {16, 0x7},
	}
)

// HPRETable returns the core bus prescaler settings.
func HPRETable() DividerTable { return append(DividerTable(nil), hpreTable...) }

// PPRETable returns the peripheral bus prescaler settings.
func PPRETable() DividerTable { return append(DividerTable(nil), ppreTable...) }

const (
	maxHCLK        = 200 * hertz.MHz
	hpreDefaultMin = 200 * hertz.MHz // sys_ck above this gets HPRE=2 when no hclk is asked for
)

// distance is how far src/div falls short of target. A quotient above target
// has no distance: the search never picks a divisor that overshoots while one
// that doesn't exists.
func distance(target, src hertz.Hertz, div uint32) (hertz.Hertz, bool) {
	q := src / hertz.Hertz(div)
	if q > target {
		return 0, false
	}
	return target - q, true
}

// nearestDivisor scans t in ascending order and returns the divisor whose quotient
// falls least below target; on a tie the smaller divisor wins. If every quotient is
// above target, the largest divisor is used since it overshoots the least; that case
// never falls back to /1.
func nearestDivisor(t DividerTable, src, target hertz.Hertz) uint32 {
	best := uint32(0)
	var closest hertz.Hertz
	for _, v := range t {
		d, ok := distance(target, src, v.div)
		if !ok {
			continue
		}
		if best == 0 || d < closest {
			best = v.div
			closest = d
		}
	}
	if best == 0 {
		return t[len(t)-1].div
	}
	return best
}

// hclkTarget returns the first of the core bus targets that's set, in priority
// order, and its name.
func (c *CFGR) hclkTarget() (hertz.Hertz, string, bool) {
	for i, f := range c.hclk {
		if f != 0 {
			return f, hclkNames[i], true
		}
	}
	return 0, "", false
}

var hclkNames = [4]string{"hclk1", "hclk2", "hclk3", "hclk4"}

// hpreFor chooses the core bus prescaler for sys. All four core bus domains share it,
// so at most one target is honoured.
func (c *CFGR) hpreFor(sys hertz.Hertz) (uint32, error) {
	target, name, ok := c.hclkTarget()
	if !ok {
		if sys > hpreDefaultMin {
			// sys_ck can't go past 400MHz, so halving it always lands at or below 200MHz
			return 2, nil
		}
		return 1, nil
	}
	if target >= maxHCLK {
		return 0, rangeErr(name, uint32(target), 1, uint32(maxHCLK)-1, "core bus must stay below 200MHz")
	}
	return nearestDivisor(hpreTable, sys, target), nil
}

// ppreFor chooses the four peripheral bus prescalers for hclk. An unset target
// means the bus runs at hclk.
func (c *CFGR) ppreFor(hclk hertz.Hertz) [4]uint32 {
	var d [4]uint32
	for i, target := range c.pclk {
		if target == 0 || target == hclk {
			d[i] = 1
			continue
		}
		d[i] = nearestDivisor(ppreTable, hclk, target)
	}
	return d
}
