// Package flash drives the embedded flash interface's access control register
// (FLASH_ACR), which sets how many wait states the core inserts on flash reads.
package flash

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Jon-Bright/rccctl/hertz"
	"github.com/Jon-Bright/rccctl/reg"
)

const (
	FLASH_BASE = uintptr(0x52002000)
	FLASH_SIZE = 0x100

	ACR_OFFSET = uintptr(0x000)

	ACR_LATENCY_Pos      = 0
	ACR_LATENCY_Width    = 4
	ACR_WRHIGHFREQ_Pos   = 4
	ACR_WRHIGHFREQ_Width = 2
)

var ErrTaken = errors.New("flash interface already constrained")

// ACR proves ownership of FLASH_ACR. There is exactly one per flash block.
type ACR struct {
	r          reg.Register32
	latency    reg.Field
	wrHighFreq reg.Field
}

// Flash is the constrained flash interface.
type Flash struct {
	ACR *ACR
}

var (
	takenMu sync.Mutex
	taken   = map[reg.Bus]bool{}
)

// Constrain hands out the flash interface's tokens. It succeeds once per bus.
func Constrain(bus reg.Bus) (*Flash, error) {
	takenMu.Lock()
	defer takenMu.Unlock()
	if taken[bus] {
		return nil, ErrTaken
	}
	taken[bus] = true
	r := reg.At(bus, ACR_OFFSET)
	return &Flash{
		ACR: &ACR{
			r:          r,
			latency:    reg.Field{Name: "LATENCY", Reg: r, Pos: ACR_LATENCY_Pos, Width: ACR_LATENCY_Width},
			wrHighFreq: reg.Field{Name: "WRHIGHFREQ", Reg: r, Pos: ACR_WRHIGHFREQ_Pos, Width: ACR_WRHIGHFREQ_Width},
		},
	}, nil
}

// Current returns the wait states and programming delay currently in the register.
func (a *ACR) Current() Timing {
	return Timing{Latency: a.latency.Get(), WrHighFreq: a.wrHighFreq.Get()}
}

// Apply writes both fields of t with a single store.
func (a *ACR) Apply(t Timing) {
	mask := a.latency.Mask() | a.wrHighFreq.Mask()
	a.r.Set(a.r.Get()&^mask | a.latency.Bits(t.Latency) | a.wrHighFreq.Bits(t.WrHighFreq))
}

// Timing is one row of the wait state table. Below is exclusive.
type Timing struct {
	Below      hertz.Hertz
	Latency    uint32
	WrHighFreq uint32
}

func (t Timing) String() string {
	return fmt.Sprintf("LATENCY=%d WRHIGHFREQ=%d", t.Latency, t.WrHighFreq)
}

// Only VOS3, the voltage scale the part comes out of reset in, is covered. See
// RM0433 table 17.
var vos3 = []Timing{
	{45 * hertz.MHz, 0, 0},
	{90 * hertz.MHz, 1, 1},
	{135 * hertz.MHz, 2, 1},
	{180 * hertz.MHz, 3, 2},
	{225 * hertz.MHz, 4, 2},
}

// Table returns a copy of the wait state table.
func Table() []Timing {
	return append([]Timing(nil), vos3...)
}

// RangeError reports an AXI clock too fast for any wait state setting.
type RangeError struct {
	HCLK hertz.Hertz
	Max  hertz.Hertz
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("hclk %v has no flash timing (must be below %v)", e.HCLK, e.Max)
}

// TimingFor picks the first row whose bound is above hclk.
func TimingFor(hclk hertz.Hertz) (Timing, error) {
	for _, t := range vos3 {
		if hclk < t.Below {
			return t, nil
		}
	}
	return Timing{}, &RangeError{HCLK: hclk, Max: vos3[len(vos3)-1].Below}
}
