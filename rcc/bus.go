package rcc

import (
	"sync"

	"github.com/Jon-Bright/rccctl/reg"
)

// group is an enable/reset register pair belonging to one bus.
type group struct {
	enr  reg.Register32
	rstr reg.Register32
}

// ENR returns the group's peripheral clock enable register.
func (g *group) ENR() reg.Register32 { return g.enr }

// RSTR returns the group's peripheral reset register.
func (g *group) RSTR() reg.Register32 { return g.rstr }

// Enable turns on the clocks of the peripherals in mask. The read back makes sure
// the clock is running before the caller touches the peripheral.
func (g *group) Enable(mask uint32) {
	g.enr.SetBits(mask)
	g.enr.Get()
}

func (g *group) Disable(mask uint32) {
	g.enr.ClearBits(mask)
}

// Reset pulses the reset lines of the peripherals in mask.
func (g *group) Reset(mask uint32) {
	g.rstr.SetBits(mask)
	g.rstr.ClearBits(mask)
}

// One type per register group, so a driver's constructor can say which group it
// needs and get it only from Rcc.
type (
	AHB1  struct{ group }
	AHB2  struct{ group }
	AHB3  struct{ group }
	AHB4  struct{ group }
	APB1L struct{ group }
	APB1H struct{ group }
	APB2  struct{ group }
	APB3  struct{ group }
	APB4  struct{ group }
)

// Rcc is the constrained RCC peripheral. Each field is handed out once; drivers take
// the group they need and the clock configuration is done through CFGR.
type Rcc struct {
	AHB1  *AHB1
	AHB2  *AHB2
	AHB3  *AHB3
	AHB4  *AHB4
	APB1L *APB1L
	APB1H *APB1H
	APB2  *APB2
	APB3  *APB3
	APB4  *APB4
	CFGR  *CFGR
}

var (
	takenMu sync.Mutex
	taken   = map[reg.Bus]bool{}
)

func pair(bus reg.Bus, enr, rstr uintptr) group {
	return group{reg.At(bus, enr), reg.At(bus, rstr)}
}

// Constrain takes ownership of the RCC block on bus. It succeeds once per bus;
// later calls return ErrTaken.
func Constrain(bus reg.Bus) (*Rcc, error) {
	takenMu.Lock()
	defer takenMu.Unlock()
	if taken[bus] {
		return nil, ErrTaken
	}
	taken[bus] = true
	return &Rcc{
		AHB1:  &AHB1{pair(bus, AHB1ENR_OFFSET, AHB1RSTR_OFFSET)},
		AHB2:  &AHB2{pair(bus, AHB2ENR_OFFSET, AHB2RSTR_OFFSET)},
		AHB3:  &AHB3{pair(bus, AHB3ENR_OFFSET, AHB3RSTR_OFFSET)},
		AHB4:  &AHB4{pair(bus, AHB4ENR_OFFSET, AHB4RSTR_OFFSET)},
		APB1L: &APB1L{pair(bus, APB1LENR_OFFSET, APB1LRSTR_OFFSET)},
		APB1H: &APB1H{pair(bus, APB1HENR_OFFSET, APB1HRSTR_OFFSET)},
		APB2:  &APB2{pair(bus, APB2ENR_OFFSET, APB2RSTR_OFFSET)},
		APB3:  &APB3{pair(bus, APB3ENR_OFFSET, APB3RSTR_OFFSET)},
		APB4:  &APB4{pair(bus, APB4ENR_OFFSET, APB4RSTR_OFFSET)},
		CFGR:  newCFGR(newRegs(bus)),
	}, nil
}
