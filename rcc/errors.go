package rcc

import (
	"errors"
	"fmt"
)

var (
	ErrTaken      = errors.New("RCC already constrained")
	ErrFrozen     = errors.New("clock configuration already frozen")
	ErrPLLRunning = errors.New("PLL1 is already running")
)

// RangeError is returned when a requested divider or frequency lies outside the band
// the hardware allows. It's always reported before any register is written.
type RangeError struct {
	What  string
	Value uint32
	Min   uint32 // inclusive
	Max   uint32 // inclusive
	Note  string
}

func (e *RangeError) Error() string {
	s := fmt.Sprintf("%s %d out of range [%d, %d]", e.What, e.Value, e.Min, e.Max)
	if e.Note != "" {
		s += ": " + e.Note
	}
	return s
}

func rangeErr(what string, val, min, max uint32, note string) error {
	return &RangeError{What: what, Value: val, Min: min, Max: max, Note: note}
}
