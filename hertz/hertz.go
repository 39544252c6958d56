// Package hertz holds the frequency units used by the clock code.
package hertz

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Hertz is a frequency in cycles per second.
type Hertz uint32

// KiloHertz is a frequency in thousands of cycles per second.
type KiloHertz uint32

// MegaHertz is a frequency in millions of cycles per second.
type MegaHertz uint32

const (
	Hz  Hertz = 1
	KHz       = 1000 * Hz
	MHz       = 1000 * KHz
)

// Freq is anything that can be turned into a Hertz value. All setters that take a
// frequency accept a Freq, so callers can write hertz.MegaHertz(100) or 100*hertz.MHz.
type Freq interface {
	Hz() Hertz
}

func (f Hertz) Hz() Hertz     { return f }
func (f KiloHertz) Hz() Hertz { return Hertz(f) * KHz }
func (f MegaHertz) Hz() Hertz { return Hertz(f) * MHz }

// String prints f in the largest unit that divides it exactly.
func (f Hertz) String() string {
	switch {
	case f != 0 && f%MHz == 0:
		return fmt.Sprintf("%dMHz", f/MHz)
	case f != 0 && f%KHz == 0:
		return fmt.Sprintf("%dkHz", f/KHz)
	}
	return fmt.Sprintf("%dHz", uint32(f))
}

func (f KiloHertz) String() string { return f.Hz().String() }
func (f MegaHertz) String() string { return f.Hz().String() }

var suffixes = []struct {
	s    string
	mult uint64
}{
	{"mhz", uint64(MHz)},
	{"khz", uint64(KHz)},
	{"hz", 1},
	{"m", uint64(MHz)},
	{"k", uint64(KHz)},
}

// Parse reads a frequency such as "64MHz", "8000kHz", "12.5MHz" or "120000000".
// A bare number is taken as Hz.
func Parse(s string) (Hertz, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	mult := uint64(1)
	for _, sf := range suffixes {
		if strings.HasSuffix(v, sf.s) {
			v = strings.TrimSpace(strings.TrimSuffix(v, sf.s))
			mult = sf.mult
			break
		}
	}
	if v == "" {
		return 0, fmt.Errorf("couldn't parse frequency %q: no value", s)
	}
	var hz uint64
	if i := strings.IndexByte(v, '.'); i >= 0 {
		whole, err := strconv.ParseUint(v[:i], 10, 64)
		if err != nil && v[:i] != "" {
			return 0, fmt.Errorf("couldn't parse frequency %q: %w", s, err)
		}
		frac := v[i+1:]
		if frac == "" || strings.Trim(frac, "0123456789") != "" {
			return 0, fmt.Errorf("couldn't parse frequency %q: bad fraction", s)
		}
		// The largest unit is 10^6 Hz, so more than six significant decimals can't
		// come out as whole Hz.
		frac = strings.TrimRight(frac, "0")
		if len(frac) > 6 {
			return 0, fmt.Errorf("couldn't parse frequency %q: not a whole number of Hz", s)
		}
		var fv uint64
		scale := uint64(1)
		for _, c := range frac {
			fv = fv*10 + uint64(c-'0')
			scale *= 10
		}
		if (fv*mult)%scale != 0 {
			return 0, fmt.Errorf("couldn't parse frequency %q: not a whole number of Hz", s)
		}
		if whole > math.MaxUint32/mult {
			return 0, fmt.Errorf("frequency %q doesn't fit in 32 bits", s)
		}
		hz = whole*mult + fv*mult/scale
	} else {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("couldn't parse frequency %q: %w", s, err)
		}
		if n > math.MaxUint32/mult {
			return 0, fmt.Errorf("frequency %q doesn't fit in 32 bits", s)
		}
		hz = n * mult
	}
	if hz > math.MaxUint32 {
		return 0, fmt.Errorf("frequency %q doesn't fit in 32 bits", s)
	}
	return Hertz(hz), nil
}

// UnmarshalText lets Hertz fields be decoded from config files.
func (f *Hertz) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (f Hertz) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
