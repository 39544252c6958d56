package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Jon-Bright/rccctl/hertz"
	"github.com/Jon-Bright/rccctl/rcc"
	"github.com/golang/glog"
	"github.com/spf13/pflag"
)

// Request is a clock configuration as read from a TOML file, for example:
//
//	sysclk = "240MHz"
//	hclk1  = "120MHz"
//	pclk2  = "60MHz"
//
//	[pll]
//	m = 8
//	n = 60
//	p = 2
//
// Unset frequencies are zero and leave the choice to the configuration.
type Request struct {
	SysClk hertz.Hertz `toml:"sysclk"`
	HCLK1  hertz.Hertz `toml:"hclk1"`
	HCLK2  hertz.Hertz `toml:"hclk2"`
	HCLK3  hertz.Hertz `toml:"hclk3"`
	HCLK4  hertz.Hertz `toml:"hclk4"`
	PCLK1  hertz.Hertz `toml:"pclk1"`
	PCLK2  hertz.Hertz `toml:"pclk2"`
	PCLK3  hertz.Hertz `toml:"pclk3"`
	PCLK4  hertz.Hertz `toml:"pclk4"`

	// PLL gives the dividers explicitly. Fields left at zero take their reset values.
	PLL *rcc.PLLDividers `toml:"pll"`
}

func loadRequest(path string) (*Request, error) {
	var req Request
	md, err := toml.DecodeFile(path, &req)
	if err != nil {
		return nil, fmt.Errorf("couldn't read request %s: %w", path, err)
	}
	if und := md.Undecoded(); len(und) > 0 {
		keys := make([]string, len(und))
		for i, k := range und {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in request %s: %s", path, strings.Join(keys, ", "))
	}
	return &req, nil
}

// freqValue is a pflag.Value for a frequency flag.
type freqValue struct {
	f *hertz.Hertz
}

func (v freqValue) String() string {
	if v.f == nil || *v.f == 0 {
		return ""
	}
	return v.f.String()
}

func (v freqValue) Set(s string) error {
	f, err := hertz.Parse(s)
	if err != nil {
		return err
	}
	*v.f = f
	return nil
}

func (freqValue) Type() string { return "freq" }

// requestFlags holds the command line's share of a Request. Only flags that were
// actually given override the file.
type requestFlags struct {
	config string
	req    Request
	pll    []uint
}

func (rf *requestFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&rf.config, "config", "", "TOML file with the requested clocks")
	fs.Var(freqValue{&rf.req.SysClk}, "sysclk", "System clock, e.g. 200MHz; PLL1 dividers are searched for")
	fs.UintSliceVar(&rf.pll, "pll", nil, "PLL1 dividers M,N,P (0 keeps the reset value)")
	fs.Var(freqValue{&rf.req.HCLK1}, "hclk", "Core bus clock (HCLK1-4 share one prescaler)")
	fs.Var(freqValue{&rf.req.PCLK1}, "pclk1", "APB3 clock (D1PPRE)")
	fs.Var(freqValue{&rf.req.PCLK2}, "pclk2", "APB1 clock (D2PPRE1)")
	fs.Var(freqValue{&rf.req.PCLK3}, "pclk3", "APB2 clock (D2PPRE2)")
	fs.Var(freqValue{&rf.req.PCLK4}, "pclk4", "APB4 clock (D3PPRE)")
}

// resolve reads the config file, if any, and lays the flags that were set over it.
func (rf *requestFlags) resolve(fs *pflag.FlagSet) (*Request, error) {
	req := &Request{}
	if rf.config != "" {
		var err error
		req, err = loadRequest(rf.config)
		if err != nil {
			return nil, err
		}
	}
	overrides := []struct {
		flag string
		dst  *hertz.Hertz
		src  hertz.Hertz
	}{
		{"sysclk", &req.SysClk, rf.req.SysClk},
		{"hclk", &req.HCLK1, rf.req.HCLK1},
		{"pclk1", &req.PCLK1, rf.req.PCLK1},
		{"pclk2", &req.PCLK2, rf.req.PCLK2},
		{"pclk3", &req.PCLK3, rf.req.PCLK3},
		{"pclk4", &req.PCLK4, rf.req.PCLK4},
	}
	for _, o := range overrides {
		if fs.Changed(o.flag) {
			*o.dst = o.src
		}
	}
	if fs.Changed("sysclk") {
		// An explicit system clock on the command line beats dividers from the file.
		req.PLL = nil
	}
	if fs.Changed("pll") {
		if len(rf.pll) != 3 {
			return nil, fmt.Errorf("--pll takes three values M,N,P, got %d", len(rf.pll))
		}
		var d [3]uint32
		for i, v := range rf.pll {
			if v > math.MaxUint32 {
				return nil, fmt.Errorf("--pll value %d doesn't fit in 32 bits", v)
			}
			d[i] = uint32(v)
		}
		req.PLL = &rcc.PLLDividers{M: d[0], N: d[1], P: d[2]}
	}
	return req, nil
}

// configure feeds the request into c. Explicit PLL dividers win over a system clock.
func (r *Request) configure(c *rcc.CFGR) *rcc.CFGR {
	if r.SysClk != 0 {
		c.SysClk(r.SysClk)
	}
	if r.PLL != nil {
		if r.SysClk != 0 {
			glog.Warningf("sysclk %v ignored in favour of PLL1 %v", r.SysClk, *r.PLL)
		}
		c.WithPLL(*r.PLL)
	}
	for _, s := range []struct {
		f   hertz.Hertz
		set func(hertz.Freq) *rcc.CFGR
	}{
		{r.HCLK1, c.HCLK1},
		{r.HCLK2, c.HCLK2},
		{r.HCLK3, c.HCLK3},
		{r.HCLK4, c.HCLK4},
		{r.PCLK1, c.PCLK1},
		{r.PCLK2, c.PCLK2},
		{r.PCLK3, c.PCLK3},
		{r.PCLK4, c.PCLK4},
	} {
		if s.f != 0 {
			s.set(s.f)
		}
	}
	return c
}
