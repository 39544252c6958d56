// Command rccctl works out an STM32H7 clock tree and commits it, either to a
// simulated board to see what would be written or to the real registers through
// /dev/mem.
package main

import (
	goflag "flag"
	"fmt"
	"io"
	"os"

	"github.com/Jon-Bright/rccctl/flash"
	"github.com/Jon-Bright/rccctl/rcc"
	"github.com/Jon-Bright/rccctl/reg"
	"github.com/Jon-Bright/rccctl/sim"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	goflag.CommandLine.Parse([]string{}) // glog insists on flag.Parsed
	defer glog.Flush()

	if err := rootCmd().Execute(); err != nil {
		glog.Flush()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rccctl",
		Short: "Configure the STM32H7 system clocks",
		Long: `rccctl turns requested bus frequencies into RCC and flash register settings
and commits them in the order the hardware needs.

Frequencies are written as 64MHz, 8000kHz or 120000000 (Hz).`,
		SilenceUsage: true,
	}
	root.AddCommand(planCmd())
	root.AddCommand(applyCmd())
	return root
}

func planCmd() *cobra.Command {
	var rf requestFlags
	var ready, sw int
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Commit a clock configuration to a simulated board and show the writes",
		Long: `Commit a clock configuration to a simulated board and show the writes.

Examples:
  # The reset configuration
  rccctl plan

  # 240MHz from explicit PLL1 dividers, peripheral buses at 60MHz
  rccctl plan --pll 8,60,2 --pclk1 60MHz --pclk2 60MHz

  # Search for dividers from a file
  rccctl plan --config clocks.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := rf.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			b := sim.NewBoard()
			b.PLLReadyAfter = ready
			b.SwitchAfter = sw
			clk, err := commit(req, b.RCC, b.Flash)
			if err != nil {
				return err
			}
			printClocks(cmd.OutOrStdout(), clk)
			fmt.Fprintln(cmd.OutOrStdout(), "Writes:")
			for _, w := range b.Writes() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %v\n", w)
			}
			return nil
		},
	}
	rf.register(cmd.Flags())
	cmd.Flags().IntVar(&ready, "pll-ready-after", 0, "Reads of CR before the simulated PLL1 reports ready")
	cmd.Flags().IntVar(&sw, "switch-after", 0, "Reads of CFGR before the simulated switch status follows")
	return cmd
}

func applyCmd() *cobra.Command {
	var rf requestFlags
	var mem string
	var rccBase, flashBase uint64
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Commit a clock configuration to the hardware",
		Long: `Commit a clock configuration to the hardware, mapping the RCC and flash
interface registers from a memory device. This needs to run with access to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := rf.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			rm, err := reg.MapPhys(mem, uintptr(rccBase), rcc.RCC_SIZE)
			if err != nil {
				return fmt.Errorf("couldn't map RCC: %w", err)
			}
			defer rm.Close()
			fm, err := reg.MapPhys(mem, uintptr(flashBase), flash.FLASH_SIZE)
			if err != nil {
				return fmt.Errorf("couldn't map flash interface: %w", err)
			}
			defer fm.Close()
			clk, err := commit(req, rm, fm)
			if err != nil {
				return err
			}
			printClocks(cmd.OutOrStdout(), clk)
			return nil
		},
	}
	rf.register(cmd.Flags())
	cmd.Flags().StringVar(&mem, "mem", reg.MEM_FILE, "Device exposing physical memory")
	cmd.Flags().Uint64Var(&rccBase, "rcc-base", uint64(rcc.RCC_BASE), "Physical address of the RCC")
	cmd.Flags().Uint64Var(&flashBase, "flash-base", uint64(flash.FLASH_BASE), "Physical address of the flash interface")
	return cmd
}

// commit constrains both blocks and freezes req into them.
func commit(req *Request, rccBus, flashBus reg.Bus) (rcc.Clocks, error) {
	r, err := rcc.Constrain(rccBus)
	if err != nil {
		return rcc.Clocks{}, fmt.Errorf("couldn't constrain RCC: %w", err)
	}
	f, err := flash.Constrain(flashBus)
	if err != nil {
		return rcc.Clocks{}, fmt.Errorf("couldn't constrain flash: %w", err)
	}
	clk, err := req.configure(r.CFGR).Freeze(f.ACR)
	if err != nil {
		return rcc.Clocks{}, fmt.Errorf("couldn't freeze clocks: %w", err)
	}
	return clk, nil
}

func printClocks(w io.Writer, c rcc.Clocks) {
	src := "HSI"
	if d, ok := c.PLL(); ok {
		src = "PLL1 " + d.String()
	}
	fmt.Fprintf(w, "sys_ck  %-10v %s\n", c.SysClk(), src)
	fmt.Fprintf(w, "hclk    %-10v /%d\n", c.HCLK1(), c.HPRE())
	fmt.Fprintf(w, "pclk1   %-10v /%d\n", c.PCLK1(), c.D1PPRE())
	fmt.Fprintf(w, "pclk2   %-10v /%d\n", c.PCLK2(), c.D2PPRE1())
	fmt.Fprintf(w, "pclk3   %-10v /%d\n", c.PCLK3(), c.D2PPRE2())
	fmt.Fprintf(w, "pclk4   %-10v /%d\n", c.PCLK4(), c.D3PPRE())
	fmt.Fprintf(w, "flash   %v\n", c.Flash())
}
