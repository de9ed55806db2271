package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/zboralski/offscan/internal/config"
	glog "github.com/zboralski/offscan/internal/log"
	_ "github.com/zboralski/offscan/internal/targets/all"
	"github.com/zboralski/offscan/internal/ui/colorize"
)

var (
	verbose    bool
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "offscan",
		Short: "Resolve function offsets in ARM64 binaries",
		Long: `Offscan finds the addresses of known functions in stripped or partially
stripped ARM64 ELF and Mach-O binaries.

Each target is tried with a chain of strategies in trust order:
  symbol     exported or debug symbol          0.99
  pattern    byte signature with wildcards     0.85
  xref       code referencing a known string   0.80
  heuristic  function shape within a window    0.70

Low-trust results must be corroborated by a call edge to or from a
high-trust result, or they are dropped.

Structure member offsets are voted from the load and store immediates
at pattern matches; named constants are confirmed by their literals.

Examples:
  offscan scan libroblox.so                  # write offsets.json
  offscan scan libroblox.so -c lua_api -q    # Lua C API only, summary only
  offscan dump libroblox.so lua_gettop       # disassemble a resolved symbol
  offscan diff old.json new.json             # compare two runs
  offscan validate offsets.json libroblox.so # check offsets against a build
  offscan stats offsets.json                 # count entries by section and method`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			glog.Init(verbose)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFile, "config file")

	rootCmd.AddCommand(
		newScanCmd(),
		newDumpCmd(),
		newInfoCmd(),
		newDiffCmd(),
		newValidateCmd(),
		newTargetsCmd(),
		newStatsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, colorize.Error("error: "+err.Error()))
		os.Exit(1)
	}
}
