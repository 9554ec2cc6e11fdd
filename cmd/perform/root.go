package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dspruntime "github.com/wippyai/dsp-runtime"
)

var rootFlags struct {
	verbose   bool
	backend   string
	opt       string
	blockSize uint32
	maxState  uint32
}

var rootCmd = &cobra.Command{
	Use:   "perform",
	Short: "Load, link and run DSP programs",
	Long: `perform drives the DSP performer runtime from the command line.

Programs are YAML documents describing endpoints and a node graph. Every
subcommand loads the program, reports its diagnostics and links it on the
selected backend:
  - interp      bytecode interpreter, fastest to link
  - jit         WebAssembly compiled to native code by wazero
  - jit-interp  the same modules run by the wazero interpreter`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !rootFlags.verbose {
			return nil
		}
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		dspruntime.SetLogger(logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "log performer activity to stderr")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.backend, "backend", "b", "interp", "backend: interp, jit, jit-interp")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.opt, "opt", "O", "default", "optimisation level: none, default, full")
	rootCmd.PersistentFlags().Uint32Var(&rootFlags.blockSize, "block-size", 0, "hard cap on frames per render block, 0 for none")
	rootCmd.PersistentFlags().Uint32Var(&rootFlags.maxState, "max-state", 0, "state size limit in bytes, 0 for none")
}
