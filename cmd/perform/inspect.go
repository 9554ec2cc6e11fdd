package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/interp"
	"github.com/wippyai/dsp-runtime/program"
)

var inspectFlags struct {
	disasm bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <program.yaml>",
	Short: "Show a program's endpoints and diagnostics",
	Long: `Load and link a program and print its endpoints and every diagnostic.

With --disasm the lowered schedule is printed as interpreter bytecode at the
selected optimisation level.

Examples:
  perform inspect tremolo.yaml
  perform inspect tremolo.yaml --disasm -O full`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&inspectFlags.disasm, "disasm", false, "print the lowered schedule")
}

func runInspect(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	p := newPainter(out)

	prog, err := program.DecodeFile(args[0])
	if err != nil {
		return err
	}
	opts, err := linkOptions()
	if err != nil {
		return err
	}
	factory, release, err := newFactory(cmd.Context(), rootFlags.backend)
	if err != nil {
		return err
	}
	defer release()

	perf := factory.CreatePerformer()
	defer perf.Unload()

	fmt.Fprintf(out, "%s %s\n\n", p.paint(titleStyle, prog.Name()), p.paint(helpStyle, "id "+prog.ID()))

	var msgs diag.List
	linkErr := prepare(perf, &msgs, prog, opts, nil, nil)
	if perf.IsLoaded() {
		rows := append(endpointRows(perf.InputEndpoints()), endpointRows(perf.OutputEndpoints())...)
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("endpoint", "direction", "kind", "type", "default").
			Rows(rows...)
		if p {
			t = t.StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return lipgloss.NewStyle().Bold(true).Padding(0, 1)
				case col == 0:
					return nameStyle.Padding(0, 1)
				case col == 3:
					return typeStyle.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		}
		fmt.Fprintln(out, t.Render())
	}

	printMessages(out, &msgs)
	if linkErr != nil {
		return linkErr
	}
	fmt.Fprintf(out, "linked on %s, opt %s, block %d frames\n", factory.Backend(), opts.OptLevel, opts.BlockSize())

	if inspectFlags.disasm {
		listing, err := interp.Listing(prog, opts.OptLevel)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, listing)
	}
	return nil
}

func endpointRows(eps []endpoint.Endpoint) [][]string {
	rows := make([][]string, 0, len(eps))
	for _, ep := range eps {
		def := ""
		if ep.Kind != endpoint.Stream {
			def = strconv.FormatFloat(float64(ep.Default), 'g', -1, 32)
		}
		rows = append(rows, []string{ep.Name, ep.Direction.String(), ep.Kind.String(), ep.Type.String(), def})
	}
	return rows
}
