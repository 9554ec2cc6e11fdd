package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/endpoint"
	"github.com/wippyai/dsp-runtime/program"
)

var renderFlags struct {
	in       string
	out      string
	frames   uint32
	rate     int
	bits     int
	settings []string
}

var renderCmd = &cobra.Command{
	Use:   "render <program.yaml>",
	Short: "Process a WAV file offline",
	Long: `Run a program over a WAV file and write its stream outputs to another.

Stream inputs take the input file's channels in order, wrapping around when
the program has more inputs than the file has channels. Without --in the
program renders --frames frames of silence. Stream outputs become the
channels of the output file.

Examples:
  perform render gain.yaml --in voice.wav --out quiet.wav --set level=0.25
  perform render echo.yaml --out tail.wav --frames 96000 --rate 48000`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderFlags.in, "in", "i", "", "input wav file")
	renderCmd.Flags().StringVarP(&renderFlags.out, "out", "o", "", "output wav file")
	renderCmd.Flags().Uint32VarP(&renderFlags.frames, "frames", "n", 0, "frames to render (default: input length, or one second)")
	renderCmd.Flags().IntVar(&renderFlags.rate, "rate", 48000, "sample rate when there is no input file")
	renderCmd.Flags().IntVar(&renderFlags.bits, "bits", 16, "output bit depth: 16, 24, 32")
	renderCmd.Flags().StringArrayVar(&renderFlags.settings, "set", nil, "value input as name=value (repeatable)")
	_ = renderCmd.MarkFlagRequired("out")
}

func runRender(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	prog, err := program.DecodeFile(args[0])
	if err != nil {
		return err
	}
	settings, err := parseSettings(renderFlags.settings)
	if err != nil {
		return err
	}
	opts, err := linkOptions()
	if err != nil {
		return err
	}

	var input [][]float32
	rate := renderFlags.rate
	frames := renderFlags.frames
	if renderFlags.in != "" {
		input, rate, err = readWAV(renderFlags.in)
		if err != nil {
			return err
		}
		if frames == 0 {
			frames = uint32(len(input[0]))
		}
	}
	if frames == 0 {
		frames = uint32(rate)
	}

	factory, release, err := newFactory(cmd.Context(), rootFlags.backend)
	if err != nil {
		return err
	}
	defer release()
	perf := factory.CreatePerformer()
	defer perf.Unload()

	var outputs [][]float32
	bind := func(tbl *endpoint.Table, inputs, outs []endpoint.Endpoint) error {
		if err := bindSettings(tbl, inputs, settings); err != nil {
			return err
		}
		ch := 0
		for _, ep := range inputs {
			if ep.Kind != endpoint.Stream || len(input) == 0 {
				continue
			}
			if err := tbl.BindStreamSource(ep.Name, channelSource(input[ch%len(input)])); err != nil {
				return err
			}
			ch++
		}
		for _, ep := range outs {
			if ep.Kind != endpoint.Stream {
				continue
			}
			outputs = append(outputs, make([]float32, 0, frames))
			idx := len(outputs) - 1
			if err := tbl.BindStreamSink(ep.Name, func(src []float32) int {
				outputs[idx] = append(outputs[idx], src...)
				return len(src)
			}); err != nil {
				return err
			}
		}
		return nil
	}

	var msgs diag.List
	err = prepare(perf, &msgs, prog, opts, nil, bind)
	printMessages(cmd.ErrOrStderr(), &msgs)
	if err != nil {
		return err
	}

	start := time.Now()
	perf.Advance(frames)
	elapsed := time.Since(start)

	if err := writeWAV(renderFlags.out, outputs, rate, renderFlags.bits); err != nil {
		return err
	}
	audio := time.Duration(float64(frames) / float64(rate) * float64(time.Second))
	fmt.Fprintf(out, "rendered %d frames (%s of audio) in %s to %s, xruns %d\n",
		frames, audio.Round(time.Millisecond), elapsed.Round(time.Microsecond), renderFlags.out, perf.XRuns())
	return nil
}

// channelSource plays data once, then underruns.
func channelSource(data []float32) endpoint.StreamSource {
	return func(dst []float32) int {
		n := copy(dst, data)
		data = data[n:]
		return n
	}
}
