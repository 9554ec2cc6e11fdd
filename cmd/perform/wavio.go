package main

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")

func supportedBitDepth(bits int) bool {
	return bits == 16 || bits == 24 || bits == 32
}

// readWAV decodes a PCM file into one normalised slice per channel.
func readWAV(path string) ([][]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a valid wav file", path)
	}
	bits := int(decoder.BitDepth)
	if !supportedBitDepth(bits) {
		return nil, 0, fmt.Errorf("%s: %w", path, errUnsupportedBitDepth)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, fmt.Errorf("%s: no channels", path)
	}
	frames := len(buf.Data) / channels
	scale := float32(int64(1) << (bits - 1))
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i, s := range buf.Data[:frames*channels] {
		out[i%channels][i/channels] = float32(s) / scale
	}
	return out, buf.Format.SampleRate, nil
}

// writeWAV encodes channels as interleaved PCM. Samples are clipped to [-1, 1].
func writeWAV(path string, channels [][]float32, rate, bits int) error {
	if len(channels) == 0 {
		return errors.New("nothing to write: no stream outputs")
	}
	if !supportedBitDepth(bits) {
		return errUnsupportedBitDepth
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	n := len(channels)
	frames := len(channels[0])
	full := float64(int64(1)<<(bits-1) - 1)
	data := make([]int, frames*n)
	for c, ch := range channels {
		for f, v := range ch[:frames] {
			data[f*n+c] = int(math.Round(math.Max(-1, math.Min(1, float64(v))) * full))
		}
	}

	encoder := wav.NewEncoder(file, rate, bits, n, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: n,
			SampleRate:  rate,
		},
		Data:           data,
		SourceBitDepth: bits,
	}
	if err := encoder.Write(buf); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return file.Close()
}
