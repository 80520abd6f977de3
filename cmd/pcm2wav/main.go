// ABOUTME: Command-line tool for raw PCM clips
// ABOUTME: Wraps payloads in WAV containers, inspects containers and base64-encodes payloads
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/transcode"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/wav"
)

const usage = `usage: pcm2wav <command> [flags]

commands:
  synthesize  wrap a raw PCM file in a WAV container
  inspect     print the format and duration of a WAV file
  base64      encode a raw PCM file as base64 text
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "synthesize":
		err = synthesize(os.Args[2:], os.Stdout)
	case "inspect":
		err = inspect(os.Args[2:], os.Stdout)
	case "base64":
		err = encodeBase64(os.Args[2:], os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pcm2wav: %v\n", err)
		os.Exit(1)
	}
}

// synthesize reads -in and writes the container to -out (stdout when empty)
func synthesize(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("synthesize", flag.ContinueOnError)
	in := fs.String("in", "", "raw PCM input file")
	out := fs.String("out", "", "WAV output file (default: stdout)")
	rate := fs.Int("rate", audio.DefaultFormat.SampleRate, "sample rate")
	channels := fs.Int("channels", audio.DefaultFormat.Channels, "channel count")
	bits := fs.Int("bits", audio.DefaultFormat.BitDepth, "bits per sample (8, 16, 24 or 32)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}

	payload, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	format := audio.Format{SampleRate: *rate, Channels: *channels, BitDepth: *bits}

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := wav.WriteTo(w, format, payload); err != nil {
		return err
	}
	if *out != "" {
		fmt.Fprintf(stdout, "wrote %s: %s, %d bytes of audio\n", *out, format, len(payload))
	}
	return nil
}

// inspect parses each named container and prints its format
func inspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("inspect needs at least one file")
	}

	for _, name := range fs.Args() {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		format, payload, err := wav.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		frames := format.Frames(len(payload))
		fmt.Fprintf(stdout, "%s: %s, %d frames, %v\n", name, format, frames, format.Duration(frames))
	}
	return nil
}

// encodeBase64 streams -in as base64 text
func encodeBase64(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("base64", flag.ContinueOnError)
	in := fs.String("in", "", "raw PCM input file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	if _, err := transcode.EncodeStream(stdout, f); err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout)
	return err
}
