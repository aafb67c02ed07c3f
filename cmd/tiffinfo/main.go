// Command tiffinfo dumps a TIFF/BigTIFF file's IFD chain, validates its
// structural invariants, and classifies each image by document convention
// (base/label/macro/ordinary). Grounded on the teacher's cmd/tiler
// cobra/verbose-flag shape, trimmed down to the single read-only inspection
// command this repo's scope calls for.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/geocore/tiffengine"
	"github.com/geocore/tiffengine/internal/codec"
	"github.com/geocore/tiffengine/internal/telemetry"
)

var (
	verbose         bool
	requireValidTif bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tiffinfo <file>",
		Short:         "inspect a TIFF/BigTIFF file's IFD chain",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				telemetry.Development()
			} else {
				telemetry.Structured()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), args[0])
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "human-readable console logging")
	cmd.Flags().BoolVar(&requireValidTif, "strict", true, "fail on structural validation errors")
	return cmd
}

func runInfo(ctx context.Context, path string) error {
	logger := telemetry.Sugar(ctx)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	engine, err := tiffengine.OpenFileEngine(f, stat.Size(), codec.NewRegistry())
	if err != nil {
		return fmt.Errorf("open file engine: %w", err)
	}

	if err := engine.Validate(requireValidTif); err != nil {
		logger.Warnf("validation: %v", err)
		if requireValidTif {
			return err
		}
	}

	kinds := tiffengine.ClassifyChain(engine)
	fmt.Printf("file: %s\n", path)
	fmt.Printf("byte order: %v  bigtiff: %v\n", engine.ByteOrder(), engine.BigTIFF())
	fmt.Printf("images: %d\n", len(engine.Images()))
	for i, ifd := range engine.Images() {
		w, _ := ifd.ImageWidth()
		h, _ := ifd.ImageHeight()
		spp := ifd.SamplesPerPixel()
		bps := ifd.BitsPerSample()
		compression := ifd.CompressionCode()
		layout := "strip"
		if ifd.IsTiled() {
			layout = "tile"
		}
		fmt.Printf("  [%d] kind=%-9s %dx%d spp=%d bps=%v compression=%d layout=%s\n",
			i, kinds[i], w, h, spp, bps, compression, layout)
	}
	return nil
}
