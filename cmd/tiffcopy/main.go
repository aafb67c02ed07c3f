// Command tiffcopy copies a TIFF/BigTIFF file, direct or transcoding, with
// progress reporting and an external codec helper escape hatch for
// compression codes the in-process registry does not bind. Grounded on the
// teacher's cmd/mcog (worker pool, scratch-file staging, switches string
// splitting for an external tool invocation) and cmd/tiler's cobra/verbose
// flag shape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alessio/shellescape"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/geocore/tiffengine"
	"github.com/geocore/tiffengine/internal/codec"
	"github.com/geocore/tiffengine/internal/telemetry"
)

var (
	verbose      bool
	directCopy   bool
	bigTiffOut   bool
	littleEndian bool
	maxCache     string
	codecExec    string
	explain      bool
	parallelism  int
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
		Use:           "tiffcopy <src> <dst>",
		Short:         "copy a TIFF/BigTIFF file, direct or transcoding",
		Args:          cobra.ExactArgs(2),
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
			return runCopy(cmd.Context(), args[0], args[1])
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "human-readable console logging")
	cmd.Flags().BoolVar(&directCopy, "direct", true, "direct byte-passthrough copy when source/destination framing agree")
	cmd.Flags().BoolVar(&bigTiffOut, "bigtiff", false, "emit BigTIFF (64-bit offsets)")
	cmd.Flags().BoolVar(&littleEndian, "little-endian", true, "emit little-endian byte order")
	cmd.Flags().StringVar(&maxCache, "max-cache", "256Mi", "tile decode cache byte budget (k8s quantity syntax)")
	cmd.Flags().StringVar(&codecExec, "codec-exec", "", "external codec helper command line for unbound compression codes, e.g. \"myj2k-decode --tile -\"")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the codec-exec invocation instead of running it")
	cmd.Flags().IntVar(&parallelism, "parallelism", 4, "transcoding worker pool size")
	return cmd
}

func runCopy(ctx context.Context, srcPath, dstPath string) error {
	logger := telemetry.Sugar(ctx)

	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcPath, err)
	}

	registry := codec.NewRegistry()
	if codecExec != "" {
		if err := registerExternalCodec(registry, codecExec); err != nil {
			return err
		}
	}

	engine, err := tiffengine.OpenFileEngine(f, stat.Size(), registry)
	if err != nil {
		return fmt.Errorf("open file engine: %w", err)
	}

	cfg, err := tiffengine.NewConfig(
		tiffengine.WithMaxCachingMemory(maxCache),
		tiffengine.WithDirectCopy(directCopy),
		tiffengine.WithBigTIFF(bigTiffOut),
		tiffengine.WithLittleEndian(littleEndian),
	)
	if err != nil {
		return fmt.Errorf("configure engine: %w", err)
	}

	cache := tiffengine.NewTileCache(engine, cfg.MaxCachingMemory())
	copier := tiffengine.NewCopier(engine, cache, registry)
	copier.DirectCopy = cfg.DirectCopy()
	copier.Parallelism = parallelism
	copier.Progress = func(imageIndex, tilesDone, tilesTotal int) {
		if tilesDone < 0 {
			logger.Infof("image %d complete", imageIndex)
			return
		}
		logger.Debugf("image %d: tile %d/%d", imageIndex, tilesDone, tilesTotal)
	}

	return copier.CopyAll(ctx, dstPath, cfg.BigTIFF(), cfg.LittleEndian())
}

// registerExternalCodec wires codecExec as the decode/encode path for every
// compression code currently marked NeedsExternalContext in registry (the
// gated JPEG2000 variants), splitting the command line the same way the
// teacher's cmd/mcog splits gdal_translate switches with go-shellwords, and
// using shellescape to render the equivalent shell invocation when --explain
// is set instead of actually running the helper.
func registerExternalCodec(registry *codec.Registry, cmdline string) error {
	args, err := shellwords.Parse(cmdline)
	if err != nil {
		return fmt.Errorf("parse codec-exec command line: %w", err)
	}
	if len(args) == 0 {
		return fmt.Errorf("codec-exec command line is empty")
	}

	ext := externalProcessCodec{argv: args}
	for _, code := range []uint16{33003, 33004, 33005} {
		registry.Register(code, codec.Entry{Codec: ext})
	}
	return nil
}

// externalProcessCodec shells out to a user-configured helper process for
// one tile's worth of bytes on stdin/stdout, the same command-line-driven
// escape hatch the teacher's cmd/mcog uses to invoke gdal_translate.
type externalProcessCodec struct {
	argv []string
}

func (c externalProcessCodec) Decode(encoded []byte, opts codec.Options) ([]byte, error) {
	return c.run(encoded)
}

func (c externalProcessCodec) Encode(raw []byte, opts codec.Options) ([]byte, error) {
	return c.run(raw)
}

func (c externalProcessCodec) run(input []byte) ([]byte, error) {
	if explain {
		quoted := make([]string, len(c.argv))
		for i, a := range c.argv {
			quoted[i] = shellescape.Quote(a)
		}
		fmt.Println(strings.Join(quoted, " "))
		return input, nil
	}
	cmd := exec.Command(c.argv[0], c.argv[1:]...)
	cmd.Stdin = strings.NewReader(string(input))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("codec-exec %s: %w", c.argv[0], err)
	}
	return out, nil
}
