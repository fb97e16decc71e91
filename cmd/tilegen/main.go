// Command tilegen tiles a GeoJSON shape offline and writes the tiles as a
// FeatureCollection.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/render"
	"github.com/mohammed-shakir/aoi-tiling/internal/shapeio"
	"github.com/mohammed-shakir/aoi-tiling/internal/tiling"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tilegen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	def := tiling.DefaultPolicy()
	in := fs.String("in", "-", "input GeoJSON file (- for stdin)")
	out := fs.String("out", "-", "output file (- for stdout)")
	maxArea := fs.Float64("max", def.MaxTileArea, "max tile area in square meters")
	minArea := fs.Float64("min", def.MinTileArea, "min tile area in square meters")
	coverage := fs.Float64("coverage", def.CoverageThreshold, "coverage threshold for terminal tiles")
	bbox := fs.Bool("bbox", def.IncludeBoundingBox, "prepend the shape bounding box tile")
	depth := fs.Int("depth", def.MaxDepth, "max subdivision depth")
	timeout := fs.Duration("timeout", 5*time.Minute, "overall time limit")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	zl := logger.Build(logger.Config{Level: level, Console: true, Component: "tilegen"}, stderr)
	log := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	data, err := readInput(*in, stdin)
	if err != nil {
		log.Error("read input", "err", err)
		return 1
	}
	shape, err := shapeio.Decode(data)
	if err != nil {
		log.Error("decode shape", "err", err)
		return 1
	}

	p := def
	p.MaxTileArea = *maxArea
	p.MinTileArea = *minArea
	p.CoverageThreshold = *coverage
	p.IncludeBoundingBox = *bbox
	p.MaxDepth = *depth

	start := time.Now()
	res, err := tiling.New(nil, nil, log).Generate(ctx, shape, p)
	if err != nil {
		log.Error("generate tiles", "err", err)
		return 1
	}

	r := render.New(render.Options{Timeout: *timeout, CacheSize: -1}, log)
	defer func() { _ = r.Close() }()
	doc, err := r.RenderAll(ctx, res.Tiles)
	if err != nil {
		log.Error("render tiles", "err", err)
		return 1
	}

	if err := writeOutput(*out, stdout, doc); err != nil {
		log.Error("write output", "err", err)
		return 1
	}
	log.Info("tiles written", "tiles", len(res.Tiles), "fallbacks", res.Fallbacks, "took", time.Since(start))
	return 0
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func writeOutput(path string, stdout io.Writer, doc []byte) error {
	if path == "-" {
		_, err := stdout.Write(append(doc, '\n'))
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
