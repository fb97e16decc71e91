// Command chunk-tail follows the Kafka chunk topic, reassembles every stream
// and writes each finished one as a FeatureCollection.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/aoi-tiling/internal/chunkevents"
	"github.com/mohammed-shakir/aoi-tiling/internal/core/config"
	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/render"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	group := flag.String("group", "chunk-tail", "consumer group id")
	outDir := flag.String("out", "", "directory for <streamId>.geojson files (stdout when empty)")
	oldest := flag.Bool("oldest", false, "start from the oldest retained offset")
	open := flag.Int("open", chunkevents.DefaultOpenStreams, "max incomplete streams kept in memory")
	flag.Parse()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "chunk-tail",
	}, os.Stderr)
	log := logger.NewSlog(&zl)

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Error("create output dir", "err", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	asm := chunkevents.NewAssembler(*open)
	sink := &docSink{dir: *outDir, stdout: os.Stdout, log: log}
	sub := chunkevents.NewSubscriber(chunkevents.SubscriberConfig{
		Brokers:       cfg.Stream.Brokers(),
		Topic:         cfg.Stream.KafkaTopic,
		GroupID:       *group,
		InitialOldest: *oldest,
	}, func(ctx context.Context, msg render.ChunkMessage) error {
		doc, done, err := asm.Add(msg)
		if err != nil || !done {
			return err
		}
		return sink.write(ctx, msg.StreamID, doc)
	}, log)

	if err := sub.Start(ctx); err != nil {
		log.Error("subscriber start failed", "err", err)
		return 1
	}
	<-ctx.Done()
	sub.Stop()
	log.Info("chunk-tail stopped", "open_streams", asm.Open(), "written", sink.count())
	return 0
}

// docSink is shared by the per-partition claim loops.
type docSink struct {
	dir    string
	stdout io.Writer
	log    *slog.Logger

	mu      sync.Mutex
	written int
}

func (s *docSink) write(ctx context.Context, streamID string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written++
	if s.dir == "" {
		_, err := fmt.Fprintf(s.stdout, "%s\n", doc)
		return err
	}
	path := filepath.Join(s.dir, filepath.Base(streamID)+".geojson")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.log.InfoContext(logger.WithStreamID(ctx, streamID), "stream written", "path", path, "bytes", len(doc))
	return nil
}

func (s *docSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
