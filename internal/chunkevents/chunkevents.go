// Package chunkevents publishes streamed tile chunks to Kafka.
package chunkevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/aoi-tiling/internal/render"
)

// Publisher sends each chunk synchronously so the renderer's ordering and
// back-pressure carry through to the topic. Messages are keyed by stream id,
// which keeps one stream on one partition.
type Publisher struct {
	topic string
	prod  sarama.SyncProducer
	log   *slog.Logger
}

var _ render.Publisher = (*Publisher)(nil)

func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	// chunk payloads can be large; allow up to 8 MiB
	cfg.Producer.MaxMessageBytes = 8 << 20
	return cfg
}

func New(brokers []string, topic string, log *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("chunkevents: no brokers configured")
	}
	prod, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("chunkevents: create sync producer: %w", err)
	}
	return NewWithProducer(prod, topic, log), nil
}

func NewWithProducer(prod sarama.SyncProducer, topic string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{topic: topic, prod: prod, log: log.With("component", "chunkevents", "topic", topic)}
}

func (p *Publisher) Publish(ctx context.Context, msg render.ChunkMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chunkevents: marshal chunk %d: %w", msg.ChunkIndex, err)
	}
	pm := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.StreamID),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("chunk-index"), Value: []byte(strconv.Itoa(msg.ChunkIndex))},
			{Key: []byte("total-chunks"), Value: []byte(strconv.Itoa(msg.TotalChunks))},
		},
	}
	partition, offset, err := p.prod.SendMessage(pm)
	if err != nil {
		return fmt.Errorf("chunkevents: send chunk %d of %s: %w", msg.ChunkIndex, msg.StreamID, err)
	}
	p.log.DebugContext(ctx, "chunk published",
		"stream_id", msg.StreamID, "chunk", msg.ChunkIndex,
		"partition", partition, "offset", offset)
	return nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("chunkevents: close producer: %w", err)
	}
	return nil
}
