package chunkevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/aoi-tiling/internal/render"
)

type SubscriberConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	InitialOldest  bool
	SessionTimeout time.Duration
	Heartbeat      time.Duration
}

// HandlerFunc receives every decoded chunk. A returned error stops the
// current claim and the message is redelivered after the next rebalance.
type HandlerFunc func(ctx context.Context, msg render.ChunkMessage) error

// Subscriber consumes the chunk topic in a consumer group.
type Subscriber struct {
	log      *slog.Logger
	cfg      SubscriberConfig
	handle   HandlerFunc
	assigned atomic.Bool
	skipped  atomic.Int64
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func NewSubscriber(cfg SubscriberConfig, handle HandlerFunc, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	return &Subscriber{log: log.With("component", "chunk-subscriber"), cfg: cfg, handle: handle}
}

func (s *Subscriber) Start(ctx context.Context) error {
	if len(s.cfg.Brokers) == 0 || s.cfg.Topic == "" || s.cfg.GroupID == "" {
		return errors.New("chunk subscriber: brokers, topic and group id are required")
	}
	if s.handle == nil {
		return errors.New("chunk subscriber: handler is required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = s.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = s.cfg.Heartbeat
	if s.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(s.cfg.Brokers, s.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}
	s.run(ctx, group)
	return nil
}

func (s *Subscriber) run(ctx context.Context, group sarama.ConsumerGroup) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	h := &groupHandler{
		setup:   func(sarama.ConsumerGroupSession) { s.assigned.Store(true) },
		cleanup: func(sarama.ConsumerGroupSession) { s.assigned.Store(false) },
		process: s.handleMessage,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				s.log.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{s.cfg.Topic}, h); err != nil {
				s.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for err := range group.Errors() {
			s.log.Error("kafka group error", "err", err)
		}
	}()

	s.log.Info("chunk subscriber started", "topic", s.cfg.Topic, "group", s.cfg.GroupID, "brokers", s.cfg.Brokers)
}

func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("chunk subscriber stopped", "skipped", s.skipped.Load())
}

// Ready reports whether partitions are currently assigned.
func (s *Subscriber) Ready() bool { return s.assigned.Load() }

// Skipped counts messages dropped as undecodable.
func (s *Subscriber) Skipped() int64 { return s.skipped.Load() }

// handleMessage skips payloads that are not chunk messages so one poison
// record cannot stall the partition.
func (s *Subscriber) handleMessage(ctx context.Context, m *sarama.ConsumerMessage) error {
	var msg render.ChunkMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		s.skipped.Add(1)
		s.log.WarnContext(ctx, "skipping undecodable chunk", "partition", m.Partition, "offset", m.Offset, "err", err)
		return nil
	}
	if err := s.handle(ctx, msg); err != nil {
		if errors.Is(err, ErrBadChunk) {
			s.skipped.Add(1)
			s.log.WarnContext(ctx, "skipping malformed chunk", "stream_id", msg.StreamID, "offset", m.Offset, "err", err)
			return nil
		}
		return fmt.Errorf("handle chunk %d of %s: %w", msg.ChunkIndex, msg.StreamID, err)
	}
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
