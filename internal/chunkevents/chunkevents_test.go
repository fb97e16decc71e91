package chunkevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/render"
)

func TestPublish_SendsJSONChunk(t *testing.T) {
	prod := mocks.NewSyncProducer(t, NewConfig())
	prod.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != "tiles-chunks" {
			return fmt.Errorf("topic=%q", m.Topic)
		}
		key, _ := m.Key.Encode()
		if string(key) != "s1" {
			return fmt.Errorf("key=%q", key)
		}
		val, _ := m.Value.Encode()
		var got render.ChunkMessage
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.ChunkIndex != 2 || got.TotalChunks != 3 || !got.IsLast || string(got.Features) != `[]` {
			return fmt.Errorf("payload=%s", val)
		}
		return nil
	})

	p := NewWithProducer(prod, "tiles-chunks", logger.Discard())
	msg := render.ChunkMessage{StreamID: "s1", ChunkIndex: 2, TotalChunks: 3, Features: json.RawMessage(`[]`), IsLast: true}
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_SurfacesBrokerError(t *testing.T) {
	prod := mocks.NewSyncProducer(t, NewConfig())
	prod.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	p := NewWithProducer(prod, "tiles-chunks", logger.Discard())
	err := p.Publish(context.Background(), render.ChunkMessage{StreamID: "s", Features: json.RawMessage(`[]`)})
	if !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("err=%v want ErrNotLeaderForPartition", err)
	}
	_ = p.Close()
}

func TestPublish_CanceledContextSkipsSend(t *testing.T) {
	prod := mocks.NewSyncProducer(t, NewConfig())
	p := NewWithProducer(prod, "tiles-chunks", logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, render.ChunkMessage{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want canceled", err)
	}
	_ = p.Close()
}

func TestNew_RequiresBrokers(t *testing.T) {
	if _, err := New(nil, "t", logger.Discard()); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
