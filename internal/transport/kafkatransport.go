package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// defaultTopic is the single Kafka topic backing every stream. Kafka's
// own partitioning is reused directly as the stream id: the transport
// sends with a manual partitioner so streamID becomes the Kafka
// partition number, which preserves the required per-stream FIFO
// ordering for free.
const defaultTopic = "oms-partition-transport"

// KafkaTransport is the production partition transport substrate. A
// single sarama SyncProducer publishes to explicit partitions; one
// sarama PartitionConsumer is created per stream on its first poll
// and cached for the transport's lifetime. Publishes are guarded by a
// gobreaker circuit breaker so a stalled broker surfaces as
// BACKPRESSURED instead of blocking the caller indefinitely.
type KafkaTransport struct {
	topic    string
	producer sarama.SyncProducer
	consumer sarama.Consumer
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger

	mu        sync.Mutex
	consumers map[int]sarama.PartitionConsumer
	buffers   map[int]chan []byte
}

// KafkaConfig carries the subset of sarama configuration the transport
// needs at construction time.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaTransport dials brokers and prepares the manual-partition
// producer and consumer. Every stream id is used directly as the Kafka
// partition number, so the topic must already exist with more partitions
// than the highest stream id in use (outbound base + partitions - 1);
// inbound and outbound streams share the topic and stay apart only
// because their stream id ranges do not overlap.
func NewKafkaTransport(cfg KafkaConfig, logger *zap.Logger) (*KafkaTransport, error) {
	topic := cfg.Topic
	if topic == "" {
		topic = defaultTopic
	}

	conf := sarama.NewConfig()
	conf.Producer.RequiredAcks = sarama.WaitForLocal
	conf.Producer.Return.Successes = true
	conf.Producer.Partitioner = sarama.NewManualPartitioner
	conf.Consumer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, conf)
	if err != nil {
		return nil, fmt.Errorf("transport: kafka producer: %w", err)
	}
	consumer, err := sarama.NewConsumer(cfg.Brokers, conf)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("transport: kafka consumer: %w", err)
	}

	t := &KafkaTransport{
		topic:     topic,
		producer:  producer,
		consumer:  consumer,
		logger:    logger,
		consumers: make(map[int]sarama.PartitionConsumer),
		buffers:   make(map[int]chan []byte),
	}
	t.breaker = NewPublishBreaker("kafka-publish", logger, nil)
	return t, nil
}

// Publish implements PartitionTransport.
func (t *KafkaTransport) Publish(ctx context.Context, streamID int, payload []byte) Result {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		_, _, sendErr := t.producer.SendMessage(&sarama.ProducerMessage{
			Topic:     t.topic,
			Partition: int32(streamID),
			Value:     sarama.ByteEncoder(payload),
		})
		return nil, sendErr
	})
	if err == nil {
		return OK
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return Backpressured
	}
	t.logger.Warn("kafka publish failed", zap.Int("stream_id", streamID), zap.Error(err))
	return Failed
}

// partitionBuffer lazily creates a PartitionConsumer for streamID and a
// goroutine draining it into a plain Go channel, so Poll can be a
// non-blocking, bounded read regardless of sarama's own buffering.
func (t *KafkaTransport) partitionBuffer(streamID int) chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ch, ok := t.buffers[streamID]; ok {
		return ch
	}

	pc, err := t.consumer.ConsumePartition(t.topic, int32(streamID), sarama.OffsetNewest)
	ch := make(chan []byte, 1024)
	t.buffers[streamID] = ch
	if err != nil {
		t.logger.Error("kafka partition consumer unavailable", zap.Int("stream_id", streamID), zap.Error(err))
		return ch
	}
	t.consumers[streamID] = pc

	go func() {
		for msg := range pc.Messages() {
			ch <- msg.Value
		}
	}()
	go func() {
		for err := range pc.Errors() {
			t.logger.Warn("kafka consumer error", zap.Int("stream_id", streamID), zap.Error(err))
		}
	}()

	return ch
}

// Poll implements PartitionTransport.
func (t *KafkaTransport) Poll(ctx context.Context, streamID int, maxFragments int, handler FragmentHandler) int {
	ch := t.partitionBuffer(streamID)
	n := 0
	for n < maxFragments {
		select {
		case payload := <-ch:
			handler(payload)
			n++
		case <-ctx.Done():
			return n
		default:
			return n
		}
	}
	return n
}

// Close implements PartitionTransport.
func (t *KafkaTransport) Close() error {
	t.mu.Lock()
	for _, pc := range t.consumers {
		pc.Close()
	}
	t.mu.Unlock()

	if err := t.consumer.Close(); err != nil {
		return err
	}
	return t.producer.Close()
}
