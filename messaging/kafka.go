package messaging

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/eventstore"
)

const (
	eventTypeHeader = "event_type"
	retryBackoff    = time.Second
)

func NewSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	scfg := sarama.NewConfig()
	scfg.Version = sarama.V3_7_0_0
	scfg.Producer.Return.Successes = true
	scfg.Producer.Idempotent = true
	scfg.Producer.RequiredAcks = sarama.WaitForAll
	scfg.Producer.Partitioner = sarama.NewHashPartitioner
	scfg.Net.MaxOpenRequests = 1
	scfg.Consumer.Return.Errors = true
	// The projection needs the whole topic the first time a group starts.
	scfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	scfg.Metadata.Retry.Max = 5
	scfg.Metadata.Retry.Backoff = 2 * time.Second
	if cfg.TLS {
		scfg.Net.TLS.Enable = true
		scfg.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return scfg
}

// KafkaPublisher keys every message by gift card id so one card always lands on one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Publish(_ context.Context, event eventstore.StoredEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.StreamID.String()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(eventTypeHeader), Value: []byte(event.EventType)},
		},
	})
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// KafkaSubscriber consumes the event topic through a consumer group.
type KafkaSubscriber struct {
	group sarama.ConsumerGroup
	topic string
}

func NewKafkaSubscriber(cfg config.KafkaConfig) (*KafkaSubscriber, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	return &KafkaSubscriber{group: group, topic: cfg.Topic}, nil
}

func (s *KafkaSubscriber) Subscribe(ctx context.Context, handler EventHandler) error {
	go func() {
		for err := range s.group.Errors() {
			log.Error().Err(err).Msg("Kafka consumer group error")
		}
	}()

	h := &consumerHandler{handle: handler}
	for {
		if err := s.group.Consume(ctx, []string{s.topic}, h); err != nil {
			log.Error().Err(err).Msg("consume error")
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *KafkaSubscriber) Close() error {
	return s.group.Close()
}

// consumerHandler retries a failing message in place so its partition keeps per-card order.
type consumerHandler struct {
	handle EventHandler
}

func (h *consumerHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		var event eventstore.StoredEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable event message")
			sess.MarkMessage(msg, "")
			continue
		}

		for {
			err := h.handle(ctx, event)
			if err == nil {
				break
			}
			log.Error().Err(err).Str("giftCardID", event.StreamID.String()).Int64("sequence", event.Sequence).Msg("consumer handler error")
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return nil
			}
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
