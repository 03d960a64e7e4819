package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// KafkaBus implements EventBus using Kafka via sarama. One sync
// producer serves all publishes; each Subscribe runs its own consumer
// group session so independent consumers track their own offsets.
type KafkaBus struct {
	mu            sync.Mutex
	producer      sarama.SyncProducer
	brokers       []string
	groupID       string
	subscriptions map[string]*kafkaSubscription
	closed        bool
}

type kafkaSubscription struct {
	id     string
	topic  string
	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaBus creates a Kafka-backed event bus.
func NewKafkaBus(cfg domain.EventBusConfig) (*KafkaBus, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "kestrel"
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaBus{
		producer:      producer,
		brokers:       cfg.KafkaBrokers,
		groupID:       groupID,
		subscriptions: make(map[string]*kafkaSubscription),
	}, nil
}

// Publish sends a message to a Kafka topic.
func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(msg.ID),
		Value: sarama.ByteEncoder(data),
	})
	return err
}

// Subscribe registers a handler for a Kafka topic via a consumer group.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(b.brokers, b.groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{
		id:     uuid.New().String(),
		topic:  topic,
		group:  group,
		cancel: cancel,
	}

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for {
			h := &consumerGroupHandler{handler: handler}
			if err := group.Consume(subCtx, []string{topic}, h); err != nil {
				slog.Error("kafka consume error", "topic", topic, "error", err)
			}
			if subCtx.Err() != nil {
				return
			}
		}
	}()

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	return sub, nil
}

// Ping verifies the broker connection by opening a throwaway client.
func (b *KafkaBus) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	client, err := sarama.NewClient(b.brokers, sarama.NewConfig())
	if err != nil {
		return fmt.Errorf("kafka not reachable: %w", err)
	}
	return client.Close()
}

// Close shuts down the producer and all consumer groups.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range b.subscriptions {
		sub.cancel()
		sub.wg.Wait()
		_ = sub.group.Close()
	}
	b.subscriptions = make(map[string]*kafkaSubscription)

	return b.producer.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	handler domain.MessageHandler
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var msg domain.Message
			if err := json.Unmarshal(message.Value, &msg); err != nil {
				slog.Error("failed to unmarshal kafka message",
					"topic", message.Topic, "error", err)
				session.MarkMessage(message, "")
				continue
			}

			if err := h.handler(session.Context(), &msg); err != nil {
				slog.Error("handler error",
					"topic", message.Topic, "message_id", msg.ID, "error", err)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// Unsubscribe stops the consumer group session.
func (s *kafkaSubscription) Unsubscribe() error {
	s.cancel()
	s.wg.Wait()
	return s.group.Close()
}

// Topic returns the subscribed topic.
func (s *kafkaSubscription) Topic() string {
	return s.topic
}
