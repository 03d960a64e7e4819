package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	sub, err := b.Subscribe(ctx, domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if sub.Topic() != domain.TopicAssessmentCompleted {
		t.Errorf("subscription topic = %q", sub.Topic())
	}

	if err := b.Publish(ctx, domain.TopicAssessmentCompleted, []byte(`{"score":63}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Topic != domain.TopicAssessmentCompleted {
			t.Errorf("message topic = %q", msg.Topic)
		}
		if string(msg.Payload) != `{"score":63}` {
			t.Errorf("payload = %s", msg.Payload)
		}
		if msg.ID == "" {
			t.Error("message missing ID")
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	_, err := b.Subscribe(ctx, domain.TopicSweepCompleted, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		got = append(got, msg.Topic)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicAssessmentCompleted, []byte("x")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 0 {
		t.Errorf("subscriber received messages from other topics: %v", got)
	}
}

func TestChannelBusFanOut(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		_, err := b.Subscribe(ctx, domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	if err := b.Publish(ctx, domain.TopicAssessmentCompleted, []byte("x")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers received the message")
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 10)
	sub, err := b.Subscribe(ctx, domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := b.Publish(ctx, domain.TopicAssessmentCompleted, []byte("x")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-received:
		t.Error("unsubscribed handler still received a message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping on open bus failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Closing twice is a no-op.
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicAssessmentCompleted, []byte("x")); err == nil {
		t.Error("Publish on closed bus should fail")
	}
	if _, err := b.Subscribe(ctx, domain.TopicAssessmentCompleted, nil); err == nil {
		t.Error("Subscribe on closed bus should fail")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("Ping on closed bus should fail")
	}
}

func TestNewUnsupportedType(t *testing.T) {
	if _, err := New(domain.EventBusConfig{Type: "rabbitmq"}); err == nil {
		t.Fatal("expected error for unsupported bus type")
	}
}

func TestNewChannel(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
