package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap/zaptest"

	"github.com/nisum/oppenheimer/internal/core/domain"
	"github.com/nisum/oppenheimer/internal/infra/config"
)

func TestPublishIdentityRegistered(t *testing.T) {
	registeredAt := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.IdentityRegisteredEvent{
		EventID:      "event-123",
		IdentityID:   "identity-456",
		Name:         "Juan Rodriguez",
		Email:        "juan@rodriguez.org",
		PhoneCount:   2,
		RegisteredAt: registeredAt,
		Metadata:     map[string]any{"source": "unit-test"},
	}

	var captured *sarama.ProducerMessage
	asyncProducer := mocks.NewAsyncProducer(t, NewSaramaConfig())
	asyncProducer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		captured = msg
		return nil
	})

	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "oppenheimer"}, zaptest.NewLogger(t))
	publisher := NewEventPublisher(producer, config.AppSettings{Name: "oppenheimer", Env: "test"}, zaptest.NewLogger(t))

	if err := publisher.PublishIdentityRegistered(context.Background(), event); err != nil {
		t.Fatalf("PublishIdentityRegistered returned error: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	if captured == nil {
		t.Fatal("no message reached the producer")
	}
	if captured.Topic != "oppenheimer.identity.registered" {
		t.Fatalf("unexpected topic: %s", captured.Topic)
	}

	key, err := captured.Key.Encode()
	if err != nil {
		t.Fatalf("Key.Encode returned error: %v", err)
	}
	if string(key) != event.IdentityID {
		t.Fatalf("unexpected key: %s", key)
	}

	bytes, err := captured.Value.Encode()
	if err != nil {
		t.Fatalf("Value.Encode returned error: %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(bytes, &envelope); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}

	if got := envelope["event_id"]; got != event.EventID {
		t.Fatalf("unexpected event_id: %v", got)
	}
	if got := envelope["event_type"]; got != EventIdentityRegistered {
		t.Fatalf("unexpected event_type: %v", got)
	}
	if got := envelope["identity_id"]; got != event.IdentityID {
		t.Fatalf("unexpected identity_id: %v", got)
	}
	if got := envelope["timestamp"]; got != registeredAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if payload["email"] != event.Email || payload["name"] != event.Name {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if count, ok := payload["phone_count"].(float64); !ok || int(count) != 2 {
		t.Fatalf("unexpected phone_count: %v", payload["phone_count"])
	}
	for _, forbidden := range []string{"password", "password_hash", "token"} {
		if _, present := payload[forbidden]; present {
			t.Fatalf("payload must not contain %s", forbidden)
		}
	}
	if strings.Contains(string(bytes), "argon2") {
		t.Fatal("envelope leaked credential material")
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
	}
	if metadata["service"] != "oppenheimer" || metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata: %v", metadata)
	}
}

func TestPublishHonoursContextCancellation(t *testing.T) {
	blocked := &blockingAsyncProducer{errors: make(chan *sarama.ProducerError)}
	producer := newProducer(blocked, config.KafkaSettings{}, zaptest.NewLogger(t))
	publisher := NewEventPublisher(producer, config.AppSettings{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishIdentityRegistered(ctx, domain.IdentityRegisteredEvent{IdentityID: "identity-1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := producer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestTopicName(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "oppenheimer"}}

	if got := producer.TopicName(EventIdentityRegistered); got != "oppenheimer.identity.registered" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := producer.TopicName("oppenheimer.identity.registered"); got != "oppenheimer.identity.registered" {
		t.Fatalf("prefix applied twice: %s", got)
	}

	bare := &Producer{}
	if got := bare.TopicName(EventIdentityRegistered); got != EventIdentityRegistered {
		t.Fatalf("unexpected unprefixed topic %s", got)
	}
}

func TestStubPublisherNeverFails(t *testing.T) {
	stub := NewStubPublisher(zaptest.NewLogger(t))
	if err := stub.PublishIdentityRegistered(context.Background(), domain.IdentityRegisteredEvent{IdentityID: "identity-1", Email: "a@b.com"}); err != nil {
		t.Fatalf("stub returned error: %v", err)
	}
}

// blockingAsyncProducer never accepts input.
type blockingAsyncProducer struct {
	errors chan *sarama.ProducerError
}

func (b *blockingAsyncProducer) AsyncClose() { close(b.errors) }

func (b *blockingAsyncProducer) Close() error {
	b.AsyncClose()
	return nil
}

func (b *blockingAsyncProducer) Input() chan<- *sarama.ProducerMessage { return nil }

func (b *blockingAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (b *blockingAsyncProducer) Errors() <-chan *sarama.ProducerError { return b.errors }

func (b *blockingAsyncProducer) IsTransactional() bool { return false }

func (b *blockingAsyncProducer) BeginTxn() error { return nil }

func (b *blockingAsyncProducer) CommitTxn() error { return nil }

func (b *blockingAsyncProducer) AbortTxn() error { return nil }

func (b *blockingAsyncProducer) AddOffsetsToTxn(map[string][]*sarama.PartitionOffsetMetadata, string) error {
	return nil
}

func (b *blockingAsyncProducer) AddMessageToTxn(*sarama.ConsumerMessage, string, *string) error {
	return nil
}

func (b *blockingAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}
