package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/furnishop/api/internal/domain"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "furnishop-test",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubOrderEventPublisherPublishesOrderedMessage(t *testing.T) {
	srv, topic := newTestTopic(t)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurred := time.Date(2026, 3, 10, 9, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	event := domain.OrderEvent{
		Type:           domain.OrderEventStatusChanged,
		OrderID:        "01HZX3",
		OrderCode:      "FN-260310-7K2Q",
		Status:         domain.OrderStatusShipping,
		PreviousStatus: domain.OrderStatusConfirmed,
		PaymentStatus:  domain.PaymentStatusCompleted,
		ActorID:        "admin-1",
		OccurredAt:     occurred,
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	msg := messages[0]
	if msg.OrderingKey != "01HZX3" {
		t.Fatalf("expected ordering key by order id, got %q", msg.OrderingKey)
	}
	if msg.Attributes["eventType"] != "order.status_changed" || msg.Attributes["status"] != "shipping" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}

	var payload orderEventMessage
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderCode != "FN-260310-7K2Q" || payload.PreviousStatus != "confirmed" || payload.ActorID != "admin-1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if !payload.OccurredAt.Equal(occurred) || payload.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %s", payload.OccurredAt)
	}
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
