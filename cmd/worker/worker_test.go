package worker

import (
	"context"
	"testing"
	"time"

	appkafka "example.com/blogapi/internal/broker"
	"example.com/blogapi/internal/models"
	"example.com/blogapi/internal/store"
	"github.com/segmentio/kafka-go"
)

func testEvent(id string, typ models.EventType) models.Event {
	return models.Event{
		ID:        id,
		Type:      typ,
		ActorID:   "u1",
		ActorName: "alice",
		PostID:    "p1",
		At:        time.Now().UTC(),
	}
}

func encode(t *testing.T, e models.Event) kafka.Message {
	t.Helper()
	msg, err := appkafka.EncodeEvent(e)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return msg
}

// runWorkerOnce reads and handles a single Kafka message.
func runWorkerOnce(ctx context.Context, w *Worker) error {
	msg, err := w.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}
	return w.handle(ctx, msg)
}

// ---------- Positive test ----------

func TestWorker_RecordsActivity(t *testing.T) {
	mem := store.NewMemory()
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{encode(t, testEvent("e1", models.EventPostCreated))},
	}
	w := New(mem, mockKafka, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, w); err != nil {
		t.Fatalf("worker failed: %v", err)
	}

	events, _ := mem.ListActivity(ctx, 10)
	if len(events) != 1 || events[0].ID != "e1" || events[0].Type != models.EventPostCreated {
		t.Fatalf("activity not recorded correctly, got: %+v", events)
	}
}

// ---------- Negative tests ----------

func TestWorker_KafkaReadError(t *testing.T) {
	w := New(store.NewMemory(), &appkafka.MockKafkaFail{}, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, w); err == nil {
		t.Fatalf("expected error from Kafka read")
	}
}

func TestWorker_InvalidEventJSON(t *testing.T) {
	mem := store.NewMemory()
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{{Value: []byte("{invalid-json}")}},
	}
	w := New(mem, mockKafka, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, w); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
	if events, _ := mem.ListActivity(ctx, 10); len(events) != 0 {
		t.Fatalf("nothing should be recorded, got %+v", events)
	}
}

func TestWorker_StoreAppendFail(t *testing.T) {
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{encode(t, testEvent("e1", models.EventPostDeleted))},
	}
	w := New(&store.MockStoreFail{}, mockKafka, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, w); err == nil {
		t.Fatalf("expected error from store AppendActivity")
	}
}

func TestWorker_EmptyKafkaMessage(t *testing.T) {
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{{Value: nil}},
	}
	w := New(store.NewMemory(), mockKafka, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, w); err != nil {
		t.Fatalf("expected no error for empty Kafka message, got: %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(store.NewMemory(), &appkafka.MockKafka{}, 0, 0)
	if w.workerCount < 1 {
		t.Fatalf("expected at least one worker, got %d", w.workerCount)
	}
	if w.jobQueueSize != w.workerCount*10 {
		t.Fatalf("expected queue size %d, got %d", w.workerCount*10, w.jobQueueSize)
	}
}
