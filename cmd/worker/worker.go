package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/blogapi/internal/broker"
	"example.com/blogapi/internal/logger"
	"example.com/blogapi/internal/store"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// Worker consumes activity events from Kafka and records them in the store
// concurrently.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run reads until ctx is cancelled, then records what is already queued and returns.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan kafka.Message, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- kafka.Message) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
			logg.Error("worker", "Kafka read error, backing off", err)
			if !waitWithContext(ctx, backoff) {
				return
			}
			retry++
			continue
		}
		retry = 0

		if len(msg.Value) == 0 {
			if !waitWithContext(ctx, 50*time.Millisecond) {
				return
			}
			continue
		}

		// block until a slot frees up so no event is dropped
		for enqueued := false; !enqueued; {
			select {
			case jobs <- msg:
				enqueued = true
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
			}
		}
	}
}

// processLoop records queued events until jobs is closed, so messages already
// taken from Kafka are still written after ctx is cancelled. Bad messages are
// logged and skipped.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan kafka.Message) {
	storeCtx := context.WithoutCancel(ctx)
	for msg := range jobs {
		if err := w.handle(storeCtx, msg); err != nil {
			logg.Error("worker", "Failed to record activity", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	if len(msg.Value) == 0 {
		return nil
	}
	event, err := appkafka.DecodeEvent(msg)
	if err != nil {
		return err
	}
	if err := w.store.AppendActivity(ctx, event); err != nil {
		return fmt.Errorf("append %s event: %w", event.Type, err)
	}
	logg.Debug("worker", "Recorded "+string(event.Type)+" event id="+event.ID)
	return nil
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and the store.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing store")
	w.store.Close()
	return nil
}
