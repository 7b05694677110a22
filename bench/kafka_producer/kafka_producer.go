package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appkafka "example.com/blogapi/internal/broker"
	"example.com/blogapi/internal/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Floods the activity topic with synthetic events to measure worker throughput.
func main() {
	var total, batchSize, numWorkers int
	var kafkaBroker, topic string

	flag.IntVar(&total, "n", 100000, "total number of events to send")
	flag.IntVar(&batchSize, "batch", 100, "batch size for sending messages")
	flag.IntVar(&numWorkers, "workers", 4, "number of parallel goroutines")
	flag.StringVar(&kafkaBroker, "broker", "localhost:9092", "Kafka broker address")
	flag.StringVar(&topic, "topic", "blog-events", "Kafka topic")
	flag.Parse()

	w := &kafka.Writer{
		Addr:     kafka.TCP(kafkaBroker),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	}
	defer w.Close()

	actorID := uuid.NewString()
	types := []models.EventType{models.EventPostCreated, models.EventPostUpdated, models.EventPostDeleted}
	start := time.Now()

	var successCount uint64
	var failCount uint64

	jobs := make(chan int, total)
	var wg sync.WaitGroup

	flush := func(batch []kafka.Message) {
		if err := w.WriteMessages(context.Background(), batch...); err != nil {
			atomic.AddUint64(&failCount, uint64(len(batch)))
			fmt.Printf("write error: %v\n", err)
			return
		}
		atomic.AddUint64(&successCount, uint64(len(batch)))
	}

	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)

			for i := range jobs {
				msg, err := appkafka.EncodeEvent(models.Event{
					ID:        uuid.NewString(),
					Type:      types[i%len(types)],
					ActorID:   actorID,
					ActorName: "kafka-bench",
					PostID:    uuid.NewString(),
					At:        time.Now().UTC(),
				})
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					continue
				}

				batch = append(batch, msg)
				if len(batch) >= batchSize {
					flush(batch)
					// async writes keep a reference to the slice
					batch = make([]kafka.Message, 0, batchSize)
				}
			}

			if len(batch) > 0 {
				flush(batch)
			}
		}()
	}

	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("Total messages: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f msg/s\n", float64(successCount)/elapsed.Seconds())
}
