package appkafka

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/blogapi/internal/logger"
	"example.com/blogapi/internal/models"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// Publisher sends activity events to Kafka, one message per event keyed by
// event type.
type Publisher struct {
	writer KafkaWriter
}

func NewPublisher(w KafkaWriter) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Publish(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	logg.Info("broker/publisher", "Published "+string(event.Type)+" event id="+event.ID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func EncodeEvent(event models.Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.Type),
		Value: data,
		Time:  event.At,
	}, nil
}

func DecodeEvent(msg kafka.Message) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return models.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return models.Event{}, fmt.Errorf("decode event: missing id or type")
	}
	return event, nil
}
