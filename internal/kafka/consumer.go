package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/Refret28/microservice-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a consumer for the payment-request topic.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start consumes payment requests until ctx is cancelled. Offsets are
// committed as soon as the handler returns; a crash between hand-off
// and use loses the message, which the sweeper covers.
func (c *Consumer) Start(ctx context.Context, handler func(req models.PaymentRequest)) {
	log.Println("Kafka consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading message: %v", err)
			continue
		}

		var req models.PaymentRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			log.Printf("Failed to unmarshal payment request: %v", err)
			continue
		}

		log.Printf("Received payment request: user=%d booking=%d amount=%.2f", req.UserID, req.BookingID, req.Amount)
		handler(req)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
