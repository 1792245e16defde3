package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// notificationMessage — контракт исходящей очереди: кто, о чём, по какой
// сделке. Форматирование письма или SMS — забота потребителя очереди.
type notificationMessage struct {
	RecipientID   uuid.UUID `json:"recipient_id"`
	Event         string    `json:"event"`
	TransactionID uuid.UUID `json:"transaction_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher пишет события уведомлений в Kafka.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Notify кладёт событие в очередь. Ключ — получатель, чтобы события одного
// пользователя шли в одну партицию по порядку.
func (p *Publisher) Notify(ctx context.Context, recipientID uuid.UUID, event string, transactionID uuid.UUID) error {
	data, err := json.Marshal(notificationMessage{
		RecipientID:   recipientID,
		Event:         event,
		TransactionID: transactionID,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipientID.String()),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
