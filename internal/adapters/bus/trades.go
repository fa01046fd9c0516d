package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/segmentio/kafka-go"
)

// TradePublisher republica trade events normalizados en Kafka para los
// consumidores downstream (analytics, feed en vivo). Implementa
// ports.TradePublisher. Key = wallet: los eventos de una misma wallet caen
// siempre en la misma partición y conservan orden relativo.
type TradePublisher struct {
	writer *kafka.Writer
	Topic  string
}

// NewTradePublisher crea el publisher sobre los brokers y topic dados.
func NewTradePublisher(brokers []string, topic string) *TradePublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &TradePublisher{writer: writer, Topic: topic}
}

// Publish escribe el evento como JSON.
func (p *TradePublisher) Publish(ctx context.Context, event domain.TradeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("bus.Publish: marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.WalletAddress),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("bus.Publish: kafka write: %w", err)
	}
	return nil
}

// Close cierra el writer.
func (p *TradePublisher) Close() error {
	return p.writer.Close()
}
