package ports

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// TradePublisher republica trade events normalizados para consumidores
// downstream (analytics, UI en vivo). Un fallo de publicación se loguea y
// nunca bloquea la ingesta.
type TradePublisher interface {
	Publish(ctx context.Context, event domain.TradeEvent) error
	Close() error
}
