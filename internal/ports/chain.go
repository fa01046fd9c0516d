package ports

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// EventHandler recibe trade events ya parseados de una conexión.
type EventHandler func(event domain.TradeEvent)

// ChainStream es una conexión de suscripción al stream de logs on-chain.
// Stream bloquea: conecta, suscribe el set de direcciones y entrega eventos al
// handler hasta que la conexión cae (devuelve el error) o ctx se cancela
// (devuelve ctx.Err()). La reconexión y el backoff son del caller — el watcher.
type ChainStream interface {
	Stream(ctx context.Context, addresses []string, handler EventHandler) error
}
