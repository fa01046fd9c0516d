package watcher

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
)

// connection es una conexión al stream on-chain con su propio worker.
// El estado de reconexión es un domain.Backoff avanzado por funciones puras;
// el worker solo decide cuándo dormir. Un fallo aquí jamás toca a las demás
// conexiones.
type connection struct {
	id string
	m  *Manager

	// addresses lo guarda el lock del manager, no la conexión.
	addresses map[string]struct{}

	// refresh despierta al worker cuando el set de direcciones cambia;
	// el stream vigente se cancela y se reconecta sin penalización de backoff.
	refresh      chan struct{}
	cancelStream context.CancelFunc
}

func newConnection(id string, m *Manager) *connection {
	return &connection{
		id:        id,
		m:         m,
		addresses: make(map[string]struct{}),
		refresh:   make(chan struct{}, 1),
	}
}

// poke cancela el stream vigente para que el worker reconecte con el set de
// direcciones actualizado. Se llama bajo el lock del manager.
func (c *connection) poke() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
	if c.cancelStream != nil {
		c.cancelStream()
	}
}

// run es el loop del worker: conectar, leer hasta caída, backoff, repetir.
// Termina solo cuando ctx se cancela. Un upstream permanentemente caído
// degrada a reintentos periódicos indefinidos — se loguea, nunca es fatal.
func (c *connection) run(ctx context.Context) {
	defer c.m.wg.Done()

	policy := c.m.cfg.Backoff
	var backoff domain.Backoff

	for {
		if ctx.Err() != nil {
			return
		}

		addrs := c.m.snapshotAddresses(c)
		if len(addrs) == 0 {
			// Conexión vacía: esperar a que llegue una suscripción.
			select {
			case <-ctx.Done():
				return
			case <-c.refresh:
			}
			continue
		}

		streamCtx, cancel := context.WithCancel(ctx)
		c.m.setStreamCancel(c, cancel)
		connectedAt := time.Now()

		err := c.m.source.Stream(streamCtx, addrs, func(e domain.TradeEvent) {
			c.m.deliver(c, e)
		})
		cancel()

		if ctx.Err() != nil {
			return
		}

		// ¿La caída fue un refresh nuestro? Reconectar ya, sin backoff.
		select {
		case <-c.refresh:
			slog.Debug("connection resubscribing", "conn", c.id)
			continue
		default:
		}

		backoff = backoff.ResetIfStable(policy, connectedAt, time.Now())
		backoff = backoff.Next(policy, time.Now(), rand.Float64()*2-1)
		c.m.markDisconnect(c)

		slog.Warn("connection lost, reconnecting",
			"conn", c.id,
			"err", err,
			"attempt", backoff.Attempt,
			"retry_at", backoff.NextRetryAt.Format(time.TimeOnly),
		)

		select {
		case <-ctx.Done():
			return
		case <-c.refresh:
			// El set cambió durante la espera: reconectar ya.
		case <-time.After(time.Until(backoff.NextRetryAt)):
		}
	}
}
