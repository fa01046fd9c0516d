package ports

import (
	"context"
	"time"
)

// TickLock es el lease distribuido que serializa los ticks del scheduler
// entre instancias escaladas horizontalmente. El TTL es menor que el
// intervalo de tick: un holder que muere no bloquea ticks futuros.
type TickLock interface {
	// TryAcquire intenta tomar el lease. ok=false significa que otro
	// proceso lo tiene — no es un error, el tick simplemente se salta.
	TryAcquire(ctx context.Context, ttl time.Duration) (ok bool, err error)

	// Release libera el lease si este proceso sigue siendo el holder.
	Release(ctx context.Context) error
}
