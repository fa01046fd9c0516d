package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseScript borra la key solo si este proceso sigue siendo el holder.
// Evita que un holder lento libere el lease que otro ya re-adquirió.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Lease implementa ports.TickLock con SET NX PX sobre Redis. El TTL debe ser
// menor que el intervalo de tick: un proceso que muere con el lease tomado no
// bloquea ticks futuros, el lease expira solo.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// NewLease crea un lease sobre la key dada. El token identifica a este
// proceso como holder.
func NewLease(client *redis.Client, key string) *Lease {
	return &Lease{
		client: client,
		key:    key,
		token:  uuid.New().String(),
	}
}

// TryAcquire intenta tomar el lease. ok=false significa contención, no error.
func (l *Lease) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redislock.TryAcquire: %w", err)
	}
	return ok, nil
}

// Release libera el lease si este proceso sigue siendo el holder.
func (l *Lease) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redislock.Release: %w", err)
	}
	return nil
}
