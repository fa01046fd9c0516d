package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/arena/internal/domain"
	redis "github.com/redis/go-redis/v9"
)

// Store lee identidades verificadas desde un set de Redis que escribe el
// servicio externo de autenticación. Implementa ports.AgentRegistry.
type Store struct {
	client *redis.Client
	key    string
}

// NewStore crea el registry sobre el cliente y la key dados.
func NewStore(client *redis.Client, key string) *Store {
	return &Store{client: client, key: key}
}

// List devuelve todas las identidades verificadas. Las entradas malformadas
// se loguean y se saltan — un registro corrupto no bloquea al resto.
func (s *Store) List(ctx context.Context) ([]domain.AgentIdentity, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("registry.List: redis SMEMBERS %s: %w", s.key, err)
	}

	identities := make([]domain.AgentIdentity, 0, len(members))
	for _, m := range members {
		var id domain.AgentIdentity
		if err := json.Unmarshal([]byte(m), &id); err != nil {
			slog.Warn("registry entry malformed, skipping", "err", err)
			continue
		}
		if !id.Valid() {
			continue
		}
		identities = append(identities, id)
	}
	return identities, nil
}
