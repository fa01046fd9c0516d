package ports

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// AgentRegistry es la fuente de identidades verificadas que produce el
// servicio externo de autenticación. El watcher la sincroniza periódicamente
// para decidir qué wallets monitorizar.
type AgentRegistry interface {
	List(ctx context.Context) ([]domain.AgentIdentity, error)
}

// AgentDirectory persiste identidades verificadas para que el resto del core
// (cohorts, destinos de pago) pueda resolver wallet ↔ agente.
type AgentDirectory interface {
	UpsertAgent(ctx context.Context, identity domain.AgentIdentity) error
}
