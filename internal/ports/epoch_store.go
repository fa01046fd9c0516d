package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/arena/internal/domain"
)

// ErrStaleTransition indica que una transición de estado guardada no aplicó
// porque el epoch ya no estaba en el estado esperado. No es un error de
// verdad para el caller: otro tick ya hizo el trabajo (idempotencia).
var ErrStaleTransition = errors.New("epoch status transition did not apply")

// EpochStore persiste epochs, stats y transferencias. Los epochs nunca se
// borran — son el audit trail de la competición.
type EpochStore interface {
	// CreateEpoch inserta un epoch nuevo y devuelve su ID.
	CreateEpoch(ctx context.Context, e domain.Epoch) (int64, error)

	// EpochByID devuelve un epoch por ID.
	EpochByID(ctx context.Context, id int64) (domain.Epoch, error)

	// UnfinishedEpochs devuelve los epochs que aún no llegaron a PAID,
	// ordenados por StartAt ascendente.
	UnfinishedEpochs(ctx context.Context) ([]domain.Epoch, error)

	// TransitionEpoch avanza el estado de un epoch de forma guardada:
	// solo aplica si el estado persistido sigue siendo from. Si no aplica
	// devuelve ErrStaleTransition.
	TransitionEpoch(ctx context.Context, id int64, from, to domain.EpochStatus) error

	// SaveStats persiste los stats de un epoch (upsert determinista).
	SaveStats(ctx context.Context, stats []domain.AgentEpochStat) error

	// StatsForEpoch devuelve los stats persistidos ordenados por rank.
	// Slice vacío si el epoch aún no se ha puntuado.
	StatsForEpoch(ctx context.Context, epochID int64) ([]domain.AgentEpochStat, error)

	// CohortForEpoch devuelve los agentIDs con métricas registradas en el
	// epoch, junto con la wallet de destino de cada uno.
	CohortForEpoch(ctx context.Context, epochID int64) (map[string]string, error)

	// SaveTransfers inserta transferencias nuevas sin pisar las existentes
	// (un retry de distribución nunca resetea transferencias ya avanzadas).
	SaveTransfers(ctx context.Context, transfers []domain.RewardTransfer) error

	// TransfersForEpoch devuelve las transferencias del epoch, orden estable.
	TransfersForEpoch(ctx context.Context, epochID int64) ([]domain.RewardTransfer, error)

	// UpdateTransfer persiste el estado/tx de una transferencia de forma
	// guardada: solo aplica si la fila sigue en el estado from. Si no aplica
	// devuelve ErrStaleTransition — otra instancia avanzó la fila primero y
	// su estado es el que vale.
	UpdateTransfer(ctx context.Context, t domain.RewardTransfer, from domain.TransferStatus) error

	// UpsertAgent registra una identidad verificada (para resolver wallets
	// a la hora de pagar y agentes a la hora de ingestar).
	UpsertAgent(ctx context.Context, identity domain.AgentIdentity) error

	// AgentByWallet resuelve la identidad dueña de una wallet.
	AgentByWallet(ctx context.Context, wallet string) (domain.AgentIdentity, error)
}
