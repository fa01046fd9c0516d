package ports

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// EpochReport es el resumen de un epoch cerrado para el operador.
type EpochReport struct {
	Epoch     domain.Epoch
	Stats     []domain.AgentEpochStat
	Transfers []domain.RewardTransfer
}

// Notifier reporta el resultado de un epoch (leaderboard + pagos).
type Notifier interface {
	NotifyEpoch(ctx context.Context, report EpochReport) error
}
