package domain

import "time"

// TransferStatus es el ciclo de vida de una transferencia de reward.
// PENDING → SENT → CONFIRMED en el camino feliz; FAILED en error irrecuperable
// o timeout de confirmación (política conservadora: un SENT sin confirmar se
// re-verifica contra el ledger antes de reenviar fondos).
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferSent      TransferStatus = "SENT"
	TransferConfirmed TransferStatus = "CONFIRMED"
	TransferFailed    TransferStatus = "FAILED"
)

// RewardTransfer es el pago de un agente en un epoch. Solo existe para epochs
// que ya llegaron a ENDED; el epoch pasa a PAID únicamente cuando todas sus
// transferencias están CONFIRMED.
type RewardTransfer struct {
	EpochID     int64
	AgentID     string
	Wallet      string
	Amount      float64
	Status      TransferStatus
	TxSignature string
	UpdatedAt   time.Time
}

// MultiplierTable asigna un multiplicador fijo a cada rank. Los ranks más
// allá de la tabla continúan con el último valor (el floor).
// Tabla documentada: 2.0 / 1.5 / 1.0 / 0.75 / 0.5.
type MultiplierTable []float64

// DefaultMultiplierTable devuelve la tabla documentada del producto.
func DefaultMultiplierTable() MultiplierTable {
	return MultiplierTable{2.0, 1.5, 1.0, 0.75, 0.5}
}

// ForRank devuelve el multiplicador del rank dado (1-based).
func (t MultiplierTable) ForRank(rank int) float64 {
	if len(t) == 0 {
		return 0
	}
	if rank < 1 {
		rank = 1
	}
	if rank > len(t) {
		return t[len(t)-1]
	}
	return t[rank-1]
}

// RewardAmount calcula el pago de un agente:
//
//	amount = baseAllocation × rankMultiplier × performanceAdjustment
//
// donde performanceAdjustment es el score normalizado con un floor (default
// 0.5): todo agente rankeado cobra al menos la mitad de lo que su rank implica,
// por bajo que sea su score relativo.
func RewardAmount(baseAllocation float64, stat AgentEpochStat, table MultiplierTable, floor float64) float64 {
	adj := stat.NormalizedScore
	if adj < floor {
		adj = floor
	}
	return baseAllocation * table.ForRank(stat.Rank) * adj
}

// ComputeTransfers calcula todos los pagos de un epoch de forma pura, sin
// tocar estado: el distributor los persiste como PENDING y los ejecuta después
// uno a uno. wallets mapea agentID → wallet de destino; los agentes sin wallet
// conocida se omiten (el pago no puede ejecutarse sin destino).
func ComputeTransfers(epoch Epoch, stats []AgentEpochStat, wallets map[string]string, table MultiplierTable, floor float64) []RewardTransfer {
	transfers := make([]RewardTransfer, 0, len(stats))
	for _, stat := range stats {
		transfers = append(transfers, RewardTransfer{
			EpochID: epoch.ID,
			AgentID: stat.AgentID,
			Wallet:  wallets[stat.AgentID],
			Amount:  RewardAmount(epoch.BaseAllocationPerAgent, stat, table, floor),
			Status:  TransferPending,
		})
	}
	return transfers
}
