package ports

import (
	"context"

	"github.com/alejandrodnm/arena/internal/domain"
)

// TradeLedger es el store externo de trades y métricas agregadas.
// El cálculo de las métricas (Sortino, drawdown, consistencia) vive en el
// colaborador; el core solo escribe trades y lee agregados opacos.
type TradeLedger interface {
	// RecordTrade ingesta un trade. Idempotente sobre TxSignature: registrar
	// dos veces la misma signature no duplica nada.
	RecordTrade(ctx context.Context, event domain.TradeEvent) error

	// EpochMetrics devuelve las métricas agregadas de un agente en un epoch.
	EpochMetrics(ctx context.Context, agentID string, epochID int64) (domain.MetricSet, error)
}
