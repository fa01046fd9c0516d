package epoch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

// Scorer calcula el ranking de un epoch a partir del ledger. El scoring es un
// artefacto one-shot y durable: una vez persistido, las re-ejecuciones
// devuelven lo guardado sin recalcular (los retries de distribución nunca
// re-puntúan).
type Scorer struct {
	ledger  ports.TradeLedger
	store   ports.EpochStore
	weights domain.Weights
}

// NewScorer crea un Scorer con los pesos dados (ya validados en config).
func NewScorer(ledger ports.TradeLedger, store ports.EpochStore, weights domain.Weights) *Scorer {
	return &Scorer{ledger: ledger, store: store, weights: weights}
}

// ScoreEpoch puntúa el cohort del epoch y persiste los stats. Determinista e
// idempotente: con el mismo ledger produce exactamente los mismos valores y
// ranks, y si los stats ya existen los devuelve tal cual.
func (s *Scorer) ScoreEpoch(ctx context.Context, epochID int64, agentIDs []string) ([]domain.AgentEpochStat, error) {
	existing, err := s.store.StatsForEpoch(ctx, epochID)
	if err != nil {
		return nil, fmt.Errorf("epoch.ScoreEpoch: load stats: %w", err)
	}
	if len(existing) > 0 {
		slog.Debug("epoch already scored", "epoch", epochID, "agents", len(existing))
		return existing, nil
	}

	metrics := make(map[string]domain.MetricSet, len(agentIDs))
	for _, agentID := range agentIDs {
		m, err := s.ledger.EpochMetrics(ctx, agentID, epochID)
		if err != nil {
			return nil, fmt.Errorf("epoch.ScoreEpoch: metrics for %s: %w", agentID, err)
		}
		metrics[agentID] = m
	}

	stats := domain.ScoreCohort(epochID, metrics, s.weights)
	if err := s.store.SaveStats(ctx, stats); err != nil {
		return nil, fmt.Errorf("epoch.ScoreEpoch: save stats: %w", err)
	}

	slog.Info("epoch scored", "epoch", epochID, "agents", len(stats))
	return stats, nil
}
