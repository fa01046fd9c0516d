package domain

import "sort"

// Weights son los pesos del score compuesto. Deben sumar 1.0 — la validación
// vive en config y falla en el arranque, no aquí.
type Weights struct {
	Sortino        float64
	WinRate        float64
	Consistency    float64
	RecoveryFactor float64
	Volume         float64
}

// DefaultWeights devuelve los pesos documentados del producto.
func DefaultWeights() Weights {
	return Weights{
		Sortino:        0.40,
		WinRate:        0.20,
		Consistency:    0.15,
		RecoveryFactor: 0.15,
		Volume:         0.10,
	}
}

// ScoreCohort calcula score compuesto y rank para todo el cohort de un epoch.
// Es pura y determinista: con las mismas métricas produce exactamente los
// mismos valores y el mismo orden, lo que hace el re-scoring idempotente.
//
// Algoritmo:
//  1. Cada métrica se normaliza por agente como value / max(cohort).
//     Si el máximo del cohort es 0, la métrica normalizada es 0 para todos
//     (evita la división por cero).
//  2. Score = w1·sortino_n + w2·winRate_n + w3·consistency_n +
//     w4·recoveryFactor_n + w5·volume_n.
//  3. Orden descendente por score; empates por (mayor volumen bruto,
//     agentID lexicográficamente menor) para que el orden sea estable.
//  4. Rank = posición 1-based en el orden final.
func ScoreCohort(epochID int64, metrics map[string]MetricSet, w Weights) []AgentEpochStat {
	if len(metrics) == 0 {
		return nil
	}

	var maxM MetricSet
	for _, m := range metrics {
		maxM.Sortino = max(maxM.Sortino, m.Sortino)
		maxM.WinRate = max(maxM.WinRate, m.WinRate)
		maxM.Consistency = max(maxM.Consistency, m.Consistency)
		maxM.RecoveryFactor = max(maxM.RecoveryFactor, m.RecoveryFactor)
		maxM.Volume = max(maxM.Volume, m.Volume)
	}

	stats := make([]AgentEpochStat, 0, len(metrics))
	for agentID, m := range metrics {
		score := w.Sortino*normalize(m.Sortino, maxM.Sortino) +
			w.WinRate*normalize(m.WinRate, maxM.WinRate) +
			w.Consistency*normalize(m.Consistency, maxM.Consistency) +
			w.RecoveryFactor*normalize(m.RecoveryFactor, maxM.RecoveryFactor) +
			w.Volume*normalize(m.Volume, maxM.Volume)

		stats = append(stats, AgentEpochStat{
			AgentID:         agentID,
			EpochID:         epochID,
			Sortino:         m.Sortino,
			WinRate:         m.WinRate,
			Consistency:     m.Consistency,
			RecoveryFactor:  m.RecoveryFactor,
			Volume:          m.Volume,
			NormalizedScore: score,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.NormalizedScore != b.NormalizedScore {
			return a.NormalizedScore > b.NormalizedScore
		}
		if a.Volume != b.Volume {
			return a.Volume > b.Volume
		}
		return a.AgentID < b.AgentID
	})

	for i := range stats {
		stats[i].Rank = i + 1
	}
	return stats
}

// normalize devuelve value/max acotado a [0,1], o 0 si el máximo es 0.
func normalize(value, maxVal float64) float64 {
	if maxVal <= 0 {
		return 0
	}
	n := value / maxVal
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
