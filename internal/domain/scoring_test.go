package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cohortMetrics() map[string]MetricSet {
	return map[string]MetricSet{
		"agent-a": {Sortino: 2.0, WinRate: 0.8, Consistency: 0.9, RecoveryFactor: 1.5, Volume: 10000},
		"agent-b": {Sortino: 1.0, WinRate: 0.6, Consistency: 0.5, RecoveryFactor: 3.0, Volume: 50000},
		"agent-c": {Sortino: 0.5, WinRate: 0.9, Consistency: 0.7, RecoveryFactor: 0.5, Volume: 2000},
	}
}

func TestScoreCohort_RanksAreOneBased(t *testing.T) {
	stats := ScoreCohort(1, cohortMetrics(), DefaultWeights())
	require.Len(t, stats, 3)
	for i, st := range stats {
		assert.Equal(t, i+1, st.Rank)
	}
}

func TestScoreCohort_NormalizedScoreInRange(t *testing.T) {
	stats := ScoreCohort(1, cohortMetrics(), DefaultWeights())
	for _, st := range stats {
		assert.GreaterOrEqual(t, st.NormalizedScore, 0.0)
		assert.LessOrEqual(t, st.NormalizedScore, 1.0)
	}
}

func TestScoreCohort_Deterministic(t *testing.T) {
	// Re-scoring con el mismo ledger → mismos valores y mismo orden.
	a := ScoreCohort(1, cohortMetrics(), DefaultWeights())
	b := ScoreCohort(1, cohortMetrics(), DefaultWeights())
	assert.Equal(t, a, b)
}

func TestScoreCohort_BestMetricsWin(t *testing.T) {
	stats := ScoreCohort(1, cohortMetrics(), DefaultWeights())
	// agent-a domina sortino (peso 0.40), winRate y consistency.
	assert.Equal(t, "agent-a", stats[0].AgentID)
}

func TestScoreCohort_ZeroMaxMetricIsZeroForAll(t *testing.T) {
	metrics := map[string]MetricSet{
		"a": {Sortino: 0, Volume: 100},
		"b": {Sortino: 0, Volume: 200},
	}
	stats := ScoreCohort(1, metrics, DefaultWeights())
	require.Len(t, stats, 2)
	// Con sortino max 0 nadie puntúa en esa métrica; solo volume decide.
	assert.Equal(t, "b", stats[0].AgentID)
	assert.InDelta(t, 0.10, stats[0].NormalizedScore, 1e-9)
}

func TestScoreCohort_TieBreakByVolumeThenAgentID(t *testing.T) {
	// Métricas idénticas → scores idénticos; desempata el volumen bruto.
	metrics := map[string]MetricSet{
		"zeta":  {Sortino: 1, WinRate: 1, Consistency: 1, RecoveryFactor: 1, Volume: 500},
		"alpha": {Sortino: 1, WinRate: 1, Consistency: 1, RecoveryFactor: 1, Volume: 500},
		"mid":   {Sortino: 1, WinRate: 1, Consistency: 1, RecoveryFactor: 1, Volume: 900},
	}
	stats := ScoreCohort(1, metrics, DefaultWeights())
	require.Len(t, stats, 3)
	assert.Equal(t, "mid", stats[0].AgentID)
	// Empate total → agentID lexicográficamente menor primero.
	assert.Equal(t, "alpha", stats[1].AgentID)
	assert.Equal(t, "zeta", stats[2].AgentID)
}

func TestScoreCohort_EmptyCohort(t *testing.T) {
	assert.Nil(t, ScoreCohort(1, nil, DefaultWeights()))
}

func TestScoreCohort_SingleAgentScoresOne(t *testing.T) {
	metrics := map[string]MetricSet{
		"solo": {Sortino: 3, WinRate: 0.5, Consistency: 0.2, RecoveryFactor: 1, Volume: 100},
	}
	stats := ScoreCohort(1, metrics, DefaultWeights())
	require.Len(t, stats, 1)
	// Único agente = máximo en todo → score 1.0 exacto.
	assert.InDelta(t, 1.0, stats[0].NormalizedScore, 1e-9)
	assert.Equal(t, 1, stats[0].Rank)
}

func TestNormalize_Bounds(t *testing.T) {
	assert.Equal(t, 0.0, normalize(5, 0))
	assert.Equal(t, 0.0, normalize(-1, 10))
	assert.Equal(t, 1.0, normalize(10, 10))
	assert.InDelta(t, 0.5, normalize(5, 10), 1e-9)
}
