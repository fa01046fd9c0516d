package epoch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/arena/internal/domain"
)

func TestScoreEpoch_PersistsRankedStats(t *testing.T) {
	s := newEpochTestStore(t)
	scorer := NewScorer(s, s, domain.DefaultWeights())
	ctx := context.Background()

	require.NoError(t, s.UpsertMetrics(ctx, "a", 1, domain.MetricSet{Sortino: 2, Volume: 1000}))
	require.NoError(t, s.UpsertMetrics(ctx, "b", 1, domain.MetricSet{Sortino: 1, Volume: 500}))

	stats, err := scorer.ScoreEpoch(ctx, 1, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "a", stats[0].AgentID)
	assert.Equal(t, 1, stats[0].Rank)

	persisted, err := s.StatsForEpoch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, stats, persisted)
}

func TestScoreEpoch_ScoresOnlyOnce(t *testing.T) {
	// El scoring es un artefacto durable: una vez persistido, cambios
	// posteriores en las métricas no alteran el resultado.
	s := newEpochTestStore(t)
	scorer := NewScorer(s, s, domain.DefaultWeights())
	ctx := context.Background()

	require.NoError(t, s.UpsertMetrics(ctx, "a", 1, domain.MetricSet{Sortino: 2, Volume: 1000}))
	first, err := scorer.ScoreEpoch(ctx, 1, []string{"a"})
	require.NoError(t, err)

	require.NoError(t, s.UpsertMetrics(ctx, "a", 1, domain.MetricSet{Sortino: 99, Volume: 9}))
	second, err := scorer.ScoreEpoch(ctx, 1, []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScoreEpoch_EmptyCohort(t *testing.T) {
	s := newEpochTestStore(t)
	scorer := NewScorer(s, s, domain.DefaultWeights())

	stats, err := scorer.ScoreEpoch(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, stats)
}
