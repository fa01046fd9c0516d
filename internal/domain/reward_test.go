package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplierTable_ForRank(t *testing.T) {
	table := DefaultMultiplierTable()
	assert.Equal(t, 2.0, table.ForRank(1))
	assert.Equal(t, 1.5, table.ForRank(2))
	assert.Equal(t, 1.0, table.ForRank(3))
	assert.Equal(t, 0.75, table.ForRank(4))
	assert.Equal(t, 0.5, table.ForRank(5))
	// Más allá de la tabla se continúa con el floor.
	assert.Equal(t, 0.5, table.ForRank(6))
	assert.Equal(t, 0.5, table.ForRank(100))
}

func TestRewardAmount_DocumentedExample(t *testing.T) {
	// pool=1000, base=200, 5 agentes con adjustment 1.0 →
	// rewards {400, 300, 200, 150, 100} según la tabla documentada.
	table := DefaultMultiplierTable()
	want := []float64{400, 300, 200, 150, 100}
	for rank := 1; rank <= 5; rank++ {
		stat := AgentEpochStat{Rank: rank, NormalizedScore: 1.0}
		assert.Equal(t, want[rank-1], RewardAmount(200, stat, table, 0.5), "rank %d", rank)
	}
}

func TestRewardAmount_AdjustmentFloorApplies(t *testing.T) {
	// Rank 6, multiplier floor 0.5, score 0.2 clampeado al floor 0.5:
	// 200 × 0.5 × 0.5 = 50, no 200 × 0.5 × 0.2 = 20.
	stat := AgentEpochStat{Rank: 6, NormalizedScore: 0.2}
	assert.Equal(t, 50.0, RewardAmount(200, stat, DefaultMultiplierTable(), 0.5))
}

func TestRewardAmount_AboveFloorUntouched(t *testing.T) {
	stat := AgentEpochStat{Rank: 1, NormalizedScore: 0.8}
	assert.InDelta(t, 200*2.0*0.8, RewardAmount(200, stat, DefaultMultiplierTable(), 0.5), 1e-9)
}

func TestRewardAmount_RankOneBeatsRankTwo(t *testing.T) {
	// Con adjustment igual, rank 1 siempre cobra >= rank 2.
	table := DefaultMultiplierTable()
	for _, adj := range []float64{0.5, 0.7, 1.0} {
		r1 := RewardAmount(200, AgentEpochStat{Rank: 1, NormalizedScore: adj}, table, 0.5)
		r2 := RewardAmount(200, AgentEpochStat{Rank: 2, NormalizedScore: adj}, table, 0.5)
		assert.GreaterOrEqual(t, r1, r2)
	}
}

func TestComputeTransfers_AllPending(t *testing.T) {
	epoch := Epoch{ID: 7, BaseAllocationPerAgent: 200, Status: EpochEnded}
	stats := []AgentEpochStat{
		{AgentID: "a", EpochID: 7, Rank: 1, NormalizedScore: 1.0},
		{AgentID: "b", EpochID: 7, Rank: 2, NormalizedScore: 0.4},
	}
	wallets := map[string]string{"a": "walletA", "b": "walletB"}

	transfers := ComputeTransfers(epoch, stats, wallets, DefaultMultiplierTable(), 0.5)
	require.Len(t, transfers, 2)

	assert.Equal(t, TransferPending, transfers[0].Status)
	assert.Equal(t, 400.0, transfers[0].Amount)
	assert.Equal(t, "walletA", transfers[0].Wallet)

	// Score 0.4 < floor 0.5 → 200 × 1.5 × 0.5 = 150.
	assert.Equal(t, 150.0, transfers[1].Amount)
}

func TestTransition_NeverRegresses(t *testing.T) {
	e := Epoch{ID: 1, Status: EpochEnded}
	_, err := e.Transition(EpochActive)
	assert.Error(t, err)
}

func TestTransition_IdempotentAdvance(t *testing.T) {
	// Avanzar a un estado ya alcanzado es un no-op válido.
	e := Epoch{ID: 1, Status: EpochEnded}
	got, err := e.Transition(EpochEnded)
	require.NoError(t, err)
	assert.Equal(t, EpochEnded, got.Status)
}

func TestTransition_NoSkipping(t *testing.T) {
	e := Epoch{ID: 1, Status: EpochUpcoming}
	_, err := e.Transition(EpochEnded)
	assert.Error(t, err)
}

func TestEpochStatus_NextFollowsLifecycle(t *testing.T) {
	assert.Equal(t, EpochActive, EpochUpcoming.Next())
	assert.Equal(t, EpochEnded, EpochActive.Next())
	assert.Equal(t, EpochPaid, EpochEnded.Next())
	// PAID es terminal.
	assert.Equal(t, EpochPaid, EpochPaid.Next())
}

func TestEpochStatus_Before(t *testing.T) {
	assert.True(t, EpochUpcoming.Before(EpochActive))
	assert.True(t, EpochActive.Before(EpochPaid))
	assert.False(t, EpochEnded.Before(EpochEnded))
	assert.False(t, EpochPaid.Before(EpochActive))
}

func TestTransition_DrivesFullLifecycle(t *testing.T) {
	// Encadenar Next + Transition recorre el ciclo completo sin saltos.
	e := Epoch{ID: 1, Status: EpochUpcoming}
	for e.Status != EpochPaid {
		next, err := e.Transition(e.Status.Next())
		require.NoError(t, err)
		require.True(t, e.Status.Before(next.Status))
		e = next
	}
	assert.Equal(t, EpochPaid, e.Status)
}

func TestDueStatus(t *testing.T) {
	now := time.Now()
	e := Epoch{StartAt: now.Add(time.Hour), EndAt: now.Add(2 * time.Hour)}

	assert.Equal(t, EpochUpcoming, e.DueStatus(now))
	assert.Equal(t, EpochActive, e.DueStatus(now.Add(90*time.Minute)))
	assert.Equal(t, EpochEnded, e.DueStatus(now.Add(3*time.Hour)))
	// PAID nunca es una transición por tiempo.
	assert.Equal(t, EpochEnded, e.DueStatus(now.Add(100*time.Hour)))
}
