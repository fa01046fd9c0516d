package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

func sampleReport() ports.EpochReport {
	return ports.EpochReport{
		Epoch: domain.Epoch{ID: 3, Status: domain.EpochPaid, PoolSize: 1000},
		Stats: []domain.AgentEpochStat{
			{AgentID: "agent-a", Rank: 1, NormalizedScore: 0.95, Sortino: 2.1, WinRate: 0.8, Volume: 10000},
			{AgentID: "agent-b", Rank: 2, NormalizedScore: 0.60, Sortino: 1.2, WinRate: 0.55, Volume: 4000},
		},
		Transfers: []domain.RewardTransfer{
			{AgentID: "agent-a", Amount: 380, Status: domain.TransferConfirmed},
			{AgentID: "agent-b", Amount: 180, Status: domain.TransferConfirmed},
		},
	}
}

func TestNotifyEpoch_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false)

	require.NoError(t, c.NotifyEpoch(context.Background(), sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "epoch 3")
	assert.Contains(t, out, "2 agents")
	assert.Contains(t, out, "560.00 USDC paid")
}

func TestNotifyEpoch_Leaderboard(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true)

	require.NoError(t, c.NotifyEpoch(context.Background(), sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "agent-a")
	assert.Contains(t, out, "agent-b")
	assert.Contains(t, out, "$380.00")
}
