package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier escribiendo el cierre de epoch a stdout.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyEpoch imprime el resumen del epoch en el modo configurado.
func (c *Console) NotifyEpoch(_ context.Context, report ports.EpochReport) error {
	if c.table {
		c.printLeaderboard(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(r ports.EpochReport) {
	now := time.Now().Format("15:04:05")
	total := 0.0
	for _, t := range r.Transfers {
		if t.Status == domain.TransferConfirmed {
			total += t.Amount
		}
	}
	fmt.Fprintf(c.out, "[%s] epoch %d %s → %d agents, %d transfers, %.2f USDC paid\n",
		now, r.Epoch.ID, r.Epoch.Status, len(r.Stats), len(r.Transfers), total)
}

// printLeaderboard imprime la tabla completa de ranking y pagos.
func (c *Console) printLeaderboard(r ports.EpochReport) {
	fmt.Fprintf(c.out, "epoch %d [%s] %s → %s | pool %.0f USDC\n",
		r.Epoch.ID, r.Epoch.Status,
		r.Epoch.StartAt.Format("2006-01-02 15:04"),
		r.Epoch.EndAt.Format("2006-01-02 15:04"),
		r.Epoch.PoolSize,
	)

	amounts := make(map[string]domain.RewardTransfer, len(r.Transfers))
	for _, t := range r.Transfers {
		amounts[t.AgentID] = t
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Rank", "Agent", "Score", "Sortino", "WinRate", "Volume", "Reward", "Status")

	for _, st := range r.Stats {
		t := amounts[st.AgentID]
		table.Append(
			fmt.Sprintf("%d", st.Rank),
			st.AgentID,
			fmt.Sprintf("%.4f", st.NormalizedScore),
			fmt.Sprintf("%.3f", st.Sortino),
			fmt.Sprintf("%.1f%%", st.WinRate*100),
			fmt.Sprintf("$%.0f", st.Volume),
			fmt.Sprintf("$%.2f", t.Amount),
			string(t.Status),
		)
	}
	table.Render()
}
