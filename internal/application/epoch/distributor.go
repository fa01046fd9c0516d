package epoch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

// DistributorConfig parametriza el cálculo y la ejecución de los pagos.
type DistributorConfig struct {
	Multipliers     domain.MultiplierTable
	AdjustmentFloor float64
	ConfirmTimeout  time.Duration
}

// DistributionResult es el resultado de un intento de distribución.
type DistributionResult struct {
	AllConfirmed bool
	Transfers    []domain.RewardTransfer
}

// Distributor convierte ranks en pagos y los ejecuta con semántica
// all-or-nothing sobre el estado final: el epoch solo se marca PAID cuando
// TODAS las transferencias están CONFIRMED. Los reintentos son seguros:
// las CONFIRMED se saltan (nunca se paga dos veces) y un SENT sin confirmar
// se re-verifica contra el ledger antes de reenviar fondos.
type Distributor struct {
	store    ports.EpochStore
	treasury ports.Treasury
	cfg      DistributorConfig
}

// NewDistributor crea un Distributor.
func NewDistributor(store ports.EpochStore, treasury ports.Treasury, cfg DistributorConfig) *Distributor {
	return &Distributor{store: store, treasury: treasury, cfg: cfg}
}

// Distribute ejecuta (o reintenta) la distribución de un epoch ya puntuado.
// Primero calcula todos los importes en puro y los persiste como PENDING;
// después ejecuta las transferencias una a una, secuencialmente, para que el
// razonamiento sobre fallos parciales sea simple.
func (d *Distributor) Distribute(ctx context.Context, epoch domain.Epoch, stats []domain.AgentEpochStat) (DistributionResult, error) {
	if epoch.Status != domain.EpochEnded {
		return DistributionResult{}, fmt.Errorf("epoch.Distribute: epoch %d is %s, want ENDED", epoch.ID, epoch.Status)
	}

	existing, err := d.store.TransfersForEpoch(ctx, epoch.ID)
	if err != nil {
		return DistributionResult{}, fmt.Errorf("epoch.Distribute: load transfers: %w", err)
	}

	if len(existing) == 0 {
		wallets, err := d.store.CohortForEpoch(ctx, epoch.ID)
		if err != nil {
			return DistributionResult{}, fmt.Errorf("epoch.Distribute: load cohort: %w", err)
		}
		planned := domain.ComputeTransfers(epoch, stats, wallets, d.cfg.Multipliers, d.cfg.AdjustmentFloor)
		if err := d.store.SaveTransfers(ctx, planned); err != nil {
			return DistributionResult{}, fmt.Errorf("epoch.Distribute: persist plan: %w", err)
		}
		existing, err = d.store.TransfersForEpoch(ctx, epoch.ID)
		if err != nil {
			return DistributionResult{}, fmt.Errorf("epoch.Distribute: reload transfers: %w", err)
		}
	}

	allConfirmed := true
	for i, t := range existing {
		switch t.Status {
		case domain.TransferConfirmed:
			continue // ya pagado: jamás se reenvía
		default:
			updated := d.execute(ctx, t)
			existing[i] = updated
			if updated.Status != domain.TransferConfirmed {
				allConfirmed = false
			}
		}
		if ctx.Err() != nil {
			return DistributionResult{AllConfirmed: false, Transfers: existing}, ctx.Err()
		}
	}

	return DistributionResult{AllConfirmed: allConfirmed, Transfers: existing}, nil
}

// execute lleva una transferencia PENDING/SENT/FAILED hacia CONFIRMED o
// FAILED. Nunca devuelve error: el fallo de un agente no bloquea al resto,
// queda registrado en la fila.
func (d *Distributor) execute(ctx context.Context, t domain.RewardTransfer) domain.RewardTransfer {
	log := slog.With("epoch", t.EpochID, "agent", t.AgentID, "amount", t.Amount)

	// Un intento previo dejó signature (SENT, o FAILED por timeout):
	// re-verificar contra el ledger antes de reenviar. Una transferencia
	// que confirmó tarde NO debe pagarse otra vez.
	if t.TxSignature != "" {
		confirmed, err := d.treasury.Verify(ctx, t.TxSignature)
		if err != nil {
			log.Warn("transfer verification failed, leaving as-is for next retry", "tx", t.TxSignature, "err", err)
			return t
		}
		if confirmed {
			t = d.persist(ctx, t, domain.TransferConfirmed)
			log.Info("transfer confirmed on re-verify", "tx", t.TxSignature)
			return t
		}
	}

	if t.Wallet == "" {
		t = d.persist(ctx, t, domain.TransferFailed)
		log.Error("transfer failed: no destination wallet")
		return t
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.ConfirmTimeout)
	defer cancel()

	receipt, err := d.treasury.Transfer(sendCtx, t.Wallet, t.Amount)
	if receipt.TxSignature != "" {
		t.TxSignature = receipt.TxSignature
		t = d.persist(ctx, t, domain.TransferSent)
	}

	switch {
	case err == nil && receipt.Confirmed:
		t = d.persist(ctx, t, domain.TransferConfirmed)
		log.Info("transfer confirmed", "tx", t.TxSignature)
	case errors.Is(err, context.DeadlineExceeded):
		// Política conservadora: timeout = FAILED, no CONFIRMED. La
		// signature se conserva para re-verificar en el retry.
		t = d.persist(ctx, t, domain.TransferFailed)
		log.Error("transfer confirmation timed out", "tx", t.TxSignature)
	default:
		t = d.persist(ctx, t, domain.TransferFailed)
		log.Error("transfer failed", "err", err)
	}
	return t
}

// persist avanza la transferencia a status y la guarda, guardado sobre el
// estado en memoria. Si la fila ya avanzó en otra instancia
// (ErrStaleTransition) se respeta lo persistido y el estado local no cambia;
// otros errores se loguean y quedan para el siguiente retry.
func (d *Distributor) persist(ctx context.Context, t domain.RewardTransfer, status domain.TransferStatus) domain.RewardTransfer {
	from := t.Status
	t.Status = status
	err := d.store.UpdateTransfer(ctx, t, from)
	switch {
	case errors.Is(err, ports.ErrStaleTransition):
		slog.Warn("transfer row advanced elsewhere, keeping persisted state",
			"epoch", t.EpochID, "agent", t.AgentID, "status", from)
		t.Status = from
	case err != nil:
		slog.Error("persist transfer state failed", "epoch", t.EpochID, "agent", t.AgentID, "err", err)
	}
	return t
}
