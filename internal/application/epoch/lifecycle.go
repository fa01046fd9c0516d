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

// LifecycleConfig parametriza el scheduler de epochs.
type LifecycleConfig struct {
	TickInterval   time.Duration
	LeaseTTL       time.Duration
	EpochDuration  time.Duration
	PoolSize       float64
	BaseAllocation float64
}

// Lifecycle conduce la máquina de estados de los epochs:
//
//	UPCOMING --(startAt)--> ACTIVE --(endAt)--> ENDED --(pagos CONFIRMED)--> PAID
//
// Las transiciones son one-way e idempotentes; el lease distribuido evita la
// ejecución concurrente de ticks entre instancias, no la transición en sí
// (avanzar un epoch ya avanzado es un no-op por construcción).
type Lifecycle struct {
	store       ports.EpochStore
	scorer      *Scorer
	distributor *Distributor
	lock        ports.TickLock
	notifier    ports.Notifier // opcional, puede ser nil
	cfg         LifecycleConfig
	now         func() time.Time
}

// NewLifecycle crea el lifecycle manager.
func NewLifecycle(store ports.EpochStore, scorer *Scorer, distributor *Distributor,
	lock ports.TickLock, notifier ports.Notifier, cfg LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		store:       store,
		scorer:      scorer,
		distributor: distributor,
		lock:        lock,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Run ejecuta el scheduler hasta que el contexto se cancele.
func (l *Lifecycle) Run(ctx context.Context) error {
	slog.Info("epoch lifecycle starting",
		"tick", l.cfg.TickInterval,
		"epoch_duration", l.cfg.EpochDuration,
	)

	if err := l.Tick(ctx); err != nil {
		slog.Error("epoch tick failed", "err", err)
	}

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("epoch lifecycle stopped")
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				slog.Error("epoch tick failed", "err", err)
			}
		}
	}
}

// Tick ejecuta un ciclo del scheduler bajo el lease distribuido. Contención
// del lease no es un error: el tick se salta y se reintenta al siguiente
// intervalo.
func (l *Lifecycle) Tick(ctx context.Context) error {
	ok, err := l.lock.TryAcquire(ctx, l.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("epoch.Tick: acquire lease: %w", err)
	}
	if !ok {
		slog.Debug("tick skipped, lease held elsewhere")
		return nil
	}
	defer func() {
		if err := l.lock.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("lease release failed", "err", err)
		}
	}()

	now := l.now()

	epochs, err := l.store.UnfinishedEpochs(ctx)
	if err != nil {
		return fmt.Errorf("epoch.Tick: load epochs: %w", err)
	}

	if err := l.ensureScheduled(ctx, epochs, now); err != nil {
		slog.Warn("epoch scheduling failed", "err", err)
	}

	for _, e := range epochs {
		if err := l.advance(ctx, e, now); err != nil {
			// Un epoch atascado no bloquea a los demás.
			slog.Error("epoch advance failed", "epoch", e.ID, "err", err)
		}
	}
	return nil
}

// ensureScheduled crea el siguiente epoch UPCOMING cuando no queda ninguno
// por delante: la competición corre de forma continua.
func (l *Lifecycle) ensureScheduled(ctx context.Context, epochs []domain.Epoch, now time.Time) error {
	var latestEnd time.Time
	pending := false
	for _, e := range epochs {
		if e.Status == domain.EpochUpcoming || e.Status == domain.EpochActive {
			pending = true
		}
		if e.EndAt.After(latestEnd) {
			latestEnd = e.EndAt
		}
	}
	if pending {
		return nil
	}

	start := now
	if latestEnd.After(start) {
		start = latestEnd
	}
	next := domain.Epoch{
		Status:                 domain.EpochUpcoming,
		StartAt:                start,
		EndAt:                  start.Add(l.cfg.EpochDuration),
		PoolSize:               l.cfg.PoolSize,
		BaseAllocationPerAgent: l.cfg.BaseAllocation,
	}
	id, err := l.store.CreateEpoch(ctx, next)
	if err != nil {
		return fmt.Errorf("epoch.ensureScheduled: %w", err)
	}
	slog.Info("epoch scheduled", "epoch", id, "start", next.StartAt, "end", next.EndAt)
	return nil
}

// advance empuja un epoch hacia el estado que el reloj exige y, si está
// ENDED, intenta cerrar el ciclo de pago.
func (l *Lifecycle) advance(ctx context.Context, e domain.Epoch, now time.Time) error {
	due := e.DueStatus(now)
	// Solo se avanza hacia delante: si el reloj "retrocede" (skew), el
	// epoch se queda donde está — nunca se regresa de estado.
	for e.Status.Before(due) {
		next, err := e.Transition(e.Status.Next())
		if err != nil {
			return fmt.Errorf("epoch.advance: %w", err)
		}
		if err := l.store.TransitionEpoch(ctx, e.ID, e.Status, next.Status); err != nil {
			if errors.Is(err, ports.ErrStaleTransition) {
				// Otro tick (u otra instancia) ya lo avanzó: releer y seguir.
				fresh, ferr := l.store.EpochByID(ctx, e.ID)
				if ferr != nil {
					return ferr
				}
				e = fresh
				continue
			}
			return err
		}
		e = next
		slog.Info("epoch transitioned", "epoch", e.ID, "status", e.Status)
	}

	if e.Status == domain.EpochEnded {
		return l.settle(ctx, e)
	}
	return nil
}

// settle puntúa (una sola vez) y distribuye los pagos del epoch. Si la
// distribución no completa, el epoch se queda en ENDED — señal explícita y
// observable para el operador — y el siguiente tick lo reintenta sin volver
// a puntuar.
func (l *Lifecycle) settle(ctx context.Context, e domain.Epoch) error {
	cohort, err := l.store.CohortForEpoch(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("epoch.settle: load cohort: %w", err)
	}
	agentIDs := make([]string, 0, len(cohort))
	for agentID := range cohort {
		agentIDs = append(agentIDs, agentID)
	}

	stats, err := l.scorer.ScoreEpoch(ctx, e.ID, agentIDs)
	if err != nil {
		return fmt.Errorf("epoch.settle: score: %w", err)
	}

	result, err := l.distributor.Distribute(ctx, e, stats)
	if err != nil {
		return fmt.Errorf("epoch.settle: distribute: %w", err)
	}
	if !result.AllConfirmed {
		slog.Warn("epoch distribution incomplete, will retry",
			"epoch", e.ID,
			"transfers", len(result.Transfers),
			"pending", countNotConfirmed(result.Transfers),
		)
		return nil
	}

	// PAID estrictamente después de observar CONFIRMED en todas.
	paid, err := e.Transition(domain.EpochPaid)
	if err != nil {
		return fmt.Errorf("epoch.settle: %w", err)
	}
	if err := l.store.TransitionEpoch(ctx, e.ID, e.Status, paid.Status); err != nil {
		if errors.Is(err, ports.ErrStaleTransition) {
			return nil // otro tick llegó primero
		}
		return fmt.Errorf("epoch.settle: mark paid: %w", err)
	}
	slog.Info("epoch paid", "epoch", e.ID, "transfers", len(result.Transfers))

	if l.notifier != nil {
		report := ports.EpochReport{Epoch: paid, Stats: stats, Transfers: result.Transfers}
		if err := l.notifier.NotifyEpoch(ctx, report); err != nil {
			slog.Warn("epoch notification failed", "epoch", e.ID, "err", err)
		}
	}
	return nil
}

func countNotConfirmed(transfers []domain.RewardTransfer) int {
	n := 0
	for _, t := range transfers {
		if t.Status != domain.TransferConfirmed {
			n++
		}
	}
	return n
}
