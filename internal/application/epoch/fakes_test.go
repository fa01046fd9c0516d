package epoch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/arena/internal/adapters/storage"
	"github.com/alejandrodnm/arena/internal/ports"
)

// fakeTreasury simula el servicio de transferencias con fallos programables.
type fakeTreasury struct {
	calls          map[string]int // wallet → nº de Transfer
	failWallets    map[string]bool
	timeoutWallets map[string]bool
	verified       map[string]bool // signature → resultado de Verify
	seq            int
}

func newFakeTreasury() *fakeTreasury {
	return &fakeTreasury{
		calls:          make(map[string]int),
		failWallets:    make(map[string]bool),
		timeoutWallets: make(map[string]bool),
		verified:       make(map[string]bool),
	}
}

func (f *fakeTreasury) Transfer(_ context.Context, dest string, _ float64) (ports.TransferReceipt, error) {
	f.calls[dest]++
	if f.failWallets[dest] {
		return ports.TransferReceipt{}, fmt.Errorf("treasury unavailable")
	}
	f.seq++
	sig := fmt.Sprintf("tx-%d", f.seq)
	if f.timeoutWallets[dest] {
		// El envío salió pero la confirmación no llegó a tiempo.
		return ports.TransferReceipt{TxSignature: sig}, context.DeadlineExceeded
	}
	f.verified[sig] = true
	return ports.TransferReceipt{TxSignature: sig, Confirmed: true}, nil
}

func (f *fakeTreasury) Verify(_ context.Context, sig string) (bool, error) {
	return f.verified[sig], nil
}

// fakeLock es un TickLock local sin contención real.
type fakeLock struct {
	allow    bool
	acquired int
	released int
}

func (f *fakeLock) TryAcquire(context.Context, time.Duration) (bool, error) {
	f.acquired++
	return f.allow, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.released++
	return nil
}

// fakeNotifier cuenta los cierres de epoch notificados.
type fakeNotifier struct {
	reports []ports.EpochReport
}

func (f *fakeNotifier) NotifyEpoch(_ context.Context, r ports.EpochReport) error {
	f.reports = append(f.reports, r)
	return nil
}

func newEpochTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
