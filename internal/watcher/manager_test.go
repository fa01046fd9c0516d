package watcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

// fakeStream registra los handlers de cada Stream abierto y bloquea hasta que
// el ctx se cancele, como haría la conexión websocket real.
type fakeStream struct {
	mu       sync.Mutex
	handlers []ports.EventHandler
}

func (f *fakeStream) Stream(ctx context.Context, _ []string, h ports.EventHandler) error {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeStream) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// emit entrega un evento por el último stream abierto.
func (f *fakeStream) emit(e domain.TradeEvent) {
	f.mu.Lock()
	h := f.handlers[len(f.handlers)-1]
	f.mu.Unlock()
	h(e)
}

type fakeLedger struct {
	mu     sync.Mutex
	trades []domain.TradeEvent
}

func (f *fakeLedger) RecordTrade(_ context.Context, e domain.TradeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, e)
	return nil
}

func (f *fakeLedger) EpochMetrics(context.Context, string, int64) (domain.MetricSet, error) {
	return domain.MetricSet{}, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

// flakyLedger falla las primeras failures escrituras y luego delega.
type flakyLedger struct {
	fakeLedger
	failures int
	attempts int
}

func (f *flakyLedger) RecordTrade(ctx context.Context, e domain.TradeEvent) error {
	f.attempts++
	if f.attempts <= f.failures {
		return fmt.Errorf("ledger unavailable")
	}
	return f.fakeLedger.RecordTrade(ctx, e)
}

func testIdentity(i int) domain.AgentIdentity {
	return domain.AgentIdentity{
		AgentID:       fmt.Sprintf("agent-%d", i),
		WalletAddress: fmt.Sprintf("wallet-%d", i),
		Chain:         "solana",
	}
}

func newTestManager(t *testing.T, capacity int) (*Manager, *fakeStream, *fakeLedger) {
	t.Helper()
	stream := &fakeStream{}
	ledger := &fakeLedger{}

	cfg := DefaultConfig()
	cfg.Capacity = capacity
	m := New(cfg, stream, ledger, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)
	return m, stream, ledger
}

func TestManager_SubscribeBeforeStart(t *testing.T) {
	m := New(DefaultConfig(), &fakeStream{}, &fakeLedger{}, nil, nil, nil)
	_, err := m.Subscribe(testIdentity(1))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestManager_SubscribeRejectsInvalidIdentity(t *testing.T) {
	m, _, _ := newTestManager(t, 100)
	_, err := m.Subscribe(domain.AgentIdentity{AgentID: "a"})
	assert.Error(t, err)
}

func TestManager_FirstFitPacking(t *testing.T) {
	// Capacidad 2: la tercera wallet fuerza una segunda conexión, la cuarta
	// rellena el hueco, la quinta abre la tercera.
	m, _, _ := newTestManager(t, 2)

	for i := 1; i <= 2; i++ {
		_, err := m.Subscribe(testIdentity(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, m.ConnectionCount())

	_, err := m.Subscribe(testIdentity(3))
	require.NoError(t, err)
	assert.Equal(t, 2, m.ConnectionCount())

	_, err = m.Subscribe(testIdentity(4))
	require.NoError(t, err)
	assert.Equal(t, 2, m.ConnectionCount())

	_, err = m.Subscribe(testIdentity(5))
	require.NoError(t, err)
	assert.Equal(t, 3, m.ConnectionCount())

	assert.Len(t, m.Subscriptions(), 5)
}

func TestManager_SubscribeSameWalletReturnsSameHandle(t *testing.T) {
	m, _, _ := newTestManager(t, 100)

	h1, err := m.Subscribe(testIdentity(1))
	require.NoError(t, err)
	h2, err := m.Subscribe(testIdentity(1))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, m.Subscriptions(), 1)
	assert.Equal(t, 1, m.ConnectionCount())
}

func TestManager_DeliverRecordsTrade(t *testing.T) {
	m, stream, ledger := newTestManager(t, 100)

	_, err := m.Subscribe(testIdentity(1))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return stream.streamCount() > 0 },
		2*time.Second, 10*time.Millisecond)

	stream.emit(domain.TradeEvent{
		WalletAddress: "wallet-1",
		TxSignature:   "sig-1",
		TokenMint:     "mint",
		Action:        domain.ActionBuy,
		Quantity:      10,
		Price:         1.5,
		Timestamp:     time.Now(),
	})
	assert.Equal(t, 1, ledger.count())
}

func TestManager_DuplicateEventRecordedOnce(t *testing.T) {
	m, stream, ledger := newTestManager(t, 100)

	_, err := m.Subscribe(testIdentity(1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return stream.streamCount() > 0 },
		2*time.Second, 10*time.Millisecond)

	event := domain.TradeEvent{
		WalletAddress: "wallet-1",
		TxSignature:   "sig-dup",
		Action:        domain.ActionSell,
		Quantity:      3,
		Price:         2,
		Timestamp:     time.Now(),
	}
	// Replay tras reconexión: la misma signature llega dos veces.
	stream.emit(event)
	stream.emit(event)

	assert.Equal(t, 1, ledger.count())
}

func TestManager_UnsubscribeStopsDelivery(t *testing.T) {
	m, stream, ledger := newTestManager(t, 100)

	h, err := m.Subscribe(testIdentity(1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return stream.streamCount() > 0 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Unsubscribe(h))

	// Evento en vuelo tras la baja: se descarta, no llega al ledger.
	stream.emit(domain.TradeEvent{
		WalletAddress: "wallet-1",
		TxSignature:   "sig-late",
		Action:        domain.ActionBuy,
		Quantity:      1,
		Price:         1,
		Timestamp:     time.Now(),
	})
	assert.Equal(t, 0, ledger.count())

	assert.ErrorIs(t, m.Unsubscribe(h), ErrUnknownHandle)
}

func TestManager_ReplayAfterLedgerErrorIsRecorded(t *testing.T) {
	// Un error transitorio del ledger no debe quemar la signature en la
	// caché: el replay de la reconexión tiene que llegar al ledger.
	stream := &fakeStream{}
	ledger := &flakyLedger{failures: 1}

	m := New(DefaultConfig(), stream, ledger, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)

	_, err := m.Subscribe(testIdentity(1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return stream.streamCount() > 0 },
		2*time.Second, 10*time.Millisecond)

	event := domain.TradeEvent{
		WalletAddress: "wallet-1",
		TxSignature:   "sig-retry",
		Action:        domain.ActionBuy,
		Quantity:      2,
		Price:         3,
		Timestamp:     time.Now(),
	}
	stream.emit(event) // primer write falla, el evento se descarta
	assert.Equal(t, 0, ledger.count())

	stream.emit(event) // replay: ya no es duplicado, se persiste
	assert.Equal(t, 1, ledger.count())
	assert.Equal(t, 2, ledger.attempts)

	// A partir de aquí sí es un duplicado de verdad.
	stream.emit(event)
	assert.Equal(t, 1, ledger.count())
	assert.Equal(t, 2, ledger.attempts)
}

func TestManager_MalformedEventDropped(t *testing.T) {
	m, stream, ledger := newTestManager(t, 100)

	_, err := m.Subscribe(testIdentity(1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return stream.streamCount() > 0 },
		2*time.Second, 10*time.Millisecond)

	stream.emit(domain.TradeEvent{WalletAddress: "wallet-1", TxSignature: "sig-x"})
	assert.Equal(t, 0, ledger.count())
}
