package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
	"github.com/google/uuid"
)

// Config contiene la configuración del manager de suscripciones.
type Config struct {
	// Capacity es el máximo de direcciones por conexión (default 100).
	// Al llenarse una conexión se abre otra (first-fit).
	Capacity     int
	Backoff      domain.BackoffPolicy
	DedupSize    int
	RegistrySync time.Duration
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		Capacity:     100,
		Backoff:      domain.DefaultBackoffPolicy(),
		DedupSize:    500,
		RegistrySync: 30 * time.Second,
	}
}

// Handle identifica una suscripción activa de cara al caller.
type Handle string

var (
	// ErrNotStarted indica que el manager aún no tiene contexto base.
	ErrNotStarted = errors.New("watcher: manager not started")
	// ErrUnknownHandle indica un handle ya dado de baja o inexistente.
	ErrUnknownHandle = errors.New("watcher: unknown subscription handle")
)

// entry asocia handle, identidad y conexión de una wallet monitorizada.
type entry struct {
	handle   Handle
	identity domain.AgentIdentity
	sub      *domain.WalletSubscription
	conn     *connection
}

// Manager es el dueño de las conexiones al stream on-chain. Empaqueta
// direcciones en conexiones con capacidad acotada, reconecta con backoff,
// dedupe replays y reenvía los eventos normalizados al ledger y al bus.
type Manager struct {
	cfg       Config
	source    ports.ChainStream
	ledger    ports.TradeLedger
	publisher ports.TradePublisher // opcional, puede ser nil
	registry  ports.AgentRegistry  // opcional, puede ser nil
	directory ports.AgentDirectory // opcional, puede ser nil

	mu        sync.Mutex
	conns     []*connection
	byAddress map[string]*entry
	byHandle  map[Handle]*entry
	dedup     *sigCache
	ctx       context.Context
	wg        sync.WaitGroup
}

// New crea un Manager con todas las dependencias inyectadas. publisher,
// registry y directory son opcionales.
func New(cfg Config, source ports.ChainStream, ledger ports.TradeLedger,
	publisher ports.TradePublisher, registry ports.AgentRegistry, directory ports.AgentDirectory) *Manager {
	return &Manager{
		cfg:       cfg,
		source:    source,
		ledger:    ledger,
		publisher: publisher,
		registry:  registry,
		directory: directory,
		byAddress: make(map[string]*entry),
		byHandle:  make(map[Handle]*entry),
		dedup:     newSigCache(cfg.DedupSize),
	}
}

// Start fija el contexto base de los workers. Idempotente.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		m.ctx = ctx
	}
}

// Run arranca el manager y bloquea hasta que ctx se cancele: sincroniza el
// registry periódicamente (si hay registry) y espera a que los workers
// terminen al apagarse.
func (m *Manager) Run(ctx context.Context) error {
	m.Start(ctx)

	if m.registry != nil {
		m.syncRegistry(ctx)
		ticker := time.NewTicker(m.cfg.RegistrySync)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.wg.Wait()
				slog.Info("watcher stopped")
				return nil
			case <-ticker.C:
				m.syncRegistry(ctx)
			}
		}
	}

	<-ctx.Done()
	m.wg.Wait()
	slog.Info("watcher stopped")
	return nil
}

// Subscribe pone una wallet bajo monitorización. Si la wallet ya está
// suscrita devuelve el handle existente. First-fit: la dirección entra en la
// primera conexión con hueco; si todas están llenas se abre una nueva.
func (m *Manager) Subscribe(identity domain.AgentIdentity) (Handle, error) {
	if !identity.Valid() {
		return "", fmt.Errorf("watcher.Subscribe: invalid identity %+v", identity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return "", ErrNotStarted
	}
	if ent, ok := m.byAddress[identity.WalletAddress]; ok {
		return ent.handle, nil
	}

	conn := m.firstFitLocked()
	conn.addresses[identity.WalletAddress] = struct{}{}

	ent := &entry{
		handle:   Handle(uuid.New().String()),
		identity: identity,
		conn:     conn,
		sub: &domain.WalletSubscription{
			Address:      identity.WalletAddress,
			ConnectionID: conn.id,
			Chain:        identity.Chain,
		},
	}
	m.byAddress[identity.WalletAddress] = ent
	m.byHandle[ent.handle] = ent

	conn.poke()
	slog.Info("wallet subscribed",
		"agent", identity.AgentID,
		"wallet", identity.WalletAddress,
		"conn", conn.id,
		"conn_size", len(conn.addresses),
	)
	return ent.handle, nil
}

// Unsubscribe da de baja una suscripción. Seguro frente a entregas en vuelo:
// cuando retorna, no se entrega ningún evento más para ese handle (los
// eventos ya encolados aguas arriba se descartan al no resolver la wallet).
func (m *Manager) Unsubscribe(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.byHandle[h]
	if !ok {
		return ErrUnknownHandle
	}
	delete(m.byHandle, h)
	delete(m.byAddress, ent.identity.WalletAddress)
	delete(ent.conn.addresses, ent.identity.WalletAddress)
	ent.conn.poke()

	slog.Info("wallet unsubscribed", "wallet", ent.identity.WalletAddress, "conn", ent.conn.id)
	return nil
}

// Subscriptions devuelve una copia del estado de las suscripciones activas.
func (m *Manager) Subscriptions() []domain.WalletSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]domain.WalletSubscription, 0, len(m.byAddress))
	for _, ent := range m.byAddress {
		subs = append(subs, *ent.sub)
	}
	return subs
}

// ConnectionCount devuelve el número de conexiones abiertas.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// firstFitLocked devuelve la primera conexión con hueco, o abre una nueva.
// Caller sostiene m.mu.
func (m *Manager) firstFitLocked() *connection {
	for _, c := range m.conns {
		if len(c.addresses) < m.cfg.Capacity {
			return c
		}
	}
	c := newConnection(fmt.Sprintf("conn-%d", len(m.conns)+1), m)
	m.conns = append(m.conns, c)
	m.wg.Add(1)
	go c.run(m.ctx)
	slog.Info("connection opened", "conn", c.id, "total", len(m.conns))
	return c
}

// deliver procesa un evento entregado por una conexión: filtra wallets ya no
// suscritas, dedupe replays y escribe en ledger y bus. Un error en un evento
// se loguea y se descarta — nunca tumba al worker ni bloquea a otras wallets.
func (m *Manager) deliver(c *connection, e domain.TradeEvent) {
	if !e.Valid() {
		slog.Warn("dropping malformed trade event", "sig", e.TxSignature, "wallet", e.WalletAddress)
		return
	}

	m.mu.Lock()
	ent, ok := m.byAddress[e.WalletAddress]
	if !ok || ent.conn != c {
		// Wallet dada de baja (o movida de conexión) con el evento en vuelo.
		m.mu.Unlock()
		slog.Debug("dropping event for unwatched wallet", "wallet", e.WalletAddress)
		return
	}
	if m.dedup.Contains(e.TxSignature, e.WalletAddress) {
		m.mu.Unlock()
		slog.Debug("dropping duplicate event", "sig", e.TxSignature)
		return
	}
	ent.sub.LastEventAt = time.Now()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// La signature se cachea solo tras el write: si el ledger falla aquí, el
	// replay de la reconexión vuelve a intentarlo en vez de morir en la caché.
	if err := m.ledger.RecordTrade(ctx, e); err != nil {
		slog.Error("record trade failed", "sig", e.TxSignature, "err", err)
		return
	}
	m.mu.Lock()
	m.dedup.Add(e.TxSignature, e.WalletAddress)
	m.mu.Unlock()
	slog.Debug("trade recorded", "sig", e.TxSignature, "wallet", e.WalletAddress, "notional", e.Notional())
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, e); err != nil {
			// Best-effort: el bus caído no frena la ingesta.
			slog.Warn("trade republish failed", "sig", e.TxSignature, "err", err)
		}
	}
}

// snapshotAddresses devuelve el set vigente de direcciones de una conexión.
func (m *Manager) snapshotAddresses(c *connection) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs := make([]string, 0, len(c.addresses))
	for a := range c.addresses {
		addrs = append(addrs, a)
	}
	return addrs
}

// setStreamCancel registra el cancel del stream vigente de la conexión.
func (m *Manager) setStreamCancel(c *connection, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.cancelStream = cancel
}

// markDisconnect incrementa el contador de reconexiones de las wallets de la
// conexión caída.
func (m *Manager) markDisconnect(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr := range c.addresses {
		if ent, ok := m.byAddress[addr]; ok {
			ent.sub.ReconnectCount++
		}
	}
}

// syncRegistry reconcilia las suscripciones con el registry de identidades
// verificadas: alta de wallets nuevas, baja de las retiradas.
func (m *Manager) syncRegistry(ctx context.Context) {
	identities, err := m.registry.List(ctx)
	if err != nil {
		slog.Warn("registry sync failed", "err", err)
		return
	}

	wanted := make(map[string]domain.AgentIdentity, len(identities))
	for _, id := range identities {
		wanted[id.WalletAddress] = id
	}

	// Bajas primero: wallets monitorizadas que salieron del registry.
	m.mu.Lock()
	var stale []Handle
	for addr, ent := range m.byAddress {
		if _, ok := wanted[addr]; !ok {
			stale = append(stale, ent.handle)
		}
	}
	m.mu.Unlock()
	for _, h := range stale {
		if err := m.Unsubscribe(h); err != nil {
			slog.Warn("registry sync unsubscribe failed", "err", err)
		}
	}

	for _, id := range wanted {
		if m.directory != nil {
			if err := m.directory.UpsertAgent(ctx, id); err != nil {
				slog.Warn("agent upsert failed", "agent", id.AgentID, "err", err)
			}
		}
		if _, err := m.Subscribe(id); err != nil {
			slog.Warn("registry sync subscribe failed", "agent", id.AgentID, "err", err)
		}
	}
}
