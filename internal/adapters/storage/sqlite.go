package storage

// sqlite.go — persistencia del core: trades, epochs, stats y transferencias.
//
// Decisiones:
//   - `trades` con PRIMARY KEY tx_signature e INSERT OR IGNORE: la ingesta es
//     idempotente por construcción, replays de reconexión no duplican filas.
//   - `epochs` nunca se borra (audit trail); las transiciones de estado van
//     con UPDATE ... WHERE status = ? para que sean guardadas e idempotentes.
//   - `agent_epoch_metrics` la escribe el job externo de analytics; el core
//     solo la lee como reales opacos.
//   - `reward_transfers` con PK (epoch_id, agent_id): un retry de distribución
//     reutiliza las filas existentes, jamás las recrea.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
-- Identidades verificadas (output del servicio de autenticación)
CREATE TABLE IF NOT EXISTS agents (
    agent_id   TEXT PRIMARY KEY,
    wallet     TEXT NOT NULL UNIQUE,
    chain      TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

-- Trades observados, inmutables, clave natural = tx_signature
CREATE TABLE IF NOT EXISTS trades (
    tx_signature TEXT PRIMARY KEY,
    wallet       TEXT NOT NULL,
    token_mint   TEXT NOT NULL DEFAULT '',
    action       TEXT NOT NULL,
    quantity     REAL NOT NULL,
    price        REAL NOT NULL,
    ts           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS epochs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    status          TEXT NOT NULL,
    start_at        DATETIME NOT NULL,
    end_at          DATETIME NOT NULL,
    pool_size       REAL NOT NULL,
    base_allocation REAL NOT NULL
);

-- Métricas agregadas por agente/epoch, calculadas por el colaborador externo
CREATE TABLE IF NOT EXISTS agent_epoch_metrics (
    agent_id        TEXT NOT NULL,
    epoch_id        INTEGER NOT NULL,
    sortino         REAL NOT NULL DEFAULT 0,
    win_rate        REAL NOT NULL DEFAULT 0,
    consistency     REAL NOT NULL DEFAULT 0,
    recovery_factor REAL NOT NULL DEFAULT 0,
    volume          REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (agent_id, epoch_id)
);

CREATE TABLE IF NOT EXISTS agent_epoch_stats (
    agent_id         TEXT NOT NULL,
    epoch_id         INTEGER NOT NULL,
    sortino          REAL NOT NULL DEFAULT 0,
    win_rate         REAL NOT NULL DEFAULT 0,
    consistency      REAL NOT NULL DEFAULT 0,
    recovery_factor  REAL NOT NULL DEFAULT 0,
    volume           REAL NOT NULL DEFAULT 0,
    normalized_score REAL NOT NULL DEFAULT 0,
    rank             INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (agent_id, epoch_id)
);

CREATE TABLE IF NOT EXISTS reward_transfers (
    epoch_id     INTEGER NOT NULL,
    agent_id     TEXT NOT NULL,
    wallet       TEXT NOT NULL DEFAULT '',
    amount       REAL NOT NULL,
    status       TEXT NOT NULL,
    tx_signature TEXT NOT NULL DEFAULT '',
    updated_at   DATETIME NOT NULL,
    PRIMARY KEY (epoch_id, agent_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet, ts);
CREATE INDEX IF NOT EXISTS idx_epochs_status ON epochs(status);
CREATE INDEX IF NOT EXISTS idx_stats_epoch   ON agent_epoch_stats(epoch_id, rank);
`

// Store implementa ports.TradeLedger y ports.EpochStore sobre SQLite
// (driver pure Go, sin CGo).
type Store struct {
	db *sql.DB
}

// NewStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewStore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close cierra la conexión a la base de datos limpiamente.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- ports.TradeLedger ---

// RecordTrade ingesta un trade de forma idempotente: la misma tx_signature
// dos veces deja exactamente una fila.
func (s *Store) RecordTrade(ctx context.Context, e domain.TradeEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades (tx_signature, wallet, token_mint, action, quantity, price, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TxSignature, e.WalletAddress, e.TokenMint, string(e.Action), e.Quantity, e.Price, e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordTrade: %w", err)
	}
	return nil
}

// EpochMetrics lee las métricas agregadas de un agente. Sin fila registrada
// devuelve el MetricSet cero (el agente no operó o analytics aún no corrió).
func (s *Store) EpochMetrics(ctx context.Context, agentID string, epochID int64) (domain.MetricSet, error) {
	var m domain.MetricSet
	err := s.db.QueryRowContext(ctx, `
		SELECT sortino, win_rate, consistency, recovery_factor, volume
		FROM agent_epoch_metrics WHERE agent_id = ? AND epoch_id = ?`,
		agentID, epochID,
	).Scan(&m.Sortino, &m.WinRate, &m.Consistency, &m.RecoveryFactor, &m.Volume)
	if err == sql.ErrNoRows {
		return domain.MetricSet{}, nil
	}
	if err != nil {
		return domain.MetricSet{}, fmt.Errorf("storage.EpochMetrics: %w", err)
	}
	return m, nil
}

// UpsertMetrics escribe las métricas de un agente en un epoch. Es la vía de
// entrada del job de analytics (y de los tests).
func (s *Store) UpsertMetrics(ctx context.Context, agentID string, epochID int64, m domain.MetricSet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_epoch_metrics (agent_id, epoch_id, sortino, win_rate, consistency, recovery_factor, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, epoch_id) DO UPDATE SET
			sortino = excluded.sortino,
			win_rate = excluded.win_rate,
			consistency = excluded.consistency,
			recovery_factor = excluded.recovery_factor,
			volume = excluded.volume`,
		agentID, epochID, m.Sortino, m.WinRate, m.Consistency, m.RecoveryFactor, m.Volume,
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertMetrics: %w", err)
	}
	return nil
}

// --- ports.EpochStore ---

// CreateEpoch inserta un epoch nuevo y devuelve su ID.
func (s *Store) CreateEpoch(ctx context.Context, e domain.Epoch) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO epochs (status, start_at, end_at, pool_size, base_allocation)
		VALUES (?, ?, ?, ?, ?)`,
		string(e.Status), e.StartAt.UTC(), e.EndAt.UTC(), e.PoolSize, e.BaseAllocationPerAgent,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.CreateEpoch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.CreateEpoch: last insert id: %w", err)
	}
	return id, nil
}

// EpochByID devuelve un epoch por ID.
func (s *Store) EpochByID(ctx context.Context, id int64) (domain.Epoch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, start_at, end_at, pool_size, base_allocation
		FROM epochs WHERE id = ?`, id)
	return scanEpoch(row)
}

// UnfinishedEpochs devuelve los epochs que aún no llegaron a PAID.
func (s *Store) UnfinishedEpochs(ctx context.Context) ([]domain.Epoch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, start_at, end_at, pool_size, base_allocation
		FROM epochs WHERE status != ? ORDER BY start_at ASC`,
		string(domain.EpochPaid),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.UnfinishedEpochs: %w", err)
	}
	defer rows.Close()

	var epochs []domain.Epoch
	for rows.Next() {
		e, err := scanEpoch(rows)
		if err != nil {
			return nil, err
		}
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// TransitionEpoch aplica una transición de estado guardada. Si la fila ya no
// está en from devuelve ports.ErrStaleTransition — otro tick llegó primero.
func (s *Store) TransitionEpoch(ctx context.Context, id int64, from, to domain.EpochStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE epochs SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("storage.TransitionEpoch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.TransitionEpoch: rows affected: %w", err)
	}
	if n == 0 {
		return ports.ErrStaleTransition
	}
	return nil
}

// SaveStats persiste los stats de un epoch. Upsert determinista: re-ejecutar
// el scoring con el mismo ledger deja exactamente las mismas filas.
func (s *Store) SaveStats(ctx context.Context, stats []domain.AgentEpochStat) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveStats: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_epoch_stats
			(agent_id, epoch_id, sortino, win_rate, consistency, recovery_factor, volume, normalized_score, rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, epoch_id) DO UPDATE SET
			sortino = excluded.sortino,
			win_rate = excluded.win_rate,
			consistency = excluded.consistency,
			recovery_factor = excluded.recovery_factor,
			volume = excluded.volume,
			normalized_score = excluded.normalized_score,
			rank = excluded.rank`)
	if err != nil {
		return fmt.Errorf("storage.SaveStats: prepare: %w", err)
	}
	defer stmt.Close()

	for _, st := range stats {
		if _, err := stmt.ExecContext(ctx,
			st.AgentID, st.EpochID, st.Sortino, st.WinRate, st.Consistency,
			st.RecoveryFactor, st.Volume, st.NormalizedScore, st.Rank,
		); err != nil {
			return fmt.Errorf("storage.SaveStats: upsert %s: %w", st.AgentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveStats: commit: %w", err)
	}
	return nil
}

// StatsForEpoch devuelve los stats ordenados por rank ascendente.
func (s *Store) StatsForEpoch(ctx context.Context, epochID int64) ([]domain.AgentEpochStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, epoch_id, sortino, win_rate, consistency, recovery_factor, volume, normalized_score, rank
		FROM agent_epoch_stats WHERE epoch_id = ? ORDER BY rank ASC`, epochID)
	if err != nil {
		return nil, fmt.Errorf("storage.StatsForEpoch: %w", err)
	}
	defer rows.Close()

	var stats []domain.AgentEpochStat
	for rows.Next() {
		var st domain.AgentEpochStat
		if err := rows.Scan(&st.AgentID, &st.EpochID, &st.Sortino, &st.WinRate,
			&st.Consistency, &st.RecoveryFactor, &st.Volume, &st.NormalizedScore, &st.Rank); err != nil {
			return nil, fmt.Errorf("storage.StatsForEpoch: scan: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// CohortForEpoch devuelve agentID → wallet para los agentes con métricas en
// el epoch. El cohort lo define el ledger: quien no tiene métricas no compite.
func (s *Store) CohortForEpoch(ctx context.Context, epochID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.agent_id, COALESCE(a.wallet, '')
		FROM agent_epoch_metrics m
		LEFT JOIN agents a ON a.agent_id = m.agent_id
		WHERE m.epoch_id = ?`, epochID)
	if err != nil {
		return nil, fmt.Errorf("storage.CohortForEpoch: %w", err)
	}
	defer rows.Close()

	cohort := make(map[string]string)
	for rows.Next() {
		var agentID, wallet string
		if err := rows.Scan(&agentID, &wallet); err != nil {
			return nil, fmt.Errorf("storage.CohortForEpoch: scan: %w", err)
		}
		cohort[agentID] = wallet
	}
	return cohort, rows.Err()
}

// SaveTransfers inserta transferencias nuevas. INSERT OR IGNORE: las filas
// existentes (de un intento anterior de distribución) no se tocan.
func (s *Store) SaveTransfers(ctx context.Context, transfers []domain.RewardTransfer) error {
	if len(transfers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveTransfers: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range transfers {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO reward_transfers (epoch_id, agent_id, wallet, amount, status, tx_signature, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.EpochID, t.AgentID, t.Wallet, t.Amount, string(t.Status), t.TxSignature, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("storage.SaveTransfers: insert %s: %w", t.AgentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveTransfers: commit: %w", err)
	}
	return nil
}

// TransfersForEpoch devuelve las transferencias en orden estable (agent_id).
func (s *Store) TransfersForEpoch(ctx context.Context, epochID int64) ([]domain.RewardTransfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT epoch_id, agent_id, wallet, amount, status, tx_signature, updated_at
		FROM reward_transfers WHERE epoch_id = ? ORDER BY agent_id ASC`, epochID)
	if err != nil {
		return nil, fmt.Errorf("storage.TransfersForEpoch: %w", err)
	}
	defer rows.Close()

	var transfers []domain.RewardTransfer
	for rows.Next() {
		var t domain.RewardTransfer
		var status string
		if err := rows.Scan(&t.EpochID, &t.AgentID, &t.Wallet, &t.Amount, &status, &t.TxSignature, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage.TransfersForEpoch: scan: %w", err)
		}
		t.Status = domain.TransferStatus(status)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// UpdateTransfer persiste estado y tx_signature de una transferencia, guardado
// sobre el estado previo: si la fila ya no está en from (otra instancia entró
// con el lease expirado y la avanzó) devuelve ports.ErrStaleTransition y no
// toca nada. Una fila CONFIRMED no puede ser pisada jamás.
func (s *Store) UpdateTransfer(ctx context.Context, t domain.RewardTransfer, from domain.TransferStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reward_transfers SET status = ?, tx_signature = ?, updated_at = ?
		WHERE epoch_id = ? AND agent_id = ? AND status = ?`,
		string(t.Status), t.TxSignature, time.Now().UTC(), t.EpochID, t.AgentID, string(from),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateTransfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.UpdateTransfer: rows affected: %w", err)
	}
	if n == 0 {
		return ports.ErrStaleTransition
	}
	return nil
}

// UpsertAgent registra una identidad verificada.
func (s *Store) UpsertAgent(ctx context.Context, id domain.AgentIdentity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, wallet, chain, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET wallet = excluded.wallet, chain = excluded.chain`,
		id.AgentID, id.WalletAddress, id.Chain, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertAgent: %w", err)
	}
	return nil
}

// AgentByWallet resuelve la identidad dueña de una wallet.
func (s *Store) AgentByWallet(ctx context.Context, wallet string) (domain.AgentIdentity, error) {
	var id domain.AgentIdentity
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, wallet, chain FROM agents WHERE wallet = ?`, wallet,
	).Scan(&id.AgentID, &id.WalletAddress, &id.Chain)
	if err == sql.ErrNoRows {
		return domain.AgentIdentity{}, fmt.Errorf("storage.AgentByWallet: unknown wallet %q", wallet)
	}
	if err != nil {
		return domain.AgentIdentity{}, fmt.Errorf("storage.AgentByWallet: %w", err)
	}
	return id, nil
}

// scanEpoch lee un epoch desde una fila.
func scanEpoch(row interface{ Scan(...any) error }) (domain.Epoch, error) {
	var e domain.Epoch
	var status string
	if err := row.Scan(&e.ID, &status, &e.StartAt, &e.EndAt, &e.PoolSize, &e.BaseAllocationPerAgent); err != nil {
		return domain.Epoch{}, fmt.Errorf("storage.scanEpoch: %w", err)
	}
	e.Status = domain.EpochStatus(status)
	return e, nil
}
