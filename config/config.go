package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del motor de competición.
type Config struct {
	Epoch    EpochConfig    `yaml:"epoch"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Rewards  RewardsConfig  `yaml:"rewards"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Chain    ChainConfig    `yaml:"chain"`
	Treasury TreasuryConfig `yaml:"treasury"`
	Redis    RedisConfig    `yaml:"redis"`
	Bus      BusConfig      `yaml:"bus"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// EpochConfig controla la duración de los epochs y el scheduler.
type EpochConfig struct {
	DurationMinutes int `yaml:"duration_minutes"`
	TickSeconds     int `yaml:"tick_seconds"`
	LeaseTTLSeconds int `yaml:"lease_ttl_seconds"` // debe ser < tick_seconds
}

// ScoringConfig contiene los pesos del score compuesto.
// Deben sumar 1.0 — se valida en el arranque.
type ScoringConfig struct {
	WeightSortino        float64 `yaml:"weight_sortino"`
	WeightWinRate        float64 `yaml:"weight_win_rate"`
	WeightConsistency    float64 `yaml:"weight_consistency"`
	WeightRecoveryFactor float64 `yaml:"weight_recovery_factor"`
	WeightVolume         float64 `yaml:"weight_volume"`
}

// RewardsConfig controla el pool y la tabla de multiplicadores por rank.
type RewardsConfig struct {
	PoolSizeUSDC           float64   `yaml:"pool_size_usdc"`
	BaseAllocationPerAgent float64   `yaml:"base_allocation_per_agent"`
	RankMultipliers        []float64 `yaml:"rank_multipliers"` // rank 1..N; el último actúa de floor
	AdjustmentFloor        float64   `yaml:"adjustment_floor"` // mínimo del performance adjustment
	ConfirmTimeoutSeconds  int       `yaml:"confirm_timeout_seconds"`
}

// WatcherConfig controla las suscripciones de wallets y la reconexión.
type WatcherConfig struct {
	CapacityPerConnection int     `yaml:"capacity_per_connection"`
	InitialBackoffSeconds int     `yaml:"initial_backoff_seconds"`
	MaxBackoffSeconds     int     `yaml:"max_backoff_seconds"`
	BackoffJitterPct      float64 `yaml:"backoff_jitter_pct"`
	StableResetSeconds    int     `yaml:"stable_reset_seconds"`
	DedupCacheSize        int     `yaml:"dedup_cache_size"`
	RegistrySyncSeconds   int     `yaml:"registry_sync_seconds"`
}

// ChainConfig contiene el endpoint del stream de logs on-chain.
type ChainConfig struct {
	WSURL string `yaml:"ws_url"`
}

// TreasuryConfig contiene el endpoint del servicio de transferencias.
type TreasuryConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"` // normalmente via TREASURY_API_KEY en .env
}

// RedisConfig contiene la conexión a Redis (registry de agentes + lease del tick).
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	RegistryKey string `yaml:"registry_key"`
	LockKey     string `yaml:"lock_key"`
}

// BusConfig controla la republicación de trade events en Kafka.
// Sin brokers configurados la republicación queda desactivada.
type BusConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// La configuración devuelta ya está validada — un error aquí debe ser fatal.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba las invariantes de configuración que deben fallar en el
// arranque, nunca en runtime: pesos que no suman 1.0, capacidad no positiva,
// backoff invertido, tabla de multiplicadores vacía.
func (c *Config) Validate() error {
	sum := c.Scoring.WeightSortino + c.Scoring.WeightWinRate + c.Scoring.WeightConsistency +
		c.Scoring.WeightRecoveryFactor + c.Scoring.WeightVolume
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum 1.0, got %.6f", sum)
	}
	if c.Watcher.CapacityPerConnection <= 0 {
		return fmt.Errorf("watcher capacity_per_connection must be > 0, got %d", c.Watcher.CapacityPerConnection)
	}
	if c.Watcher.InitialBackoffSeconds <= 0 || c.Watcher.MaxBackoffSeconds < c.Watcher.InitialBackoffSeconds {
		return fmt.Errorf("watcher backoff bounds invalid: initial=%ds max=%ds",
			c.Watcher.InitialBackoffSeconds, c.Watcher.MaxBackoffSeconds)
	}
	if c.Watcher.BackoffJitterPct < 0 || c.Watcher.BackoffJitterPct >= 1 {
		return fmt.Errorf("watcher backoff_jitter_pct must be in [0,1), got %.2f", c.Watcher.BackoffJitterPct)
	}
	if c.Watcher.DedupCacheSize <= 0 {
		return fmt.Errorf("watcher dedup_cache_size must be > 0, got %d", c.Watcher.DedupCacheSize)
	}
	if c.Rewards.PoolSizeUSDC <= 0 || c.Rewards.BaseAllocationPerAgent <= 0 {
		return fmt.Errorf("rewards pool_size_usdc and base_allocation_per_agent must be > 0")
	}
	if len(c.Rewards.RankMultipliers) == 0 {
		return fmt.Errorf("rewards rank_multipliers must not be empty")
	}
	for i, m := range c.Rewards.RankMultipliers {
		if m <= 0 {
			return fmt.Errorf("rewards rank_multipliers[%d] must be > 0, got %.2f", i, m)
		}
	}
	if c.Rewards.AdjustmentFloor <= 0 || c.Rewards.AdjustmentFloor > 1 {
		return fmt.Errorf("rewards adjustment_floor must be in (0,1], got %.2f", c.Rewards.AdjustmentFloor)
	}
	if c.Epoch.DurationMinutes <= 0 {
		return fmt.Errorf("epoch duration_minutes must be > 0, got %d", c.Epoch.DurationMinutes)
	}
	if c.Epoch.LeaseTTLSeconds >= c.Epoch.TickSeconds {
		// Un holder que muere no debe bloquear ticks futuros: el lease
		// expira antes del siguiente tick.
		return fmt.Errorf("epoch lease_ttl_seconds (%d) must be < tick_seconds (%d)",
			c.Epoch.LeaseTTLSeconds, c.Epoch.TickSeconds)
	}
	return nil
}

// TickInterval devuelve el intervalo del scheduler como time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Epoch.TickSeconds) * time.Second
}

// LeaseTTL devuelve el TTL del lease distribuido del tick.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Epoch.LeaseTTLSeconds) * time.Second
}

// EpochDuration devuelve la duración de cada epoch.
func (c *Config) EpochDuration() time.Duration {
	return time.Duration(c.Epoch.DurationMinutes) * time.Minute
}

// ConfirmTimeout devuelve el máximo de espera por confirmación de una
// transferencia antes de tratarla como FAILED.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Rewards.ConfirmTimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CHAIN_WS_URL"); v != "" {
		cfg.Chain.WSURL = v
	}
	if v := os.Getenv("TREASURY_API_KEY"); v != "" {
		cfg.Treasury.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Bus.Brokers = strings.Split(v, ",")
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Defaults documentados del producto: capacidad 100 wallets/conexión,
// backoff 5s→30s con jitter ±20%, pesos 0.40/0.20/0.15/0.15/0.10,
// multiplicadores 2.0/1.5/1.0/0.75/0.5 y floor de adjustment 0.5.
func setDefaults(cfg *Config) {
	if cfg.Epoch.DurationMinutes == 0 {
		cfg.Epoch.DurationMinutes = 7 * 24 * 60 // epochs semanales
	}
	if cfg.Epoch.TickSeconds == 0 {
		cfg.Epoch.TickSeconds = 60
	}
	if cfg.Epoch.LeaseTTLSeconds == 0 {
		cfg.Epoch.LeaseTTLSeconds = 45
	}
	if cfg.Scoring == (ScoringConfig{}) {
		cfg.Scoring = ScoringConfig{
			WeightSortino:        0.40,
			WeightWinRate:        0.20,
			WeightConsistency:    0.15,
			WeightRecoveryFactor: 0.15,
			WeightVolume:         0.10,
		}
	}
	if cfg.Rewards.PoolSizeUSDC == 0 {
		cfg.Rewards.PoolSizeUSDC = 1000
	}
	if cfg.Rewards.BaseAllocationPerAgent == 0 {
		cfg.Rewards.BaseAllocationPerAgent = 200
	}
	if len(cfg.Rewards.RankMultipliers) == 0 {
		cfg.Rewards.RankMultipliers = []float64{2.0, 1.5, 1.0, 0.75, 0.5}
	}
	if cfg.Rewards.AdjustmentFloor == 0 {
		cfg.Rewards.AdjustmentFloor = 0.5
	}
	if cfg.Rewards.ConfirmTimeoutSeconds == 0 {
		cfg.Rewards.ConfirmTimeoutSeconds = 90
	}
	if cfg.Watcher.CapacityPerConnection == 0 {
		cfg.Watcher.CapacityPerConnection = 100
	}
	if cfg.Watcher.InitialBackoffSeconds == 0 {
		cfg.Watcher.InitialBackoffSeconds = 5
	}
	if cfg.Watcher.MaxBackoffSeconds == 0 {
		cfg.Watcher.MaxBackoffSeconds = 30
	}
	if cfg.Watcher.BackoffJitterPct == 0 {
		cfg.Watcher.BackoffJitterPct = 0.20
	}
	if cfg.Watcher.StableResetSeconds == 0 {
		cfg.Watcher.StableResetSeconds = 60
	}
	if cfg.Watcher.DedupCacheSize == 0 {
		cfg.Watcher.DedupCacheSize = 500
	}
	if cfg.Watcher.RegistrySyncSeconds == 0 {
		cfg.Watcher.RegistrySyncSeconds = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.RegistryKey == "" {
		cfg.Redis.RegistryKey = "arena:agents:verified"
	}
	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "arena:epoch:tick"
	}
	if cfg.Bus.Topic == "" {
		cfg.Bus.Topic = "arena.trades"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "arena.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
