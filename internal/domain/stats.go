package domain

// MetricSet son las métricas agregadas de un agente en un epoch, calculadas
// por el ledger externo. El core las trata como reales opacos >= 0.
type MetricSet struct {
	Sortino        float64
	WinRate        float64
	Consistency    float64
	RecoveryFactor float64
	Volume         float64
}

// AgentEpochStat es el resultado del scoring de un agente al cierre de epoch.
// Se calcula una sola vez y el recálculo es determinista: mismo ledger,
// mismos valores y mismo rank.
type AgentEpochStat struct {
	AgentID         string
	EpochID         int64
	Sortino         float64
	WinRate         float64
	Consistency     float64
	RecoveryFactor  float64
	Volume          float64
	NormalizedScore float64
	Rank            int
}
