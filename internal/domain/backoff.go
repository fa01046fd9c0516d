package domain

import "time"

// BackoffPolicy parametriza la reconexión de una conexión al stream on-chain:
// exponencial desde Initial, doblando hasta Max, con jitter ±JitterPct para
// evitar thundering-herd cuando muchas conexiones caen a la vez. Tras
// StableFor de conexión estable, el backoff se resetea a Initial.
type BackoffPolicy struct {
	Initial   time.Duration
	Max       time.Duration
	JitterPct float64
	StableFor time.Duration
}

// DefaultBackoffPolicy devuelve la política documentada: 5s→30s, ±20%, reset
// tras 60s estable.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Initial:   5 * time.Second,
		Max:       30 * time.Second,
		JitterPct: 0.20,
		StableFor: 60 * time.Second,
	}
}

// Backoff es el estado de reconexión de una conexión, avanzado por funciones
// puras para que el comportamiento sea testeable sin que pase tiempo real.
type Backoff struct {
	Attempt     int
	NextRetryAt time.Time
}

// Next avanza el estado tras un fallo en now. jitter debe estar en [-1,1]
// (el caller pasa el valor aleatorio; la función es determinista).
func (b Backoff) Next(p BackoffPolicy, now time.Time, jitter float64) Backoff {
	shift := b.Attempt
	if shift > 16 { // el doblado ya saturó Max hace mucho; evita overflow
		shift = 16
	}
	delay := p.Initial << shift
	if delay > p.Max || delay <= 0 {
		delay = p.Max
	}
	delay += time.Duration(float64(delay) * p.JitterPct * jitter)

	return Backoff{
		Attempt:     b.Attempt + 1,
		NextRetryAt: now.Add(delay),
	}
}

// ResetIfStable devuelve el estado reseteado si la conexión lleva estable
// desde connectedAt al menos p.StableFor; si no, devuelve b sin cambios.
func (b Backoff) ResetIfStable(p BackoffPolicy, connectedAt, now time.Time) Backoff {
	if connectedAt.IsZero() || now.Sub(connectedAt) < p.StableFor {
		return b
	}
	return Backoff{}
}
