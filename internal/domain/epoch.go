package domain

import (
	"fmt"
	"time"
)

// EpochStatus es el estado del ciclo de vida de un epoch.
// Las transiciones son monótonas: un epoch nunca regresa de estado.
type EpochStatus string

const (
	EpochUpcoming EpochStatus = "UPCOMING"
	EpochActive   EpochStatus = "ACTIVE"
	EpochEnded    EpochStatus = "ENDED"
	EpochPaid     EpochStatus = "PAID"
)

// ordinal devuelve la posición del estado en el ciclo de vida.
// Estados desconocidos quedan por debajo de UPCOMING.
func (s EpochStatus) ordinal() int {
	switch s {
	case EpochUpcoming:
		return 1
	case EpochActive:
		return 2
	case EpochEnded:
		return 3
	case EpochPaid:
		return 4
	}
	return 0
}

// Next devuelve el estado que sigue a s en el ciclo de vida; PAID es terminal
// y se devuelve a sí mismo.
func (s EpochStatus) Next() EpochStatus {
	switch s {
	case EpochUpcoming:
		return EpochActive
	case EpochActive:
		return EpochEnded
	case EpochEnded:
		return EpochPaid
	}
	return s
}

// Before informa si s precede a other en el ciclo de vida.
func (s EpochStatus) Before(other EpochStatus) bool {
	return s.ordinal() < other.ordinal()
}

// Epoch es una ventana de competición de duración fija. Se crea por schedule,
// lo muta solo el lifecycle manager y nunca se borra (audit trail).
type Epoch struct {
	ID                     int64
	Status                 EpochStatus
	StartAt                time.Time
	EndAt                  time.Time
	PoolSize               float64
	BaseAllocationPerAgent float64
}

// CanTransition devuelve true si pasar a next respeta la monotonía del FSM.
// Avanzar a un estado ya alcanzado es un no-op válido (idempotencia), pero
// nunca se permite retroceder ni saltar estados.
func (e Epoch) CanTransition(next EpochStatus) bool {
	cur, nxt := e.Status.ordinal(), next.ordinal()
	if nxt == 0 {
		return false
	}
	return nxt == cur || nxt == cur+1
}

// Transition devuelve una copia del epoch en el estado next, o error si la
// transición viola la monotonía. Es la única vía para mutar Status.
func (e Epoch) Transition(next EpochStatus) (Epoch, error) {
	if !e.CanTransition(next) {
		return e, fmt.Errorf("domain.Transition: epoch %d: %s -> %s not allowed", e.ID, e.Status, next)
	}
	e.Status = next
	return e, nil
}

// DueStatus devuelve el estado que el reloj exige para este epoch:
// ACTIVE cuando now >= StartAt, ENDED cuando now >= EndAt. No considera PAID —
// esa transición depende de las transferencias, no del tiempo.
func (e Epoch) DueStatus(now time.Time) EpochStatus {
	switch {
	case !now.Before(e.EndAt):
		return EpochEnded
	case !now.Before(e.StartAt):
		return EpochActive
	default:
		return EpochUpcoming
	}
}
