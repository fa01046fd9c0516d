package domain

import "time"

// AgentIdentity es la tupla verificada (agente, wallet, chain) que produce el
// servicio externo de autenticación. El core nunca implementa el handshake:
// consume identidades ya verificadas desde el registry.
type AgentIdentity struct {
	AgentID       string `json:"agent_id"`
	WalletAddress string `json:"wallet_address"`
	Chain         string `json:"chain"`
}

// Valid devuelve true si la identidad tiene los campos mínimos.
func (a AgentIdentity) Valid() bool {
	return a.AgentID != "" && a.WalletAddress != ""
}

// WalletSubscription es el estado de monitorización de una wallet.
// Pertenece exactamente a una conexión activa; el manager es su único dueño.
type WalletSubscription struct {
	Address        string
	ConnectionID   string
	Chain          string
	LastEventAt    time.Time
	ReconnectCount int
}
