package domain

import "time"

// TradeAction es la dirección de un trade observado on-chain.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// TradeEvent es un trade observado en el stream on-chain, ya normalizado.
// Es inmutable una vez observado y su clave única es TxSignature: la misma
// signature puede llegar dos veces tras una reconexión y la ingesta debe
// seguir siendo idempotente.
type TradeEvent struct {
	WalletAddress string      `json:"wallet_address"`
	TxSignature   string      `json:"tx_signature"`
	TokenMint     string      `json:"token_mint"`
	Action        TradeAction `json:"action"`
	Quantity      float64     `json:"quantity"`
	Price         float64     `json:"price"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Valid devuelve true si el evento tiene los campos mínimos para ingestarse.
// Un evento inválido se loguea y se descarta — nunca tumba al worker.
func (e TradeEvent) Valid() bool {
	return e.TxSignature != "" && e.WalletAddress != "" && e.Quantity > 0
}

// Notional devuelve el valor nominal del trade (cantidad × precio).
func (e TradeEvent) Notional() float64 {
	return e.Quantity * e.Price
}
