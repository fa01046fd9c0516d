package chainstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/arena/internal/domain"
)

// wireEvent es el formato de un evento de trade en el stream.
type wireEvent struct {
	Type        string  `json:"type"`
	Wallet      string  `json:"wallet"`
	TxSignature string  `json:"tx_signature"`
	TokenMint   string  `json:"token_mint"`
	Action      string  `json:"action"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	TimestampMS int64   `json:"timestamp_ms"`
}

// ParseEvent convierte un mensaje crudo del stream en un TradeEvent.
// ok=false para mensajes de control (acks, heartbeats) que no son trades.
func ParseEvent(data []byte) (domain.TradeEvent, bool, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.TradeEvent{}, false, fmt.Errorf("chainstream.ParseEvent: %w", err)
	}
	if w.Type != "trade" {
		return domain.TradeEvent{}, false, nil
	}

	action := domain.TradeAction(w.Action)
	if action != domain.ActionBuy && action != domain.ActionSell {
		return domain.TradeEvent{}, false, fmt.Errorf("chainstream.ParseEvent: unknown action %q", w.Action)
	}

	event := domain.TradeEvent{
		WalletAddress: w.Wallet,
		TxSignature:   w.TxSignature,
		TokenMint:     w.TokenMint,
		Action:        action,
		Quantity:      w.Quantity,
		Price:         w.Price,
		Timestamp:     time.UnixMilli(w.TimestampMS).UTC(),
	}
	if !event.Valid() {
		return domain.TradeEvent{}, false, fmt.Errorf("chainstream.ParseEvent: incomplete trade (sig=%q wallet=%q)", w.TxSignature, w.Wallet)
	}
	return event, true, nil
}
