package chainstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/arena/internal/domain"
)

func TestParseEvent_Trade(t *testing.T) {
	raw := []byte(`{
		"type": "trade",
		"wallet": "walletA",
		"tx_signature": "sig-1",
		"token_mint": "So11111111111111111111111111111111111111112",
		"action": "buy",
		"quantity": 10.5,
		"price": 1.25,
		"timestamp_ms": 1767225600000
	}`)

	event, ok, err := ParseEvent(raw)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "walletA", event.WalletAddress)
	assert.Equal(t, "sig-1", event.TxSignature)
	assert.Equal(t, domain.ActionBuy, event.Action)
	assert.Equal(t, 10.5, event.Quantity)
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), event.Timestamp)
}

func TestParseEvent_ControlMessageIgnored(t *testing.T) {
	// Acks y heartbeats no son trades: ok=false sin error.
	for _, raw := range []string{
		`{"type": "subscribed"}`,
		`{"type": "ping"}`,
		`{}`,
	} {
		_, ok, err := ParseEvent([]byte(raw))
		assert.NoError(t, err, raw)
		assert.False(t, ok, raw)
	}
}

func TestParseEvent_MalformedJSON(t *testing.T) {
	_, ok, err := ParseEvent([]byte(`{not json`))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestParseEvent_UnknownAction(t *testing.T) {
	_, ok, err := ParseEvent([]byte(`{"type":"trade","wallet":"w","tx_signature":"s","action":"stake","quantity":1}`))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestParseEvent_IncompleteTrade(t *testing.T) {
	// Trade sin signature o sin cantidad: se rechaza, el caller lo descarta.
	_, ok, err := ParseEvent([]byte(`{"type":"trade","wallet":"w","action":"sell","quantity":1}`))
	assert.Error(t, err)
	assert.False(t, ok)

	_, ok, err = ParseEvent([]byte(`{"type":"trade","wallet":"w","tx_signature":"s","action":"sell","quantity":0}`))
	assert.Error(t, err)
	assert.False(t, ok)
}
