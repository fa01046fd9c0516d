package chainstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/arena/internal/ports"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second

	// Sin mensajes en este tiempo se manda un ping; si el read deadline
	// vence, la conexión se da por muerta y Stream devuelve el error.
	heartbeatEvery = 30 * time.Second
	readTimeout    = 90 * time.Second
)

// Client es una conexión de suscripción al servicio de log-subscription
// on-chain. Implementa ports.ChainStream: una llamada a Stream es UNA
// conexión; la reconexión con backoff la orquesta el watcher.
type Client struct {
	url string
}

// NewClient crea un cliente para el endpoint WebSocket dado.
func NewClient(url string) *Client {
	return &Client{url: url}
}

// Stream conecta, suscribe el set de direcciones y entrega eventos al handler
// hasta que la conexión cae o ctx se cancela.
func (c *Client) Stream(ctx context.Context, addresses []string, handler ports.EventHandler) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("chainstream.Stream: dial status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("chainstream.Stream: dial: %w", err)
	}
	defer conn.Close()

	sub := subscribeMessage{Type: "subscribe", Addresses: addresses}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("chainstream.Stream: subscribe: %w", err)
	}
	slog.Info("chain stream subscribed", "endpoint", c.url, "addresses", len(addresses))

	// Cancelación de ctx y heartbeat sin bloquear el read loop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Despierta ReadMessage con un close limpio.
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					slog.Warn("chain stream ping failed", "err", err)
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("chainstream.Stream: read: %w", err)
		}

		event, ok, err := ParseEvent(message)
		if err != nil {
			// Error de datos: se loguea y se descarta el evento, el
			// stream sigue vivo.
			slog.Debug("chain stream malformed event", "err", err)
			continue
		}
		if !ok {
			continue // mensaje de control (ack, ping del server, etc.)
		}
		handler(event)
	}
}

// subscribeMessage es el mensaje de suscripción del protocolo.
type subscribeMessage struct {
	Type      string   `json:"type"`
	Addresses []string `json:"addresses"`
}
