package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/alejandrodnm/arena/internal/ports"
	"golang.org/x/time/rate"
)

const (
	// El servicio de transferencias firma on-chain: limitamos bien por
	// debajo de su capacidad documentada.
	transfersPerSec = 2

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	pollEvery     = 2 * time.Second
)

// Client es el HTTP client del servicio externo de transferencias de tokens.
// Implementa ports.Treasury: orquesta llamadas y espera confirmaciones; la
// custodia de claves y la firma viven en el servicio, nunca aquí.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

// NewClient crea un Client para el base URL dado.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(transfersPerSec, 1),
	}
}

type transferRequest struct {
	Destination string  `json:"destination"`
	Amount      float64 `json:"amount"`
}

type transferResponse struct {
	TxSignature string `json:"tx_signature"`
	Confirmed   bool   `json:"confirmed"`
}

// Transfer envía amount a la wallet de destino y hace polling de confirmación
// hasta que ctx expire. Un timeout aquí NO significa que la transferencia
// falló on-chain: el caller la trata como FAILED y la re-verifica con Verify
// antes de reenviar.
func (c *Client) Transfer(ctx context.Context, destination string, amount float64) (ports.TransferReceipt, error) {
	var resp transferResponse
	err := c.post(ctx, c.baseURL+"/v1/transfers", transferRequest{
		Destination: destination,
		Amount:      amount,
	}, &resp)
	if err != nil {
		return ports.TransferReceipt{}, err
	}

	receipt := ports.TransferReceipt{TxSignature: resp.TxSignature, Confirmed: resp.Confirmed}
	if receipt.Confirmed {
		return receipt, nil
	}

	// Broadcast aceptado pero sin confirmar: polling hasta ctx.Done().
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return receipt, ctx.Err()
		case <-ticker.C:
			confirmed, err := c.Verify(ctx, receipt.TxSignature)
			if err != nil {
				slog.Warn("transfer confirmation poll failed", "tx", receipt.TxSignature, "err", err)
				continue
			}
			if confirmed {
				receipt.Confirmed = true
				return receipt, nil
			}
		}
	}
}

// Verify comprueba contra el ledger del servicio si un tx quedó confirmado.
func (c *Client) Verify(ctx context.Context, txSignature string) (bool, error) {
	var resp transferResponse
	if err := c.get(ctx, c.baseURL+"/v1/transfers/"+txSignature, &resp); err != nil {
		return false, err
	}
	return resp.Confirmed, nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("treasury.post: marshal body: %w", err)
	}
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)
		return c.http.Do(req)
	}, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// doWithRetry ejecuta la request con backoff exponencial. Errores 4xx son
// irrecuperables (destino inválido, fondos insuficientes) y se devuelven como
// ports.ErrTransferRejected sin reintentar.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("treasury: rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("treasury: request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("treasury: server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("treasury request retried", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("treasury: %w: status %d: %s", ports.ErrTransferRejected, resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("treasury: decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("treasury: exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
