package ports

import (
	"context"
	"errors"
)

// ErrTransferRejected indica un error irrecuperable del servicio de
// transferencias (fondos insuficientes, destino inválido). La transferencia
// pasa a FAILED; reintentarla sin cambios no va a funcionar.
var ErrTransferRejected = errors.New("transfer rejected")

// TransferReceipt es el resultado de un intento de transferencia.
type TransferReceipt struct {
	TxSignature string
	Confirmed   bool
}

// Treasury ejecuta transferencias de tokens contra el servicio externo.
// El core no custodia claves ni firma: solo orquesta llamadas y persiste
// resultados.
type Treasury interface {
	// Transfer envía amount a la wallet de destino y espera confirmación
	// hasta que ctx expire.
	Transfer(ctx context.Context, destination string, amount float64) (TransferReceipt, error)

	// Verify comprueba contra el ledger si una transferencia ya enviada
	// quedó confirmada. Se usa antes de reintentar un SENT sin confirmar,
	// para no pagar dos veces.
	Verify(ctx context.Context, txSignature string) (bool, error)
}
