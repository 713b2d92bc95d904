package ports

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RemoteStore define el puerto de salida hacia el sistema de registro remoto.
// Cualquier adaptador (PostgreSQL, fake en memoria) debe implementar esta interfaz.
// Los errores deben envolver domain.ErrRemoteUnavailable (reintentable: timeout, red)
// o domain.ErrRemoteRejected (el remoto rechazó la operación).
type RemoteStore interface {
	// Insert crea el documento y devuelve el id permanente. Si el documento no trae "id"
	// el remoto asigna uno.
	Insert(ctx context.Context, collection string, doc json.RawMessage) (string, error)
	Update(ctx context.Context, collection, id string, doc json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	List(ctx context.Context, collection string) ([]json.RawMessage, error)
	// AdjustStockQuantity aplica un delta con signo de forma atómica del lado del servidor
	// y devuelve la cantidad resultante.
	AdjustStockQuantity(ctx context.Context, productID string, delta decimal.Decimal) (decimal.Decimal, error)
	Ping(ctx context.Context) error
}
