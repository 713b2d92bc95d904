package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationKind operación de escritura pendiente contra el servicio remoto.
type OperationKind string

const (
	OperationInsert OperationKind = "insert"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// Valid indica si la operación es conocida.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// SyncStatus estado de una operación en la cola.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// Colecciones compartidas entre la caché local y el servicio remoto.
const (
	CollectionProducts      = "products"
	CollectionMovements     = "movements"
	CollectionCollaborators = "collaborators"
	CollectionPeriodicities = "collaborator_periodicities"
)

// StockAdjustment delta con signo que el servicio remoto aplica de forma atómica
// (adjust_stock_quantity) después de la operación principal.
type StockAdjustment struct {
	ProductID string          `json:"product_id"`
	Delta     decimal.Decimal `json:"delta"`
}

// PendingOperation entrada de la cola de sincronización. Payload es opaco para la cola;
// LocalID es el id temporal que la entidad lleva hasta que el remoto asigne uno permanente.
type PendingOperation struct {
	ID         string           `json:"id"`
	Seq        int64            `json:"seq"` // orden FIFO
	Kind       OperationKind    `json:"kind"`
	Collection string           `json:"collection"`
	EntityID   string           `json:"entity_id"`
	LocalID    string           `json:"local_id,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	Adjustment *StockAdjustment `json:"adjustment,omitempty"`
	Applied    bool             `json:"applied"` // paso principal ya confirmado por el remoto
	RemoteID   string           `json:"remote_id,omitempty"`
	Status     SyncStatus       `json:"status"`
	LastError  string           `json:"last_error,omitempty"`
	Attempts   int              `json:"attempts"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Replayable indica si la operación debe intentarse en el próximo ciclo de sincronización.
func (op *PendingOperation) Replayable() bool {
	return op.Status == SyncPending || op.Status == SyncError
}

// TempIDPrefix prefijo legible de los ids temporales. La resolución nunca depende de él:
// la tabla de ids (temporal -> permanente) es la única fuente de verdad.
const TempIDPrefix = "temp_"

// NewTempID genera un identificador temporal para entidades creadas antes de confirmar en el remoto.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}
