package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind tipo cerrado de movimiento del ledger.
type MovementKind string

// Tipos de movimiento. Devolución a proveedor y baja descuentan stock igual que la salida,
// pero conservan su propio tipo.
const (
	MovementReceipt        MovementKind = "receipt"         // entrada (incluye devolución de colaborador)
	MovementWithdrawal     MovementKind = "withdrawal"      // salida
	MovementWriteOff       MovementKind = "write_off"       // baja (descarte, pérdida)
	MovementSupplierReturn MovementKind = "supplier_return" // devolución al proveedor
)

// MovementKinds lista todos los tipos válidos.
var MovementKinds = []MovementKind{MovementReceipt, MovementWithdrawal, MovementWriteOff, MovementSupplierReturn}

// ParseMovementKind convierte el texto recibido en un tipo válido.
func ParseMovementKind(s string) (MovementKind, error) {
	k := MovementKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("tipo de movimiento desconocido %q", s)
	}
	return k, nil
}

// Valid indica si el tipo pertenece al conjunto cerrado.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementReceipt, MovementWithdrawal, MovementWriteOff, MovementSupplierReturn:
		return true
	}
	return false
}

// Sign devuelve +1 si el tipo suma stock y -1 si lo descuenta.
func (k MovementKind) Sign() int {
	switch k {
	case MovementReceipt:
		return 1
	case MovementWithdrawal, MovementWriteOff, MovementSupplierReturn:
		return -1
	}
	panic(fmt.Sprintf("entity: tipo de movimiento no contemplado %q", string(k)))
}

// Delta devuelve la cantidad con signo que el tipo aplica al stock.
func (k MovementKind) Delta(quantity decimal.Decimal) decimal.Decimal {
	if k.Sign() < 0 {
		return quantity.Neg()
	}
	return quantity
}

// Label etiqueta para exportaciones e historial.
func (k MovementKind) Label() string {
	switch k {
	case MovementReceipt:
		return "Entrada"
	case MovementWithdrawal:
		return "Salida"
	case MovementWriteOff:
		return "Baja"
	case MovementSupplierReturn:
		return "Devolución a proveedor"
	}
	panic(fmt.Sprintf("entity: tipo de movimiento no contemplado %q", string(k)))
}

// MovementStatus estado de un movimiento.
type MovementStatus string

const (
	MovementConfirmed   MovementStatus = "confirmed"
	MovementCancelled   MovementStatus = "cancelled"
	MovementPendingSync MovementStatus = "pending_sync"
)

// Movement entrada append-only del ledger. Cantidad y tipo no cambian después de creado;
// cancelar solo cambia Status y nunca reescribe los snapshots de otros movimientos.
type Movement struct {
	ID             string              `json:"id"`
	Seq            int64               `json:"seq"` // orden de inserción local, desempata timestamps
	ProductID      string              `json:"product_id"`
	ProductName    string              `json:"product_name"`
	SKU            string              `json:"sku"`
	Kind           MovementKind        `json:"kind"`
	Quantity       decimal.Decimal     `json:"quantity"` // siempre positiva
	QuantityBefore decimal.Decimal     `json:"quantity_before"`
	QuantityAfter  decimal.Decimal     `json:"quantity_after"`
	Timestamp      time.Time           `json:"timestamp"`
	Actor          string              `json:"actor"`
	CollaboratorID string              `json:"collaborator_id,omitempty"` // quien tiene/tuvo el material
	HandledByID    string              `json:"handled_by_id,omitempty"`   // quien atendió la entrega
	Tag            string              `json:"tag,omitempty"`
	Lessor         string              `json:"lessor,omitempty"`
	UnitPrice      decimal.NullDecimal `json:"unit_price"`
	TotalValue     decimal.NullDecimal `json:"total_value"`
	Notes          string              `json:"notes,omitempty"`
	Purpose        string              `json:"purpose,omitempty"`
	Status         MovementStatus      `json:"status"`
	CancelReason   string              `json:"cancel_reason,omitempty"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
}

// IsCancelled indica si el movimiento fue cancelado.
func (m *Movement) IsCancelled() bool {
	return m.Status == MovementCancelled
}

// SignedQuantity cantidad con el signo del tipo (para exportación y balances).
func (m *Movement) SignedQuantity() decimal.Decimal {
	return m.Kind.Delta(m.Quantity)
}

// ShortID primeros 8 caracteres del identificador.
func (m *Movement) ShortID() string {
	id := strings.TrimPrefix(m.ID, TempIDPrefix)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
