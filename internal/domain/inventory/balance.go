package inventory

import (
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Balance suma con signo de los movimientos no cancelados de un producto.
// Es la cantidad que la proyección Product.Quantity debe reflejar.
func Balance(movements []*entity.Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		if m == nil || m.IsCancelled() {
			continue
		}
		total = total.Add(m.SignedQuantity())
	}
	return total
}

// Apply calcula la cantidad resultante de aplicar un movimiento sobre la actual.
// Devuelve ok=false si el resultado sería negativo.
func Apply(current decimal.Decimal, kind entity.MovementKind, quantity decimal.Decimal) (decimal.Decimal, bool) {
	next := current.Add(kind.Delta(quantity))
	if next.IsNegative() {
		return current, false
	}
	return next, true
}
