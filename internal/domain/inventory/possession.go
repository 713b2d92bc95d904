package inventory

import (
	"sort"
	"time"

	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// PossessionItem material en poder de un colaborador.
type PossessionItem struct {
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	SKU             string          `json:"sku"`
	Tag             string          `json:"tag,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	FirstWithdrawal time.Time       `json:"first_withdrawal"`
}

type possessionEntry struct {
	item  PossessionItem
	order int
}

// SortMovements ordena por timestamp ascendente; los empates se resuelven por orden de inserción.
func SortMovements(movements []*entity.Movement) {
	sort.SliceStable(movements, func(i, j int) bool {
		a, b := movements[i], movements[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Seq < b.Seq
	})
}

// Possession deriva del ledger lo que el colaborador tiene retirado y no devolvió.
// Salida suma, entrada y baja restan; la devolución a proveedor no afecta la posesión.
// Un producto entra al resultado cuando el saldo pasa a ser positivo y sale cuando vuelve a
// cero o menos (el saldo se reinicia). No modifica el slice recibido.
func Possession(movements []*entity.Movement, collaboratorID string) []PossessionItem {
	own := make([]*entity.Movement, 0, len(movements))
	for _, m := range movements {
		if m == nil || m.IsCancelled() || m.CollaboratorID != collaboratorID {
			continue
		}
		own = append(own, m)
	}
	SortMovements(own)

	held := make(map[string]*possessionEntry)
	order := 0
	for _, m := range own {
		var delta decimal.Decimal
		switch m.Kind {
		case entity.MovementWithdrawal:
			delta = m.Quantity
		case entity.MovementReceipt, entity.MovementWriteOff:
			delta = m.Quantity.Neg()
		case entity.MovementSupplierReturn:
			continue
		default:
			panic("inventory: tipo de movimiento no contemplado " + string(m.Kind))
		}

		e, ok := held[m.ProductID]
		if !ok {
			order++
			e = &possessionEntry{
				item:  PossessionItem{ProductID: m.ProductID, Quantity: decimal.Zero, FirstWithdrawal: m.Timestamp},
				order: order,
			}
		}
		e.item.Quantity = e.item.Quantity.Add(delta)
		e.item.ProductName = m.ProductName
		e.item.SKU = m.SKU
		if m.Tag != "" {
			e.item.Tag = m.Tag
		}
		if e.item.Quantity.GreaterThan(decimal.Zero) {
			held[m.ProductID] = e
		} else {
			delete(held, m.ProductID)
		}
	}

	entries := make([]*possessionEntry, 0, len(held))
	for _, e := range held {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.item.FirstWithdrawal.Equal(b.item.FirstWithdrawal) {
			return a.item.FirstWithdrawal.Before(b.item.FirstWithdrawal)
		}
		return a.order < b.order
	})
	out := make([]PossessionItem, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}
