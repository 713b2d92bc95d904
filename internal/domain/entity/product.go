package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un material del almacén.
// Quantity es una proyección del ledger: solo cambia al registrar o cancelar movimientos.
type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"` // código único
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Unit      string          `json:"unit"` // un, kg, cx, lt, pç
	Quantity  decimal.Decimal `json:"quantity"`
	MinStock  decimal.Decimal `json:"min_stock"`
	Tag       string          `json:"tag,omitempty"` // único si está presente
	Lessor    string          `json:"lessor,omitempty"`
	Location  string          `json:"location,omitempty"`
	UnitCost  decimal.Decimal `json:"unit_cost"` // costo promedio ponderado de las entradas
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsLowStock indica si la cantidad actual está en o por debajo del mínimo.
func (p *Product) IsLowStock() bool {
	return p.MinStock.GreaterThan(decimal.Zero) && p.Quantity.LessThanOrEqual(p.MinStock)
}

// NormalizeTag aplica el formato canónico de los TAG (mayúsculas, sin espacios extremos).
func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}
