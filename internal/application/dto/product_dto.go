package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/almacen-sync/internal/domain/entity"
)

// CreateProductRequest entrada para dar de alta un producto. SKU vacío = siguiente código.
type CreateProductRequest struct {
	SKU             string          `json:"sku"`
	Name            string          `json:"name" validate:"required,min=1,max=200"`
	Category        string          `json:"category"`
	Unit            string          `json:"unit"`
	MinStock        decimal.Decimal `json:"min_stock"`
	Tag             string          `json:"tag"`
	Lessor          string          `json:"lessor"`
	Location        string          `json:"location"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
}

// UpdateProductRequest entrada para actualizar un producto (sin cantidad).
type UpdateProductRequest struct {
	SKU      *string          `json:"sku"`
	Name     *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Category *string          `json:"category"`
	Unit     *string          `json:"unit"`
	MinStock *decimal.Decimal `json:"min_stock"`
	Tag      *string          `json:"tag"`
	Lessor   *string          `json:"lessor"`
	Location *string          `json:"location"`
	Active   *bool            `json:"active"`
}

// ProductResponse salida de un producto.
type ProductResponse struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	MinStock    decimal.Decimal `json:"min_stock"`
	LowStock    bool            `json:"low_stock"`
	Tag         string          `json:"tag,omitempty"`
	Lessor      string          `json:"lessor,omitempty"`
	Location    string          `json:"location,omitempty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Active      bool            `json:"active"`
	PendingSync bool            `json:"pending_sync"` // id temporal: todavía no llegó al remoto
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductListResponse lista de productos.
type ProductListResponse struct {
	Items []ProductResponse `json:"items"`
	Total int               `json:"total"`
}

// NewProductResponse mapea la entidad a la respuesta.
func NewProductResponse(p *entity.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Category:    p.Category,
		Unit:        p.Unit,
		Quantity:    p.Quantity,
		MinStock:    p.MinStock,
		LowStock:    p.IsLowStock(),
		Tag:         p.Tag,
		Lessor:      p.Lessor,
		Location:    p.Location,
		UnitCost:    p.UnitCost,
		Active:      p.Active,
		PendingSync: isTemp(p.ID),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// AuditResponse resultado de la auditoría de un producto.
type AuditResponse struct {
	ProductID  string          `json:"product_id"`
	Projected  decimal.Decimal `json:"projected"`
	Recomputed decimal.Decimal `json:"recomputed"`
	Drift      decimal.Decimal `json:"drift"`
	Movements  int             `json:"movements"`
	Consistent bool            `json:"consistent"`
}
