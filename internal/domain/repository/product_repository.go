package repository

import "github.com/jhoicas/almacen-sync/internal/domain/entity"

// ProductFilter filtros del listado de productos. Campos vacíos no filtran.
type ProductFilter struct {
	Category        string
	Search          string // nombre, SKU o TAG
	Tag             string
	LowStockOnly    bool
	IncludeInactive bool
}

// ProductRepository define el puerto de persistencia local para Product (DIP).
// Los Get devuelven (nil, nil) cuando no existe.
type ProductRepository interface {
	Create(product *entity.Product) error
	GetByID(id string) (*entity.Product, error)
	GetBySKU(sku string) (*entity.Product, error)
	GetByTag(tag string) (*entity.Product, error)
	Update(product *entity.Product) error
	List(filter ProductFilter) ([]*entity.Product, error)
	Delete(id string) error
}
