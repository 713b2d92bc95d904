package localstore

import (
	"fmt"
	"strings"

	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// Ensure ProductRepository implements repository.ProductRepository.
var _ repository.ProductRepository = (*ProductRepository)(nil)

// ProductRepository implementación local de repository.ProductRepository.
type ProductRepository struct {
	s *Store
}

// NewProductRepository construye el repositorio.
func NewProductRepository(s *Store) *ProductRepository {
	return &ProductRepository{s: s}
}

// Create guarda un producto nuevo. Falla con ErrDuplicate si el id ya existe.
func (r *ProductRepository) Create(p *entity.Product) error {
	ok, err := r.s.exists(entity.CollectionProducts, p.ID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("create product %s: %w", p.ID, domain.ErrDuplicate)
	}
	return putDoc(r.s, entity.CollectionProducts, p.ID, p)
}

// GetByID obtiene un producto por id (temporal o permanente).
func (r *ProductRepository) GetByID(id string) (*entity.Product, error) {
	return getDoc[entity.Product](r.s, entity.CollectionProducts, id)
}

// GetBySKU obtiene un producto por SKU.
func (r *ProductRepository) GetBySKU(sku string) (*entity.Product, error) {
	return r.first(field("sku")+" = ?", sku)
}

// GetByTag obtiene un producto por TAG (ya normalizado).
func (r *ProductRepository) GetByTag(tag string) (*entity.Product, error) {
	return r.first(field("tag")+" = ?", entity.NormalizeTag(tag))
}

func (r *ProductRepository) first(cond string, arg any) (*entity.Product, error) {
	list, err := findDocs[entity.Product](r.s, entity.CollectionProducts, r.s.db.Where(cond, arg).Limit(1))
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// Update reemplaza el documento del producto.
func (r *ProductRepository) Update(p *entity.Product) error {
	return putDoc(r.s, entity.CollectionProducts, p.ID, p)
}

// List devuelve los productos filtrados en orden de alta.
func (r *ProductRepository) List(f repository.ProductFilter) ([]*entity.Product, error) {
	all, err := findDocs[entity.Product](r.s, entity.CollectionProducts, nil)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	tag := entity.NormalizeTag(f.Tag)
	out := all[:0]
	for _, p := range all {
		if !f.IncludeInactive && !p.Active {
			continue
		}
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		if tag != "" && p.Tag != tag {
			continue
		}
		if f.LowStockOnly && !p.IsLowStock() {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) &&
			!strings.Contains(strings.ToLower(p.Tag), search) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete elimina el producto de la caché.
func (r *ProductRepository) Delete(id string) error {
	return r.s.Delete(entity.CollectionProducts, id)
}
