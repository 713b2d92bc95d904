package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// clave del lock que serializa las altas (unicidad de SKU y TAG)
const catalogLock = "catalog"

// ProductInput datos de alta de un producto.
type ProductInput struct {
	SKU             string // vacío = siguiente código automático
	Name            string
	Category        string
	Unit            string
	MinStock        decimal.Decimal
	Tag             string
	Lessor          string
	Location        string
	UnitCost        decimal.Decimal
	InitialQuantity decimal.Decimal
	Actor           string
}

// ProductPatch cambios parciales. La cantidad no se edita: solo cambia por movimientos.
type ProductPatch struct {
	SKU      *string
	Name     *string
	Category *string
	Unit     *string
	MinStock *decimal.Decimal
	Tag      *string
	Lessor   *string
	Location *string
	Active   *bool
}

// RegisterProduct da de alta un producto con id temporal. Si trae cantidad inicial se
// registra como entrada en la misma transacción, así la cantidad sigue siendo el neto del ledger.
func (l *Ledger) RegisterProduct(ctx context.Context, in ProductInput) (*entity.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("nombre requerido: %w", domain.ErrInvalidInput)
	}
	if in.MinStock.IsNegative() || in.UnitCost.IsNegative() || in.InitialQuantity.IsNegative() {
		return nil, fmt.Errorf("valores negativos: %w", domain.ErrInvalidInput)
	}
	if in.InitialQuantity.IsPositive() && strings.TrimSpace(in.Actor) == "" {
		return nil, fmt.Errorf("responsable requerido para la carga inicial: %w", domain.ErrInvalidInput)
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "un"
	}

	now := l.now().UTC()
	p := &entity.Product{
		ID:        entity.NewTempID(),
		SKU:       strings.TrimSpace(in.SKU),
		Name:      name,
		Category:  strings.TrimSpace(in.Category),
		Unit:      unit,
		Quantity:  decimal.Zero,
		MinStock:  in.MinStock,
		Tag:       entity.NormalizeTag(in.Tag),
		Lessor:    strings.TrimSpace(in.Lessor),
		Location:  strings.TrimSpace(in.Location),
		UnitCost:  in.UnitCost,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	unlock := l.locks.Lock(catalogLock)
	var initial *entity.Movement
	err := l.txRunner.Run(ctx, func(r repository.Repositories) error {
		if p.SKU == "" {
			sku, err := nextSKU(r)
			if err != nil {
				return err
			}
			p.SKU = sku
		}
		if err := checkUnique(r, p); err != nil {
			return err
		}
		if err := r.Products.Create(p); err != nil {
			return err
		}
		doc, err := productDoc(p)
		if err != nil {
			return err
		}
		_, err = l.queue.EnqueueTx(r, syncqueue.Request{
			Kind:       entity.OperationInsert,
			Collection: entity.CollectionProducts,
			EntityID:   p.ID,
			LocalID:    p.ID,
			Payload:    doc,
		})
		if err != nil {
			return err
		}
		if !in.InitialQuantity.IsPositive() {
			return nil
		}
		mv := MovementInput{
			ProductID: p.ID,
			Kind:      entity.MovementReceipt,
			Quantity:  in.InitialQuantity,
			Actor:     in.Actor,
			Purpose:   "Carga inicial",
		}
		if in.UnitCost.IsPositive() {
			price := in.UnitCost
			mv.UnitPrice = &price
		}
		initial, err = l.appendMovementTx(r, p, mv)
		return err
	})
	unlock()
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("product", p.ID).Str("sku", p.SKU).Msg("producto registrado")
	if initial != nil {
		if _, err := l.afterWrite(ctx, initial); err != nil {
			return nil, err
		}
	} else {
		l.queue.RefreshDepth()
		l.syncIfOnline(ctx)
	}
	return l.GetProduct(p.ID)
}

// UpdateProduct aplica un patch sobre los datos descriptivos del producto.
func (l *Ledger) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*entity.Product, error) {
	productID, err := l.canonicalID(id)
	if err != nil {
		return nil, err
	}

	unlockCatalog := l.locks.Lock(catalogLock)
	unlock := l.locks.Lock(productID)
	var updated *entity.Product
	err = l.txRunner.Run(ctx, func(r repository.Repositories) error {
		p, err := r.Products.GetByID(productID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("producto %s: %w", id, domain.ErrNotFound)
		}
		if err := applyPatch(p, patch); err != nil {
			return err
		}
		if err := checkUnique(r, p); err != nil {
			return err
		}
		p.UpdatedAt = l.now().UTC()
		if err := r.Products.Update(p); err != nil {
			return err
		}
		doc, err := productDoc(p)
		if err != nil {
			return err
		}
		_, err = l.queue.EnqueueTx(r, syncqueue.Request{
			Kind:       entity.OperationUpdate,
			Collection: entity.CollectionProducts,
			EntityID:   p.ID,
			Payload:    doc,
		})
		updated = p
		return err
	})
	unlock()
	unlockCatalog()
	if err != nil {
		return nil, err
	}

	l.queue.RefreshDepth()
	l.syncIfOnline(ctx)
	return l.GetProduct(updated.ID)
}

// DeactivateProduct marca el producto como inactivo; deja de aceptar movimientos.
func (l *Ledger) DeactivateProduct(ctx context.Context, id string) (*entity.Product, error) {
	inactive := false
	return l.UpdateProduct(ctx, id, ProductPatch{Active: &inactive})
}

// DeleteProduct elimina un producto sin movimientos. Con historial solo puede desactivarse.
func (l *Ledger) DeleteProduct(ctx context.Context, id string) error {
	productID, err := l.canonicalID(id)
	if err != nil {
		return err
	}
	unlock := l.locks.Lock(productID)
	err = l.txRunner.Run(ctx, func(r repository.Repositories) error {
		p, err := r.Products.GetByID(productID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("producto %s: %w", id, domain.ErrNotFound)
		}
		n, err := r.Movements.CountByProduct(p.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("producto %s tiene %d movimientos: %w", p.SKU, n, domain.ErrConflict)
		}
		if err := r.Products.Delete(p.ID); err != nil {
			return err
		}
		_, err = l.queue.EnqueueTx(r, syncqueue.Request{
			Kind:       entity.OperationDelete,
			Collection: entity.CollectionProducts,
			EntityID:   p.ID,
		})
		return err
	})
	unlock()
	if err != nil {
		return err
	}
	l.queue.RefreshDepth()
	l.syncIfOnline(ctx)
	return nil
}

// GetProduct obtiene un producto por id temporal o permanente.
func (l *Ledger) GetProduct(id string) (*entity.Product, error) {
	p, err := l.repos.Products.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("producto %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// ProductByTag busca un producto por TAG.
func (l *Ledger) ProductByTag(tag string) (*entity.Product, error) {
	p, err := l.repos.Products.GetByTag(tag)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("TAG %s: %w", entity.NormalizeTag(tag), domain.ErrNotFound)
	}
	return p, nil
}

// ProductBySKU busca un producto por código.
func (l *Ledger) ProductBySKU(sku string) (*entity.Product, error) {
	p, err := l.repos.Products.GetBySKU(strings.TrimSpace(sku))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("SKU %s: %w", sku, domain.ErrNotFound)
	}
	return p, nil
}

// ListProducts catálogo filtrado.
func (l *Ledger) ListProducts(filter repository.ProductFilter) ([]*entity.Product, error) {
	return l.repos.Products.List(filter)
}

// ProductMovements historial de un producto en orden del ledger.
func (l *Ledger) ProductMovements(id string) ([]*entity.Movement, error) {
	p, err := l.GetProduct(id)
	if err != nil {
		return nil, err
	}
	return l.repos.Movements.ListByProduct(p.ID)
}

// NextSKU sugiere el siguiente código libre sin reservarlo.
func (l *Ledger) NextSKU() (string, error) {
	all, err := l.repos.Products.List(repository.ProductFilter{IncludeInactive: true})
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(all))
	var highest int64
	for _, p := range all {
		taken[p.SKU] = true
		var n int64
		if _, err := fmt.Sscanf(p.SKU, "%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	for n := highest + 1; ; n++ {
		if sku := formatSKU(n); !taken[sku] {
			return sku, nil
		}
	}
}

func nextSKU(r repository.Repositories) (string, error) {
	for {
		n, err := r.Sequences.Next(repository.SeqSKU)
		if err != nil {
			return "", err
		}
		sku := formatSKU(n)
		p, err := r.Products.GetBySKU(sku)
		if err != nil {
			return "", err
		}
		if p == nil {
			return sku, nil
		}
	}
}

func formatSKU(n int64) string { return fmt.Sprintf("%06d", n) }

func checkUnique(r repository.Repositories, p *entity.Product) error {
	if p.SKU == "" {
		return fmt.Errorf("SKU requerido: %w", domain.ErrInvalidInput)
	}
	other, err := r.Products.GetBySKU(p.SKU)
	if err != nil {
		return err
	}
	if other != nil && other.ID != p.ID {
		return fmt.Errorf("SKU %s: %w", p.SKU, domain.ErrDuplicate)
	}
	if p.Tag == "" {
		return nil
	}
	other, err = r.Products.GetByTag(p.Tag)
	if err != nil {
		return err
	}
	if other != nil && other.ID != p.ID {
		return fmt.Errorf("TAG %s: %w", p.Tag, domain.ErrDuplicate)
	}
	return nil
}

func applyPatch(p *entity.Product, patch ProductPatch) error {
	if patch.SKU != nil {
		p.SKU = strings.TrimSpace(*patch.SKU)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return fmt.Errorf("nombre requerido: %w", domain.ErrInvalidInput)
		}
		p.Name = name
	}
	if patch.Category != nil {
		p.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Unit != nil {
		p.Unit = strings.TrimSpace(*patch.Unit)
	}
	if patch.MinStock != nil {
		if patch.MinStock.IsNegative() {
			return fmt.Errorf("stock mínimo negativo: %w", domain.ErrInvalidInput)
		}
		p.MinStock = *patch.MinStock
	}
	if patch.Tag != nil {
		p.Tag = entity.NormalizeTag(*patch.Tag)
	}
	if patch.Lessor != nil {
		p.Lessor = strings.TrimSpace(*patch.Lessor)
	}
	if patch.Location != nil {
		p.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	return nil
}

// productDoc documento remoto del producto sin la cantidad: en el remoto solo la
// cambia adjust_stock_quantity.
func productDoc(p *entity.Product) (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("codificar producto: %w", err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("codificar producto: %w", err)
	}
	delete(doc, "quantity")
	return doc, nil
}
