package localstore

import (
	"fmt"

	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/inventory"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepository)(nil)

// MovementRepository implementación local del ledger.
type MovementRepository struct {
	s *Store
}

// NewMovementRepository construye el repositorio.
func NewMovementRepository(s *Store) *MovementRepository {
	return &MovementRepository{s: s}
}

// Create agrega un movimiento al ledger. Nunca reemplaza uno existente.
func (r *MovementRepository) Create(m *entity.Movement) error {
	ok, err := r.s.exists(entity.CollectionMovements, m.ID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("create movement %s: %w", m.ID, domain.ErrDuplicate)
	}
	return putDoc(r.s, entity.CollectionMovements, m.ID, m)
}

// GetByID obtiene un movimiento por id (temporal o permanente).
func (r *MovementRepository) GetByID(id string) (*entity.Movement, error) {
	return getDoc[entity.Movement](r.s, entity.CollectionMovements, id)
}

// UpdateStatus persiste el cambio de estado de un movimiento existente.
func (r *MovementRepository) UpdateStatus(m *entity.Movement) error {
	ok, err := r.s.exists(entity.CollectionMovements, m.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update movement %s: %w", m.ID, domain.ErrNotFound)
	}
	return putDoc(r.s, entity.CollectionMovements, m.ID, m)
}

// ListByProduct movimientos del producto en orden (timestamp, seq).
func (r *MovementRepository) ListByProduct(productID string) ([]*entity.Movement, error) {
	list, err := findDocs[entity.Movement](r.s, entity.CollectionMovements,
		r.s.db.Where(field("product_id")+" = ?", productID))
	if err != nil {
		return nil, err
	}
	inventory.SortMovements(list)
	return list, nil
}

// ListByCollaborator movimientos del colaborador en orden (timestamp, seq).
func (r *MovementRepository) ListByCollaborator(collaboratorID string) ([]*entity.Movement, error) {
	list, err := findDocs[entity.Movement](r.s, entity.CollectionMovements,
		r.s.db.Where(field("collaborator_id")+" = ?", collaboratorID))
	if err != nil {
		return nil, err
	}
	inventory.SortMovements(list)
	return list, nil
}

// List historial filtrado, más reciente primero.
func (r *MovementRepository) List(f repository.MovementFilter) ([]*entity.Movement, error) {
	q := r.s.db
	if f.ProductID != "" {
		q = q.Where(field("product_id")+" = ?", f.ProductID)
	}
	if f.CollaboratorID != "" {
		q = q.Where(field("collaborator_id")+" = ?", f.CollaboratorID)
	}
	if f.Kind != "" {
		q = q.Where(field("kind")+" = ?", string(f.Kind))
	}
	if f.Status != "" {
		q = q.Where(field("status")+" = ?", string(f.Status))
	}
	if f.ExcludeCancelled {
		q = q.Where(field("status")+" <> ?", string(entity.MovementCancelled))
	}
	list, err := findDocs[entity.Movement](r.s, entity.CollectionMovements, q)
	if err != nil {
		return nil, err
	}
	if !f.Since.IsZero() {
		kept := list[:0]
		for _, m := range list {
			if !m.Timestamp.Before(f.Since) {
				kept = append(kept, m)
			}
		}
		list = kept
	}
	inventory.SortMovements(list)
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

// CountByProduct cantidad de movimientos (de cualquier estado) del producto.
func (r *MovementRepository) CountByProduct(productID string) (int64, error) {
	var n int64
	err := r.s.db.Model(&Record{}).
		Where("collection = ? AND "+field("product_id")+" = ?", entity.CollectionMovements, productID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count movements %s: %w", productID, err)
	}
	return n, nil
}
