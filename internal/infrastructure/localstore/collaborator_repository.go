package localstore

import (
	"fmt"

	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

var (
	_ repository.CollaboratorRepository = (*CollaboratorRepository)(nil)
	_ repository.PeriodicityRepository  = (*PeriodicityRepository)(nil)
)

// CollaboratorRepository implementación local de repository.CollaboratorRepository.
type CollaboratorRepository struct {
	s *Store
}

// NewCollaboratorRepository construye el repositorio.
func NewCollaboratorRepository(s *Store) *CollaboratorRepository {
	return &CollaboratorRepository{s: s}
}

// Create registra un colaborador; la clave de negocio no puede repetirse.
func (r *CollaboratorRepository) Create(c *entity.Collaborator) error {
	ok, err := r.s.exists(entity.CollectionCollaborators, c.ID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("create collaborator %s: %w", c.ID, domain.ErrDuplicate)
	}
	return putDoc(r.s, entity.CollectionCollaborators, c.ID, c)
}

func (r *CollaboratorRepository) GetByID(id string) (*entity.Collaborator, error) {
	return getDoc[entity.Collaborator](r.s, entity.CollectionCollaborators, id)
}

func (r *CollaboratorRepository) Update(c *entity.Collaborator) error {
	return putDoc(r.s, entity.CollectionCollaborators, c.ID, c)
}

func (r *CollaboratorRepository) List() ([]*entity.Collaborator, error) {
	return findDocs[entity.Collaborator](r.s, entity.CollectionCollaborators, nil)
}

// PeriodicityRepository implementación local de repository.PeriodicityRepository.
type PeriodicityRepository struct {
	s *Store
}

// NewPeriodicityRepository construye el repositorio.
func NewPeriodicityRepository(s *Store) *PeriodicityRepository {
	return &PeriodicityRepository{s: s}
}

// GetByPair obtiene la periodicidad del par colaborador/producto o (nil, nil).
func (r *PeriodicityRepository) GetByPair(collaboratorID, productID string) (*entity.CollaboratorPeriodicity, error) {
	q := r.s.db.Where(field("collaborator_id")+" = ? AND "+field("product_id")+" = ?", collaboratorID, productID).Limit(1)
	list, err := findDocs[entity.CollaboratorPeriodicity](r.s, entity.CollectionPeriodicities, q)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// Save inserta o reemplaza la periodicidad por id.
func (r *PeriodicityRepository) Save(p *entity.CollaboratorPeriodicity) error {
	return putDoc(r.s, entity.CollectionPeriodicities, p.ID, p)
}

func (r *PeriodicityRepository) ListByCollaborator(collaboratorID string) ([]*entity.CollaboratorPeriodicity, error) {
	return findDocs[entity.CollaboratorPeriodicity](r.s, entity.CollectionPeriodicities,
		r.s.db.Where(field("collaborator_id")+" = ?", collaboratorID))
}
