package repository

import "github.com/jhoicas/almacen-sync/internal/domain/entity"

// CollaboratorRepository puerto de persistencia local para Collaborator.
type CollaboratorRepository interface {
	Create(collaborator *entity.Collaborator) error
	GetByID(id string) (*entity.Collaborator, error)
	Update(collaborator *entity.Collaborator) error
	List() ([]*entity.Collaborator, error)
}

// PeriodicityRepository puerto de persistencia local para CollaboratorPeriodicity.
type PeriodicityRepository interface {
	GetByPair(collaboratorID, productID string) (*entity.CollaboratorPeriodicity, error)
	Save(periodicity *entity.CollaboratorPeriodicity) error
	ListByCollaborator(collaboratorID string) ([]*entity.CollaboratorPeriodicity, error)
}
