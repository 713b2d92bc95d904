package repository

import (
	"time"

	"github.com/jhoicas/almacen-sync/internal/domain/entity"
)

// MovementFilter filtros del historial. Since cero no filtra por fecha.
// Limit se aplica después de todos los demás filtros.
type MovementFilter struct {
	ProductID        string
	CollaboratorID   string
	Kind             entity.MovementKind
	Status           entity.MovementStatus
	ExcludeCancelled bool
	Since            time.Time
	Limit            int
}

// MovementRepository define el puerto de persistencia local para el ledger.
// No existe borrado: los movimientos solo cambian de estado.
type MovementRepository interface {
	Create(movement *entity.Movement) error
	GetByID(id string) (*entity.Movement, error)
	UpdateStatus(movement *entity.Movement) error
	// ListByProduct devuelve los movimientos del producto en orden (timestamp, seq).
	ListByProduct(productID string) ([]*entity.Movement, error)
	// ListByCollaborator devuelve, en una sola lectura, los movimientos del colaborador en orden (timestamp, seq).
	ListByCollaborator(collaboratorID string) ([]*entity.Movement, error)
	// List devuelve el historial filtrado, más reciente primero.
	List(filter MovementFilter) ([]*entity.Movement, error)
	CountByProduct(productID string) (int64, error)
}
