package dto

import (
	"github.com/jhoicas/almacen-sync/internal/domain/inventory"
)

// CollaboratorRequest body para alta y edición de colaboradores. ID es la matrícula.
type CollaboratorRequest struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Role                string `json:"role"`
	Contract            string `json:"contract"`
	IsStorekeeper       bool   `json:"is_storekeeper"`
	CanHandleDeliveries bool   `json:"can_handle_deliveries"`
}

// PeriodicityRequest body para PUT /api/collaborators/:id/periodicities.
type PeriodicityRequest struct {
	ProductID string `json:"product_id"`
	MaxDays   int    `json:"max_days"`
	Active    *bool  `json:"active"` // nil = activa
}

// PossessionResponse material en poder del colaborador.
type PossessionResponse struct {
	CollaboratorID string                     `json:"collaborator_id"`
	Items          []inventory.PossessionItem `json:"items"`
}

// DueItemsResponse obligaciones de devolución del colaborador.
type DueItemsResponse struct {
	CollaboratorID string              `json:"collaborator_id"`
	Items          []inventory.DueItem `json:"items"`
}
