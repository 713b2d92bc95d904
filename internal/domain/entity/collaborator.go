package entity

// Collaborator persona que retira o atiende material. ID es la clave de negocio (matrícula),
// distinta de cualquier id interno del servicio remoto.
type Collaborator struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Role                string `json:"role,omitempty"`
	Contract            string `json:"contract,omitempty"`
	IsStorekeeper       bool   `json:"is_storekeeper"`
	CanHandleDeliveries bool   `json:"can_handle_deliveries"`
}

// CollaboratorPeriodicity máximo de días que un colaborador puede tener un producto.
// No forma parte del ledger; solo alimenta las alertas de devolución.
type CollaboratorPeriodicity struct {
	ID             string `json:"id"`
	CollaboratorID string `json:"collaborator_id"`
	ProductID      string `json:"product_id"`
	MaxDays        int    `json:"max_days"`
	Active         bool   `json:"active"`
}
