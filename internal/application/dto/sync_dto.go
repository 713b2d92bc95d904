package dto

import (
	"time"

	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
)

// SyncStatusResponse estado de conectividad y de la cola.
type SyncStatusResponse struct {
	State      string            `json:"state"` // online | offline | syncing
	Online     bool              `json:"online"`
	Pending    int64             `json:"pending"`
	LastResult *syncqueue.Result `json:"last_result,omitempty"`
	LastSyncAt *time.Time        `json:"last_sync_at,omitempty"`
}

// PurgeResponse resultado de la purga de operaciones sincronizadas.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}
