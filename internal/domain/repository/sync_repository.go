package repository

import (
	"encoding/json"

	"github.com/jhoicas/almacen-sync/internal/domain/entity"
)

// PendingOperationRepository puerto de la cola de sincronización.
type PendingOperationRepository interface {
	// Append asigna Seq y persiste la operación antes de retornar.
	Append(op *entity.PendingOperation) error
	GetByID(id string) (*entity.PendingOperation, error)
	Update(op *entity.PendingOperation) error
	// ListReplayable devuelve operaciones pending/error en orden FIFO (Seq).
	ListReplayable() ([]*entity.PendingOperation, error)
	// List devuelve las operaciones en orden FIFO; status vacío no filtra.
	List(status entity.SyncStatus) ([]*entity.PendingOperation, error)
	CountReplayable() (int64, error)
	DeleteSynced() (int64, error)
}

// IDMapRepository tabla de indirección id temporal -> id permanente.
type IDMapRepository interface {
	// Register anota un id temporal todavía sin confirmar.
	Register(localID string) error
	// Bind asocia el id temporal con el permanente asignado por el remoto.
	Bind(localID, remoteID string) error
	// Resolve devuelve el id permanente para id. known=false si id no es temporal;
	// known=true y resolved vacío si es temporal y aún no fue confirmado.
	Resolve(id string) (resolved string, known bool, err error)
}

// CacheWriter reescribe la caché local: remapeo de ids temporales y reemplazo completo
// de una colección con lo que devuelve el remoto.
type CacheWriter interface {
	// Rekey mueve el registro de from a to conservando su posición en la colección.
	Rekey(collection, from, to string) error
	// ReplaceReferences reemplaza el valor from por to en todos los documentos cacheados.
	ReplaceReferences(from, to string) error
	// ReplaceCollection descarta la colección y guarda docs (cada uno con su "id") en ese orden.
	ReplaceCollection(collection string, docs []json.RawMessage) error
}

// Nombres de los contadores locales.
const (
	SeqMovements = "movements"
	SeqSKU       = "sku"
)

// SequenceRepository contadores locales persistentes (orden de inserción, SKU).
type SequenceRepository interface {
	Next(name string) (int64, error)
	// AtLeast sube el contador hasta value si está por debajo.
	AtLeast(name string, value int64) error
}

// Repositories agrupa los repositorios locales atados a una misma transacción.
type Repositories struct {
	Products      ProductRepository
	Movements     MovementRepository
	Collaborators CollaboratorRepository
	Periodicities PeriodicityRepository
	Operations    PendingOperationRepository
	IDs           IDMapRepository
	Cache         CacheWriter
	Sequences     SequenceRepository
}
