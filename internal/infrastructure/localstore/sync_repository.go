package localstore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

var (
	_ repository.PendingOperationRepository = (*PendingOperationRepository)(nil)
	_ repository.IDMapRepository            = (*IDMapRepository)(nil)
	_ repository.SequenceRepository         = (*SequenceRepository)(nil)
)

var replayableStatuses = []string{string(entity.SyncPending), string(entity.SyncError)}

// PendingOperationRepository cola de sincronización persistida como colección.
type PendingOperationRepository struct {
	s *Store
}

// NewPendingOperationRepository construye el repositorio.
func NewPendingOperationRepository(s *Store) *PendingOperationRepository {
	return &PendingOperationRepository{s: s}
}

// Append asigna el siguiente Seq de la cola y persiste la operación.
func (r *PendingOperationRepository) Append(op *entity.PendingOperation) error {
	seq, err := NewSequenceRepository(r.s).Next(collectionQueue)
	if err != nil {
		return err
	}
	op.Seq = seq
	return putDoc(r.s, collectionQueue, op.ID, op)
}

func (r *PendingOperationRepository) GetByID(id string) (*entity.PendingOperation, error) {
	return getDoc[entity.PendingOperation](r.s, collectionQueue, id)
}

// Update persiste el estado de una operación existente.
func (r *PendingOperationRepository) Update(op *entity.PendingOperation) error {
	ok, err := r.s.exists(collectionQueue, op.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update pending operation %s: %w", op.ID, domain.ErrNotFound)
	}
	return putDoc(r.s, collectionQueue, op.ID, op)
}

func (r *PendingOperationRepository) ListReplayable() ([]*entity.PendingOperation, error) {
	return findDocs[entity.PendingOperation](r.s, collectionQueue,
		r.s.db.Where(field("status")+" IN ?", replayableStatuses).Order(field("seq")))
}

func (r *PendingOperationRepository) List(status entity.SyncStatus) ([]*entity.PendingOperation, error) {
	q := r.s.db.Order(field("seq"))
	if status != "" {
		q = q.Where(field("status")+" = ?", string(status))
	}
	return findDocs[entity.PendingOperation](r.s, collectionQueue, q)
}

func (r *PendingOperationRepository) CountReplayable() (int64, error) {
	var n int64
	err := r.s.db.Model(&Record{}).
		Where("collection = ? AND "+field("status")+" IN ?", collectionQueue, replayableStatuses).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count pending operations: %w", err)
	}
	return n, nil
}

// DeleteSynced elimina las operaciones ya confirmadas y devuelve cuántas borró.
func (r *PendingOperationRepository) DeleteSynced() (int64, error) {
	res := r.s.db.Where("collection = ? AND "+field("status")+" = ?", collectionQueue, string(entity.SyncSynced)).
		Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge synced operations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// idLink entrada de la tabla de ids.
type idLink struct {
	LocalID  string `json:"local_id"`
	RemoteID string `json:"remote_id,omitempty"`
}

// IDMapRepository tabla de indirección temporal -> permanente.
type IDMapRepository struct {
	s *Store
}

// NewIDMapRepository construye el repositorio.
func NewIDMapRepository(s *Store) *IDMapRepository {
	return &IDMapRepository{s: s}
}

// Register anota un id temporal. No pisa una asociación ya confirmada.
func (r *IDMapRepository) Register(localID string) error {
	ok, err := r.s.exists(collectionIDMap, localID)
	if err != nil || ok {
		return err
	}
	return putDoc(r.s, collectionIDMap, localID, idLink{LocalID: localID})
}

// Bind asocia el id temporal al permanente.
func (r *IDMapRepository) Bind(localID, remoteID string) error {
	if localID == "" || remoteID == "" {
		return fmt.Errorf("bind id: %w", domain.ErrInvalidInput)
	}
	return putDoc(r.s, collectionIDMap, localID, idLink{LocalID: localID, RemoteID: remoteID})
}

func (r *IDMapRepository) Resolve(id string) (string, bool, error) {
	link, err := getDoc[idLink](r.s, collectionIDMap, id)
	if err != nil || link == nil {
		return "", false, err
	}
	return link.RemoteID, true, nil
}

type counter struct {
	Value int64 `json:"value"`
}

// SequenceRepository contadores persistentes en la colección meta.
type SequenceRepository struct {
	s *Store
}

// NewSequenceRepository construye el repositorio.
func NewSequenceRepository(s *Store) *SequenceRepository {
	return &SequenceRepository{s: s}
}

// Next incrementa y devuelve el contador. Dentro de una tx usa un savepoint.
func (r *SequenceRepository) Next(name string) (int64, error) {
	var next int64
	err := r.s.db.Transaction(func(tx *gorm.DB) error {
		ts := &Store{db: tx}
		c, err := getDoc[counter](ts, collectionMeta, name)
		if err != nil {
			return err
		}
		if c == nil {
			c = &counter{}
		}
		c.Value++
		next = c.Value
		return putDoc(ts, collectionMeta, name, c)
	})
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return next, nil
}

// AtLeast sube el contador hasta value si está por debajo.
func (r *SequenceRepository) AtLeast(name string, value int64) error {
	c, err := getDoc[counter](r.s, collectionMeta, name)
	if err != nil {
		return err
	}
	if c != nil && c.Value >= value {
		return nil
	}
	return putDoc(r.s, collectionMeta, name, counter{Value: value})
}
