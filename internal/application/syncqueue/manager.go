package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/almacen-sync/internal/application/ports"
	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// DefaultRemoteTimeout límite de cada llamada remota durante el drenado.
const DefaultRemoteTimeout = 10 * time.Second

// Request describe una mutación a encolar.
type Request struct {
	Kind       entity.OperationKind
	Collection string
	EntityID   string
	Payload    any
	Adjustment *entity.StockAdjustment

	// LocalID id temporal de una entidad nueva; se quita del payload al insertar y se remapea al confirmar.
	LocalID string

	// Applied marca el paso principal como ya confirmado por el remoto (solo queda el ajuste).
	Applied  bool
	RemoteID string
}

// Result resumen de un drenado.
type Result struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"` // no intentadas: una operación anterior de la misma entidad quedó pendiente
}

// ConfirmFunc se ejecuta en la misma transacción local que registra la confirmación de un insert.
type ConfirmFunc func(repos repository.Repositories, permanentID string) error

// Recorder métricas de la cola.
type Recorder interface {
	OperationReplayed(collection, outcome string)
	DrainFinished(succeeded, failed int, elapsed time.Duration)
	QueueDepth(n int64)
}

type noopRecorder struct{}

func (noopRecorder) OperationReplayed(string, string)      {}
func (noopRecorder) DrainFinished(int, int, time.Duration) {}
func (noopRecorder) QueueDepth(int64)                      {}

// Options configuración opcional del gestor.
type Options struct {
	RemoteTimeout time.Duration
	Logger        zerolog.Logger
	Metrics       Recorder
	Now           func() time.Time
}

// Manager registra mutaciones en la cola durable y las reproduce contra el remoto en orden FIFO.
type Manager struct {
	txRunner ports.TxRunner
	repos    repository.Repositories
	remote   ports.RemoteStore
	timeout  time.Duration
	log      zerolog.Logger
	metrics  Recorder
	now      func() time.Time

	drainMu  sync.Mutex
	confirms map[string]ConfirmFunc

	statsMu  sync.RWMutex
	last     Result
	lastAt   time.Time
	hasDrain bool
}

// NewManager construye el gestor de la cola.
func NewManager(txRunner ports.TxRunner, repos repository.Repositories, remote ports.RemoteStore, opts Options) *Manager {
	m := &Manager{
		txRunner: txRunner,
		repos:    repos,
		remote:   remote,
		timeout:  opts.RemoteTimeout,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
		confirms: make(map[string]ConfirmFunc),
	}
	if m.timeout <= 0 {
		m.timeout = DefaultRemoteTimeout
	}
	if m.metrics == nil {
		m.metrics = noopRecorder{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// OnConfirm registra una acción a ejecutar cuando el remoto confirma un insert de la colección.
// Debe llamarse durante el arranque, antes de drenar.
func (m *Manager) OnConfirm(collection string, fn ConfirmFunc) {
	m.confirms[collection] = fn
}

// Enqueue persiste una operación pendiente en su propia transacción local.
func (m *Manager) Enqueue(ctx context.Context, req Request) (*entity.PendingOperation, error) {
	var op *entity.PendingOperation
	err := m.txRunner.Run(ctx, func(r repository.Repositories) error {
		var err error
		op, err = m.EnqueueTx(r, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.RefreshDepth()
	return op, nil
}

// EnqueueTx agrega la operación usando los repositorios de la transacción del llamador,
// de modo que la entrada de cola y la actualización de la caché se confirman juntas.
func (m *Manager) EnqueueTx(r repository.Repositories, req Request) (*entity.PendingOperation, error) {
	if !req.Kind.Valid() || req.Collection == "" {
		return nil, fmt.Errorf("enqueue: %w", domain.ErrInvalidInput)
	}
	var payload json.RawMessage
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("enqueue: codificar payload: %w", err)
		}
		payload = data
	}
	now := m.now().UTC()
	op := &entity.PendingOperation{
		ID:         uuid.New().String(),
		Kind:       req.Kind,
		Collection: req.Collection,
		EntityID:   req.EntityID,
		LocalID:    req.LocalID,
		Payload:    payload,
		Adjustment: req.Adjustment,
		Applied:    req.Applied,
		RemoteID:   req.RemoteID,
		Status:     entity.SyncPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.LocalID != "" {
		if err := r.IDs.Register(req.LocalID); err != nil {
			return nil, fmt.Errorf("enqueue: registrar id temporal: %w", err)
		}
	}
	if err := r.Operations.Append(op); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return op, nil
}

// Drain reproduce las operaciones pending/error en orden de encolado. Cada resultado se
// persiste individualmente; las ya sincronizadas no se vuelven a enviar.
// Un rechazo marca la operación como error; si el remoto no responde la operación queda
// pendiente. En ambos casos el drenado sigue con el resto, salvo las operaciones posteriores
// sobre la misma entidad que una pendiente, que se difieren para no aplicarse fuera de orden.
func (m *Manager) Drain(ctx context.Context) (Result, error) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	start := m.now()
	var res Result
	ops, err := m.repos.Operations.ListReplayable()
	if err != nil {
		return res, fmt.Errorf("drain: listar cola: %w", err)
	}
	if len(ops) == 0 {
		m.finish(res, start)
		return res, nil
	}
	m.log.Info().Int("operations", len(ops)).Msg("sincronizando cola")

	held := make(map[string]bool)
	for i, op := range ops {
		if ctx.Err() != nil {
			res.Deferred += len(ops) - i
			break
		}
		if held[entityKey(op)] {
			res.Deferred++
			continue
		}
		err := m.replay(ctx, op)
		if err == nil {
			res.Succeeded++
			m.metrics.OperationReplayed(op.Collection, "synced")
			continue
		}
		res.Failed++
		unavailable := errors.Is(err, domain.ErrRemoteUnavailable)
		if recErr := m.recordFailure(op, err, unavailable); recErr != nil {
			m.finish(res, start)
			return res, recErr
		}
		if unavailable {
			held[entityKey(op)] = true
			m.metrics.OperationReplayed(op.Collection, "unavailable")
			m.log.Warn().Err(err).Str("operation", op.ID).Str("collection", op.Collection).
				Msg("remoto no disponible, la operación queda pendiente")
			continue
		}
		m.metrics.OperationReplayed(op.Collection, "error")
		m.log.Error().Err(err).Str("operation", op.ID).Str("collection", op.Collection).Str("kind", string(op.Kind)).
			Msg("operación rechazada")
	}

	m.finish(res, start)
	m.log.Info().Int("succeeded", res.Succeeded).Int("failed", res.Failed).Int("deferred", res.Deferred).
		Msg("sincronización terminada")
	return res, nil
}

// entityKey identifica la entidad afectada por la operación.
func entityKey(op *entity.PendingOperation) string {
	id := op.EntityID
	if op.LocalID != "" {
		id = op.LocalID
	}
	return op.Collection + "/" + id
}

func (m *Manager) finish(res Result, start time.Time) {
	m.statsMu.Lock()
	m.last = res
	m.lastAt = m.now()
	m.hasDrain = true
	m.statsMu.Unlock()
	m.metrics.DrainFinished(res.Succeeded, res.Failed, m.now().Sub(start))
	m.RefreshDepth()
}

// replay ejecuta los pasos pendientes de una operación y la marca como sincronizada.
func (m *Manager) replay(ctx context.Context, op *entity.PendingOperation) error {
	opCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if !op.Applied {
		var err error
		switch op.Kind {
		case entity.OperationInsert:
			err = m.replayInsert(opCtx, op)
		case entity.OperationUpdate:
			err = m.replayUpdate(opCtx, op)
		case entity.OperationDelete:
			err = m.replayDelete(opCtx, op)
		default:
			err = fmt.Errorf("operación %q desconocida: %w", op.Kind, domain.ErrRemoteRejected)
		}
		if err != nil {
			return err
		}
	}

	if adj := op.Adjustment; adj != nil && !adj.Delta.IsZero() {
		productID, err := m.resolveID(adj.ProductID)
		if err != nil {
			return err
		}
		if _, err := m.remote.AdjustStockQuantity(opCtx, productID, adj.Delta); err != nil {
			return fmt.Errorf("ajuste de stock %s: %w", productID, err)
		}
	}

	op.Status = entity.SyncSynced
	op.LastError = ""
	op.UpdatedAt = m.now().UTC()
	if err := m.repos.Operations.Update(op); err != nil {
		return fmt.Errorf("marcar operación %s: %w", op.ID, err)
	}
	return nil
}

func (m *Manager) replayInsert(ctx context.Context, op *entity.PendingOperation) error {
	doc, err := m.resolvePayload(op.Payload)
	if err != nil {
		return err
	}
	if op.LocalID != "" {
		delete(doc, "id")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("codificar %s: %w", op.Collection, err)
	}
	remoteID, err := m.remote.Insert(ctx, op.Collection, body)
	if err != nil {
		return fmt.Errorf("insert %s: %w", op.Collection, err)
	}

	confirmed := *op
	confirmed.Applied = true
	confirmed.RemoteID = remoteID
	confirmed.UpdatedAt = m.now().UTC()
	err = m.txRunner.Run(ctx, func(r repository.Repositories) error {
		if op.LocalID != "" && op.LocalID != remoteID {
			if err := r.IDs.Bind(op.LocalID, remoteID); err != nil {
				return err
			}
			if err := r.Cache.Rekey(op.Collection, op.LocalID, remoteID); err != nil {
				return err
			}
			if err := r.Cache.ReplaceReferences(op.LocalID, remoteID); err != nil {
				return err
			}
		}
		if fn := m.confirms[op.Collection]; fn != nil {
			if err := fn(r, remoteID); err != nil {
				return err
			}
		}
		return r.Operations.Update(&confirmed)
	})
	if err != nil {
		return fmt.Errorf("confirmar insert %s: %w", op.Collection, err)
	}
	*op = confirmed
	return nil
}

func (m *Manager) replayUpdate(ctx context.Context, op *entity.PendingOperation) error {
	target, err := m.resolveID(op.EntityID)
	if err != nil {
		return err
	}
	doc, err := m.resolvePayload(op.Payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("codificar %s: %w", op.Collection, err)
	}
	if err := m.remote.Update(ctx, op.Collection, target, body); err != nil {
		return fmt.Errorf("update %s/%s: %w", op.Collection, target, err)
	}
	return m.markApplied(op, target)
}

func (m *Manager) replayDelete(ctx context.Context, op *entity.PendingOperation) error {
	target, err := m.resolveID(op.EntityID)
	if err != nil {
		return err
	}
	if err := m.remote.Delete(ctx, op.Collection, target); err != nil {
		return fmt.Errorf("delete %s/%s: %w", op.Collection, target, err)
	}
	return m.markApplied(op, target)
}

func (m *Manager) markApplied(op *entity.PendingOperation, remoteID string) error {
	op.Applied = true
	op.RemoteID = remoteID
	op.UpdatedAt = m.now().UTC()
	return m.repos.Operations.Update(op)
}

// resolveID traduce un id temporal a su id permanente. Falla si la entidad nunca fue insertada.
func (m *Manager) resolveID(id string) (string, error) {
	resolved, known, err := m.repos.IDs.Resolve(id)
	if err != nil {
		return "", err
	}
	if !known {
		return id, nil
	}
	if resolved == "" {
		return "", fmt.Errorf("%s: %w", id, domain.ErrUnresolvedID)
	}
	return resolved, nil
}

// resolvePayload reemplaza en el documento toda referencia a ids temporales ya confirmados.
func (m *Manager) resolvePayload(payload json.RawMessage) (map[string]any, error) {
	doc := map[string]any{}
	if len(payload) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decodificar payload: %w", err)
	}
	for k, v := range doc {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		resolved, known, err := m.repos.IDs.Resolve(s)
		if err != nil {
			return nil, err
		}
		if !known {
			continue
		}
		if resolved == "" {
			if k == "id" {
				// el propio id temporal de un insert: se descarta antes del envío
				continue
			}
			return nil, fmt.Errorf("%s=%s: %w", k, s, domain.ErrUnresolvedID)
		}
		doc[k] = resolved
	}
	return doc, nil
}

func (m *Manager) recordFailure(op *entity.PendingOperation, cause error, unavailable bool) error {
	op.Attempts++
	op.LastError = cause.Error()
	op.UpdatedAt = m.now().UTC()
	if unavailable {
		op.Status = entity.SyncPending
	} else {
		op.Status = entity.SyncError
	}
	if err := m.repos.Operations.Update(op); err != nil {
		return fmt.Errorf("registrar fallo de %s: %w", op.ID, err)
	}
	return nil
}

// PendingCount cantidad de operaciones pendientes o con error.
func (m *Manager) PendingCount() (int64, error) {
	n, err := m.repos.Operations.CountReplayable()
	if err != nil {
		return 0, err
	}
	m.metrics.QueueDepth(n)
	return n, nil
}

// RefreshDepth actualiza la métrica de profundidad de la cola.
func (m *Manager) RefreshDepth() {
	if _, err := m.PendingCount(); err != nil {
		m.log.Error().Err(err).Msg("no se pudo contar la cola")
	}
}

// List operaciones de la cola filtradas por estado (vacío = todas).
func (m *Manager) List(status entity.SyncStatus) ([]*entity.PendingOperation, error) {
	return m.repos.Operations.List(status)
}

// WithDrainLock ejecuta fn sin que ningún drenado corra en paralelo.
func (m *Manager) WithDrainLock(fn func() error) error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	return fn()
}

// PurgeSynced elimina las operaciones ya sincronizadas.
func (m *Manager) PurgeSynced() (int64, error) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	return m.repos.Operations.DeleteSynced()
}

// LastResult resultado del último drenado y cuándo terminó.
func (m *Manager) LastResult() (Result, time.Time, bool) {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.last, m.lastAt, m.hasDrain
}

// StockDelta devuelve el ajuste con signo de un movimiento sobre un producto.
func StockDelta(productID string, delta decimal.Decimal) *entity.StockAdjustment {
	return &entity.StockAdjustment{ProductID: productID, Delta: delta}
}
