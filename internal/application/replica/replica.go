// Package replica trae al caché local lo que hay en el sistema de registro remoto.
package replica

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/almacen-sync/internal/application/ports"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// Collections colecciones que se replican, en el orden en que se escriben.
var Collections = []string{
	entity.CollectionProducts,
	entity.CollectionCollaborators,
	entity.CollectionPeriodicities,
	entity.CollectionMovements,
}

// Result resumen de un refresco.
type Result struct {
	Skipped     bool           `json:"skipped"` // la cola tenía operaciones sin sincronizar
	Collections map[string]int `json:"collections,omitempty"`
}

// Drainer drena la cola de sincronización.
type Drainer interface {
	Drain(ctx context.Context) (syncqueue.Result, error)
}

// Serializer excluye los drenados mientras se refresca el caché.
type Serializer interface {
	WithDrainLock(fn func() error) error
}

// Replica reemplaza el caché local con el contenido remoto (el remoto gana). Solo actúa con
// la cola vacía: una operación pendiente todavía no se refleja en el remoto y se perdería.
type Replica struct {
	txRunner ports.TxRunner
	remote   ports.RemoteStore
	queue    Serializer
	timeout  time.Duration
	log      zerolog.Logger
}

// New construye la réplica.
func New(txRunner ports.TxRunner, remote ports.RemoteStore, queue Serializer, timeout time.Duration, log zerolog.Logger) *Replica {
	if timeout <= 0 {
		timeout = syncqueue.DefaultRemoteTimeout
	}
	return &Replica{txRunner: txRunner, remote: remote, queue: queue, timeout: timeout, log: log}
}

// Refresh descarga todas las colecciones y las escribe en una sola transacción local.
// La descarga y el reemplazo ocurren con el drenado bloqueado: una operación que se
// confirme en el medio dejaría la foto remota desactualizada.
func (r *Replica) Refresh(ctx context.Context) (Result, error) {
	var res Result
	err := r.queue.WithDrainLock(func() error {
		var err error
		res, err = r.refresh(ctx)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if res.Skipped {
		r.log.Debug().Msg("refresco omitido: cola con operaciones pendientes")
		return res, nil
	}
	r.log.Info().Interface("collections", res.Collections).Msg("caché local actualizado desde el remoto")
	return res, nil
}

func (r *Replica) refresh(ctx context.Context) (Result, error) {
	fetched := make(map[string][]json.RawMessage, len(Collections))
	for _, c := range Collections {
		docs, err := r.list(ctx, c)
		if err != nil {
			return Result{}, err
		}
		fetched[c] = docs
	}

	res := Result{Collections: make(map[string]int, len(Collections))}
	err := r.txRunner.Run(ctx, func(repos repository.Repositories) error {
		pending, err := repos.Operations.CountReplayable()
		if err != nil {
			return err
		}
		if pending > 0 {
			res = Result{Skipped: true}
			return nil
		}
		for _, c := range Collections {
			if err := repos.Cache.ReplaceCollection(c, fetched[c]); err != nil {
				return err
			}
			res.Collections[c] = len(fetched[c])
		}
		return bumpSequences(repos, fetched)
	})
	if err != nil {
		return Result{}, fmt.Errorf("refresh: %w", err)
	}
	return res, nil
}

func (r *Replica) list(ctx context.Context, collection string) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	docs, err := r.remote.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", collection, err)
	}
	return docs, nil
}

// bumpSequences evita que los contadores locales reutilicen valores ya presentes en el remoto.
func bumpSequences(repos repository.Repositories, fetched map[string][]json.RawMessage) error {
	var maxSeq, maxSKU int64
	for _, raw := range fetched[entity.CollectionMovements] {
		var m struct {
			Seq int64 `json:"seq"`
		}
		if err := json.Unmarshal(raw, &m); err == nil && m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}
	for _, raw := range fetched[entity.CollectionProducts] {
		var p struct {
			SKU string `json:"sku"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if n, err := strconv.ParseInt(p.SKU, 10, 64); err == nil && n > maxSKU {
			maxSKU = n
		}
	}
	if err := repos.Sequences.AtLeast(repository.SeqMovements, maxSeq); err != nil {
		return err
	}
	return repos.Sequences.AtLeast(repository.SeqSKU, maxSKU)
}

// SyncThenRefresh drena la cola y, si quedó vacía, refresca el caché. Se usa como Drainer del
// monitor de conectividad para que cada ciclo también traiga los cambios de otros equipos.
type SyncThenRefresh struct {
	Queue   Drainer
	Replica *Replica
	Log     zerolog.Logger
}

// Drain implementa connectivity.Drainer.
func (s SyncThenRefresh) Drain(ctx context.Context) (syncqueue.Result, error) {
	res, err := s.Queue.Drain(ctx)
	if err != nil || res.Failed > 0 || res.Deferred > 0 {
		return res, err
	}
	if _, err := s.Replica.Refresh(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("no se pudo refrescar el caché local")
	}
	return res, nil
}
