package replica_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/almacen-sync/internal/application/ports"
	"github.com/jhoicas/almacen-sync/internal/application/replica"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
	"github.com/jhoicas/almacen-sync/internal/infrastructure/localstore"
	"github.com/jhoicas/almacen-sync/internal/testutil"
)

type fixture struct {
	repos   repository.Repositories
	remote  *testutil.FakeRemote
	queue   *syncqueue.Manager
	replica *replica.Replica
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, testutil.NewFakeRemote(), nil)
}

// newFixtureWith permite que la réplica lea de un remoto envuelto.
func newFixtureWith(t *testing.T, remote *testutil.FakeRemote, reader ports.RemoteStore) *fixture {
	t.Helper()
	store := testutil.NewLocalStore(t)
	tx := localstore.NewTxRunner(store)
	repos := store.Repositories()
	if reader == nil {
		reader = remote
	}
	queue := syncqueue.NewManager(tx, repos, remote, syncqueue.Options{RemoteTimeout: time.Second, Logger: zerolog.Nop()})
	return &fixture{
		repos:   repos,
		remote:  remote,
		queue:   queue,
		replica: replica.New(tx, reader, queue, 5*time.Second, zerolog.Nop()),
	}
}

// pausedRemote detiene el primer List de movimientos hasta que el test lo libere.
type pausedRemote struct {
	*testutil.FakeRemote
	once    sync.Once
	fetched chan struct{}
	release chan struct{}
}

func newPausedRemote(remote *testutil.FakeRemote) *pausedRemote {
	return &pausedRemote{FakeRemote: remote, fetched: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausedRemote) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	docs, err := p.FakeRemote.List(ctx, collection)
	if collection == entity.CollectionMovements {
		p.once.Do(func() {
			close(p.fetched)
			<-p.release
		})
	}
	return docs, err
}

func TestRefresh_TraeElRemotoYAjustaContadores(t *testing.T) {
	f := newFixture(t)
	f.remote.Seed(entity.CollectionProducts, map[string]any{"id": "P1", "sku": "000042", "name": "Cone", "quantity": "7", "active": true})
	f.remote.Seed(entity.CollectionMovements, map[string]any{"id": "M1", "seq": 90, "product_id": "P1", "kind": "receipt", "quantity": "7", "status": "confirmed"})
	require.NoError(t, f.repos.Products.Create(&entity.Product{ID: "viejo", SKU: "X", Name: "Borrado en otro equipo"}))

	res, err := f.replica.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Collections[entity.CollectionProducts])

	p, err := f.repos.Products.GetByID("P1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, decimal.NewFromInt(7).Equal(p.Quantity))
	gone, err := f.repos.Products.GetByID("viejo")
	require.NoError(t, err)
	assert.Nil(t, gone, "el remoto gana")

	sku, err := f.repos.Sequences.Next(repository.SeqSKU)
	require.NoError(t, err)
	assert.Equal(t, int64(43), sku)
	seq, err := f.repos.Sequences.Next(repository.SeqMovements)
	require.NoError(t, err)
	assert.Equal(t, int64(91), seq)
}

func TestRefresh_ConColaPendienteNoToca(t *testing.T) {
	f := newFixture(t)
	f.remote.Seed(entity.CollectionCollaborators, map[string]any{"id": "R1", "name": "Remoto"})
	_, err := f.queue.Enqueue(context.Background(), syncqueue.Request{
		Kind: entity.OperationInsert, Collection: entity.CollectionCollaborators, EntityID: "L1",
		Payload: &entity.Collaborator{ID: "L1", Name: "Local"},
	})
	require.NoError(t, err)

	res, err := f.replica.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	c, err := f.repos.Collaborators.GetByID("R1")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSyncThenRefresh_DrenaYDespuesRefresca(t *testing.T) {
	f := newFixture(t)
	_, err := f.queue.Enqueue(context.Background(), syncqueue.Request{
		Kind: entity.OperationInsert, Collection: entity.CollectionCollaborators, EntityID: "L1",
		Payload: &entity.Collaborator{ID: "L1", Name: "Local"},
	})
	require.NoError(t, err)
	d := replica.SyncThenRefresh{Queue: f.queue, Replica: f.replica, Log: zerolog.Nop()}

	res, err := d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncqueue.Result{Succeeded: 1}, res)
	c, err := f.repos.Collaborators.GetByID("L1")
	require.NoError(t, err)
	require.NotNil(t, c, "el refresco trae lo que se acaba de sincronizar")
	assert.Equal(t, "Local", c.Name)
}

func TestRefresh_RemotoCaidoDevuelveError(t *testing.T) {
	f := newFixture(t)
	f.remote.SetOffline(true)
	_, err := f.replica.Refresh(context.Background())
	assert.Error(t, err)
}

func TestRefresh_NoPisaUnaOperacionConfirmadaDuranteLaDescarga(t *testing.T) {
	remote := testutil.NewFakeRemote()
	paused := newPausedRemote(remote)
	f := newFixtureWith(t, remote, paused)
	ctx := context.Background()

	type outcome struct {
		res replica.Result
		err error
	}
	refreshed := make(chan outcome, 1)
	go func() {
		res, err := f.replica.Refresh(ctx)
		refreshed <- outcome{res, err}
	}()
	<-paused.fetched

	// mutación local mientras la foto remota ya está tomada
	require.NoError(t, f.repos.Collaborators.Create(&entity.Collaborator{ID: "L1", Name: "Local"}))
	_, err := f.queue.Enqueue(ctx, syncqueue.Request{
		Kind: entity.OperationInsert, Collection: entity.CollectionCollaborators, EntityID: "L1",
		Payload: &entity.Collaborator{ID: "L1", Name: "Local"},
	})
	require.NoError(t, err)

	drained := make(chan syncqueue.Result, 1)
	go func() {
		res, _ := f.queue.Drain(ctx)
		drained <- res
	}()
	close(paused.release)

	out := <-refreshed
	require.NoError(t, out.err)
	assert.True(t, out.res.Skipped, "la foto es anterior a la operación encolada")
	assert.Equal(t, syncqueue.Result{Succeeded: 1}, <-drained)

	c, err := f.repos.Collaborators.GetByID("L1")
	require.NoError(t, err)
	require.NotNil(t, c, "el caché conserva la mutación local")
	assert.Equal(t, "Local", c.Name)
	assert.Equal(t, 1, remote.Count(entity.CollectionCollaborators))
}
