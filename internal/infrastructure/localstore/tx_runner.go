package localstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jhoicas/almacen-sync/internal/application/ports"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// Ensure TxRunner implements ports.TxRunner.
var _ ports.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción SQLite.
type TxRunner struct {
	store *Store
}

// NewTxRunner construye el runner con el almacén local.
func NewTxRunner(store *Store) *TxRunner {
	return &TxRunner{store: store}
}

// Run inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
// Dentro de fn solo deben usarse los repos recibidos: el almacén tiene una única conexión.
func (r *TxRunner) Run(ctx context.Context, fn func(repos repository.Repositories) error) error {
	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepositories(&Store{db: tx}))
	})
	if err != nil {
		return fmt.Errorf("local transaction: %w", err)
	}
	return nil
}
