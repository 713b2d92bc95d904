package ports

import (
	"context"

	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción del almacén local, pasando
// repositorios atados a esa tx. La entrada de cola y la actualización de la caché
// quedan aplicadas juntas o ninguna.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos repository.Repositories) error) error
}
