package testutil

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/almacen-sync/internal/infrastructure/localstore"
)

// NewLocalStore abre un almacén local en un directorio temporal del test.
func NewLocalStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(localstore.Config{Path: filepath.Join(t.TempDir(), "almacen.db")}, zerolog.Nop())
	require.NoError(t, err, "debe abrir el almacén local de prueba")
	t.Cleanup(func() { _ = s.Close() })
	return s
}
