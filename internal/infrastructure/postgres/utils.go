package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/almacen-sync/internal/domain"
)

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "23505")
}

// classify traduce errores de pgx a la taxonomía del puerto remoto:
// sin respuesta del servidor es ErrRemoteUnavailable (se reintenta); una respuesta de error
// del servidor es ErrRemoteRejected.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// clase 08 (conexión) y 57P0x (servidor apagándose) son transitorios
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0") {
			return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w: %v", domain.ErrRemoteRejected, domain.ErrDuplicate, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrRemoteRejected, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", domain.ErrRemoteRejected, err)
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrRemoteRejected, err)
}
