package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInsufficientStock = errors.New("stock insuficiente")

	// Ledger.
	ErrAlreadyCancelled = errors.New("movimiento ya cancelado")
	ErrPendingSync      = errors.New("movimiento pendiente de sincronización")

	// Sincronización con el sistema remoto.
	ErrOffline           = errors.New("operación no disponible sin conexión")
	ErrRemoteUnavailable = errors.New("servicio remoto no disponible")
	ErrRemoteRejected    = errors.New("operación rechazada por el servicio remoto")
	ErrUnresolvedID      = errors.New("identificador temporal sin confirmar")
)
