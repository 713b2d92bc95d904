package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/almacen-sync/internal/application/dto"
)

// onlineChecker contrato mínimo del monitor de conectividad.
// Lo implementa *connectivity.Monitor; la interfaz evita acoplar el router al monitor.
type onlineChecker interface {
	IsOnline() bool
}

// RequireOnline corta con 503 las rutas que necesitan el servicio remoto
// (cancelaciones, refresco de la réplica) cuando no hay conexión.
func RequireOnline(checker onlineChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !checker.IsOnline() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Code:    "OFFLINE",
				Message: "operación no disponible sin conexión",
			})
		}
		return c.Next()
	}
}
