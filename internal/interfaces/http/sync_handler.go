package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/almacen-sync/internal/application/connectivity"
	"github.com/jhoicas/almacen-sync/internal/application/dto"
	"github.com/jhoicas/almacen-sync/internal/application/replica"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
)

// SyncHandler expone el estado de conectividad y la cola de sincronización (protegido).
type SyncHandler struct {
	monitor *connectivity.Monitor
	queue   *syncqueue.Manager
	replica *replica.Replica
}

// NewSyncHandler construye el handler.
func NewSyncHandler(monitor *connectivity.Monitor, queue *syncqueue.Manager, rep *replica.Replica) *SyncHandler {
	return &SyncHandler{monitor: monitor, queue: queue, replica: rep}
}

// Status godoc
// @Summary      Estado de sincronización
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.SyncStatusResponse
// @Router       /api/sync/status [get]
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	pending, err := h.queue.PendingCount()
	if err != nil {
		return respondError(c, err)
	}
	out := dto.SyncStatusResponse{
		State:   string(h.monitor.State()),
		Online:  h.monitor.IsOnline(),
		Pending: pending,
	}
	if res, at, ok := h.queue.LastResult(); ok {
		out.LastResult = &res
		out.LastSyncAt = &at
	}
	return c.JSON(out)
}

// Trigger godoc
// @Summary      Sincronizar ahora
// @Description  Drena la cola de forma síncrona. Los fallos individuales quedan en la cola.
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  syncqueue.Result
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/sync [post]
func (h *SyncHandler) Trigger(c *fiber.Ctx) error {
	res, err := h.monitor.Sync(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Queue godoc
// @Summary      Operaciones de la cola
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Param        status  query  string  false  "pending | synced | error"
// @Success      200  {array}   entity.PendingOperation
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/sync/queue [get]
func (h *SyncHandler) Queue(c *fiber.Ctx) error {
	status := entity.SyncStatus(c.Query("status"))
	switch status {
	case "", entity.SyncPending, entity.SyncSynced, entity.SyncError:
	default:
		return badQuery(c, "status debe ser pending, synced o error")
	}
	ops, err := h.queue.List(status)
	if err != nil {
		return respondError(c, err)
	}
	if ops == nil {
		ops = []*entity.PendingOperation{}
	}
	return c.JSON(ops)
}

// Purge godoc
// @Summary      Purgar operaciones sincronizadas
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.PurgeResponse
// @Router       /api/sync/queue/synced [delete]
func (h *SyncHandler) Purge(c *fiber.Ctx) error {
	n, err := h.queue.PurgeSynced()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PurgeResponse{Deleted: n})
}

// Refresh godoc
// @Summary      Refrescar la caché local desde el remoto
// @Description  No hace nada si quedan operaciones pendientes.
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  replica.Result
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/sync/refresh [post]
func (h *SyncHandler) Refresh(c *fiber.Ctx) error {
	res, err := h.replica.Refresh(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Health godoc
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *SyncHandler) Health(c *fiber.Ctx) error {
	pending, err := h.queue.PendingCount()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "error", "error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"status":  "ok",
		"state":   string(h.monitor.State()),
		"pending": pending,
	})
}
