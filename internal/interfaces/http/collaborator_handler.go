package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/almacen-sync/internal/application/custody"
	"github.com/jhoicas/almacen-sync/internal/application/dto"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/inventory"
)

// CollaboratorHandler maneja colaboradores, periodicidades y alertas de devolución (protegido).
type CollaboratorHandler struct {
	svc *custody.Service
}

// NewCollaboratorHandler construye el handler.
func NewCollaboratorHandler(svc *custody.Service) *CollaboratorHandler {
	return &CollaboratorHandler{svc: svc}
}

// Create godoc
// @Summary      Registrar colaborador
// @Tags         collaborators
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CollaboratorRequest  true  "id (matrícula) y nombre"
// @Success      201   {object}  entity.Collaborator
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/collaborators [post]
func (h *CollaboratorHandler) Create(c *fiber.Ctx) error {
	var in dto.CollaboratorRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.svc.RegisterCollaborator(c.UserContext(), toCollaborator(in))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Update godoc
// @Summary      Actualizar colaborador
// @Tags         collaborators
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                    true  "Matrícula"
// @Param        body  body  dto.CollaboratorRequest  true  "Datos"
// @Success      200   {object}  entity.Collaborator
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/collaborators/{id} [put]
func (h *CollaboratorHandler) Update(c *fiber.Ctx) error {
	var in dto.CollaboratorRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	in.ID = c.Params("id")
	out, err := h.svc.UpdateCollaborator(c.UserContext(), toCollaborator(in))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Obtener colaborador
// @Tags         collaborators
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "Matrícula"
// @Success      200  {object}  entity.Collaborator
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/collaborators/{id} [get]
func (h *CollaboratorHandler) GetByID(c *fiber.Ctx) error {
	out, err := h.svc.GetCollaborator(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}

// List godoc
// @Summary      Listar colaboradores
// @Tags         collaborators
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  entity.Collaborator
// @Router       /api/collaborators [get]
func (h *CollaboratorHandler) List(c *fiber.Ctx) error {
	list, err := h.svc.ListCollaborators()
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []*entity.Collaborator{}
	}
	return c.JSON(list)
}

// UpsertPeriodicity godoc
// @Summary      Configurar periodicidad de devolución
// @Tags         collaborators
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                  true  "Matrícula"
// @Param        body  body  dto.PeriodicityRequest  true  "product_id y max_days"
// @Success      200   {object}  entity.CollaboratorPeriodicity
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/collaborators/{id}/periodicities [put]
func (h *CollaboratorHandler) UpsertPeriodicity(c *fiber.Ctx) error {
	var in dto.PeriodicityRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	out, err := h.svc.UpsertPeriodicity(c.UserContext(), custody.PeriodicityInput{
		CollaboratorID: c.Params("id"),
		ProductID:      in.ProductID,
		MaxDays:        in.MaxDays,
		Active:         active,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}

// Periodicities godoc
// @Summary      Periodicidades del colaborador
// @Tags         collaborators
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "Matrícula"
// @Success      200  {array}  entity.CollaboratorPeriodicity
// @Router       /api/collaborators/{id}/periodicities [get]
func (h *CollaboratorHandler) Periodicities(c *fiber.Ctx) error {
	list, err := h.svc.Periodicities(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []*entity.CollaboratorPeriodicity{}
	}
	return c.JSON(list)
}

// Possession godoc
// @Summary      Material en poder del colaborador
// @Description  Derivado del ledger: salidas menos entradas por producto, sin contar cancelados.
// @Tags         collaborators
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "Matrícula"
// @Success      200  {object}  dto.PossessionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/collaborators/{id}/possession [get]
func (h *CollaboratorHandler) Possession(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.svc.GetCollaborator(id); err != nil {
		return respondError(c, err)
	}
	items, err := h.svc.Possession(id)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []inventory.PossessionItem{}
	}
	return c.JSON(dto.PossessionResponse{CollaboratorID: id, Items: items})
}

// DueItems godoc
// @Summary      Vencimientos de devolución del colaborador
// @Tags         collaborators
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "Matrícula"
// @Success      200  {object}  dto.DueItemsResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/collaborators/{id}/due [get]
func (h *CollaboratorHandler) DueItems(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.svc.GetCollaborator(id); err != nil {
		return respondError(c, err)
	}
	items, err := h.svc.DueItems(id)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []inventory.DueItem{}
	}
	return c.JSON(dto.DueItemsResponse{CollaboratorID: id, Items: items})
}

// Alerts godoc
// @Summary      Alertas de devolución
// @Description  Sin filtro devuelve lo vencido y lo por vencer de todos los colaboradores.
// @Tags         collaborators
// @Security     Bearer
// @Produce      json
// @Param        state  query  string  false  "on_time | due_soon | overdue"
// @Success      200  {array}   custody.Alert
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/alerts [get]
func (h *CollaboratorHandler) Alerts(c *fiber.Ctx) error {
	var state inventory.DueState
	if s := c.Query("state"); s != "" {
		parsed, err := inventory.ParseDueState(s)
		if err != nil {
			return badQuery(c, err.Error())
		}
		state = parsed
	}
	alerts, err := h.svc.Alerts(state)
	if err != nil {
		return respondError(c, err)
	}
	if alerts == nil {
		alerts = []custody.Alert{}
	}
	return c.JSON(alerts)
}

func toCollaborator(in dto.CollaboratorRequest) entity.Collaborator {
	return entity.Collaborator{
		ID:                  in.ID,
		Name:                in.Name,
		Role:                in.Role,
		Contract:            in.Contract,
		IsStorekeeper:       in.IsStorekeeper,
		CanHandleDeliveries: in.CanHandleDeliveries,
	}
}
