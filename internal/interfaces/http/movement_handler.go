package http

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/almacen-sync/internal/application/dto"
	"github.com/jhoicas/almacen-sync/internal/application/ledger"
	"github.com/jhoicas/almacen-sync/internal/application/report"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// MovementHandler maneja las peticiones HTTP del ledger de movimientos (protegido).
type MovementHandler struct {
	ledger   *ledger.Ledger
	exporter *report.MovementExporter
	now      func() time.Time
}

// NewMovementHandler construye el handler.
func NewMovementHandler(l *ledger.Ledger, exporter *report.MovementExporter) *MovementHandler {
	return &MovementHandler{ledger: l, exporter: exporter, now: time.Now}
}

// Register godoc
// @Summary      Registrar movimiento
// @Description  Entradas suman; salidas, bajas y devoluciones a proveedor descuentan y fallan
//
//	con 409 si el stock quedaría negativo. Sin conexión queda en la cola.
//
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterMovementRequest  true  "product_id, kind, quantity"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/movements [post]
func (h *MovementHandler) Register(c *fiber.Ctx) error {
	var in dto.RegisterMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	kind, err := entity.ParseMovementKind(in.Kind)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	mi := ledger.MovementInput{
		ProductID:      in.ProductID,
		Kind:           kind,
		Quantity:       in.Quantity,
		Actor:          actor(c),
		CollaboratorID: in.CollaboratorID,
		HandledByID:    in.HandledByID,
		Tag:            in.Tag,
		Lessor:         in.Lessor,
		UnitPrice:      in.UnitPrice,
		Notes:          in.Notes,
		Purpose:        in.Purpose,
	}
	if in.Timestamp != nil {
		mi.Timestamp = *in.Timestamp
	}
	m, err := h.ledger.ApplyMovement(c.UserContext(), mi)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewMovementResponse(m))
}

// QuickWithdrawal godoc
// @Summary      Salida rápida por TAG
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.QuickWithdrawalRequest  true  "tag, collaborator_id"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/movements/quick-withdrawal [post]
func (h *MovementHandler) QuickWithdrawal(c *fiber.Ctx) error {
	var in dto.QuickWithdrawalRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	m, err := h.ledger.QuickWithdrawal(c.UserContext(), ledger.QuickWithdrawalInput{
		Tag:            in.Tag,
		CollaboratorID: in.CollaboratorID,
		HandledByID:    in.HandledByID,
		Quantity:       in.Quantity,
		Actor:          actor(c),
		Notes:          in.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewMovementResponse(m))
}

// GetByID godoc
// @Summary      Obtener movimiento
// @Tags         movements
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del movimiento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/movements/{id} [get]
func (h *MovementHandler) GetByID(c *fiber.Ctx) error {
	m, err := h.ledger.GetMovement(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewMovementResponse(m))
}

// List godoc
// @Summary      Historial de movimientos
// @Tags         movements
// @Security     Bearer
// @Produce      json
// @Param        product_id       query  string  false  "Producto"
// @Param        collaborator_id  query  string  false  "Colaborador"
// @Param        kind             query  string  false  "receipt | withdrawal | write_off | supplier_return"
// @Param        status           query  string  false  "confirmed | cancelled | pending_sync"
// @Param        days             query  int     false  "Solo los últimos N días"
// @Param        limit            query  int     false  "Máximo de filas"
// @Success      200  {object}  dto.MovementListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/movements [get]
func (h *MovementHandler) List(c *fiber.Ctx) error {
	filter, err := h.filter(c)
	if err != nil {
		return badQuery(c, err.Error())
	}
	list, err := h.ledger.ListMovements(filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewMovementListResponse(list))
}

// Cancel godoc
// @Summary      Cancelar movimiento
// @Description  Requiere conexión. Revierte el efecto en la cantidad y conserva el movimiento como cancelado.
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                      true   "ID del movimiento"
// @Param        body  body  dto.CancelMovementRequest  false  "Motivo"
// @Success      200   {object}  dto.MovementResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/movements/{id}/cancel [post]
func (h *MovementHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelMovementRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	m, err := h.ledger.CancelMovement(c.UserContext(), c.Params("id"), in.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewMovementResponse(m))
}

// Export godoc
// @Summary      Exportar movimientos
// @Description  CSV separado por ';' (UTF-8 o Windows-1252) o XLSX. Acepta los mismos filtros que el historial.
// @Tags         movements
// @Security     Bearer
// @Produce      text/csv
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        format    query  string  false  "csv | xlsx"  default(csv)
// @Param        encoding  query  string  false  "utf-8 | windows-1252"
// @Success      200
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/movements/export [get]
func (h *MovementHandler) Export(c *fiber.Ctx) error {
	filter, err := h.filter(c)
	if err != nil {
		return badQuery(c, err.Error())
	}
	rows, err := h.exporter.Rows(filter)
	if err != nil {
		return respondError(c, err)
	}
	stamp := h.now().Format("20060102_150405")
	var buf bytes.Buffer
	switch strings.ToLower(c.Query("format", "csv")) {
	case "csv":
		enc, err := report.ParseEncoding(c.Query("encoding"))
		if err != nil {
			return badQuery(c, err.Error())
		}
		if err := h.exporter.WriteCSV(&buf, rows, enc); err != nil {
			return respondError(c, err)
		}
		charset := "utf-8"
		if enc == report.EncodingWindows1252 {
			charset = "windows-1252"
		}
		c.Attachment(fmt.Sprintf("movimientos_%s.csv", stamp))
		c.Set(fiber.HeaderContentType, "text/csv; charset="+charset)
	case "xlsx":
		if err := h.exporter.WriteXLSX(&buf, rows); err != nil {
			return respondError(c, err)
		}
		c.Attachment(fmt.Sprintf("movimientos_%s.xlsx", stamp))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	default:
		return badQuery(c, "format debe ser csv o xlsx")
	}
	return c.Send(buf.Bytes())
}

func (h *MovementHandler) filter(c *fiber.Ctx) (repository.MovementFilter, error) {
	f := repository.MovementFilter{
		ProductID:      c.Query("product_id"),
		CollaboratorID: c.Query("collaborator_id"),
		Status:         entity.MovementStatus(c.Query("status")),
		Limit:          c.QueryInt("limit", 0),
	}
	if k := c.Query("kind"); k != "" {
		kind, err := entity.ParseMovementKind(k)
		if err != nil {
			return f, err
		}
		f.Kind = kind
	}
	switch f.Status {
	case "", entity.MovementConfirmed, entity.MovementCancelled, entity.MovementPendingSync:
	default:
		return f, fmt.Errorf("estado desconocido %q", f.Status)
	}
	if days := c.QueryInt("days", 0); days > 0 {
		f.Since = h.now().AddDate(0, 0, -days)
	}
	if f.Limit < 0 {
		f.Limit = 0
	}
	return f, nil
}
