package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/almacen-sync/internal/application/dto"
	"github.com/jhoicas/almacen-sync/internal/application/ledger"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
)

// ProductHandler maneja las peticiones HTTP del catálogo (protegido).
type ProductHandler struct {
	ledger *ledger.Ledger
}

// NewProductHandler construye el handler.
func NewProductHandler(l *ledger.Ledger) *ProductHandler {
	return &ProductHandler{ledger: l}
}

// Create godoc
// @Summary      Crear producto
// @Description  SKU vacío toma el siguiente código automático. initial_quantity se registra como entrada.
// @Tags         products
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateProductRequest  true  "Datos del producto"
// @Success      201   {object}  dto.ProductResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/products [post]
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateProductRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	p, err := h.ledger.RegisterProduct(c.UserContext(), ledger.ProductInput{
		SKU:             in.SKU,
		Name:            in.Name,
		Category:        in.Category,
		Unit:            in.Unit,
		MinStock:        in.MinStock,
		Tag:             in.Tag,
		Lessor:          in.Lessor,
		Location:        in.Location,
		UnitCost:        in.UnitCost,
		InitialQuantity: in.InitialQuantity,
		Actor:           actor(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewProductResponse(p))
}

// GetByID godoc
// @Summary      Obtener producto por ID
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto (temporal o permanente)"
// @Success      200  {object}  dto.ProductResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id} [get]
func (h *ProductHandler) GetByID(c *fiber.Ctx) error {
	p, err := h.ledger.GetProduct(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewProductResponse(p))
}

// GetByTag godoc
// @Summary      Buscar producto por TAG
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        tag  path  string  true  "TAG del producto"
// @Success      200  {object}  dto.ProductResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/tag/{tag} [get]
func (h *ProductHandler) GetByTag(c *fiber.Ctx) error {
	p, err := h.ledger.ProductByTag(c.Params("tag"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewProductResponse(p))
}

// GetBySKU godoc
// @Summary      Buscar producto por SKU
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        sku  path  string  true  "SKU del producto"
// @Success      200  {object}  dto.ProductResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/sku/{sku} [get]
func (h *ProductHandler) GetBySKU(c *fiber.Ctx) error {
	p, err := h.ledger.ProductBySKU(c.Params("sku"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewProductResponse(p))
}

// List godoc
// @Summary      Listar productos
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        category          query  string  false  "Categoría"
// @Param        q                 query  string  false  "Texto en nombre, SKU o TAG"
// @Param        tag               query  string  false  "TAG exacto"
// @Param        low_stock         query  bool    false  "Solo en o bajo el mínimo"
// @Param        include_inactive  query  bool    false  "Incluir desactivados"
// @Success      200  {object}  dto.ProductListResponse
// @Router       /api/products [get]
func (h *ProductHandler) List(c *fiber.Ctx) error {
	list, err := h.ledger.ListProducts(repository.ProductFilter{
		Category:        c.Query("category"),
		Search:          c.Query("q"),
		Tag:             c.Query("tag"),
		LowStockOnly:    c.QueryBool("low_stock"),
		IncludeInactive: c.QueryBool("include_inactive"),
	})
	if err != nil {
		return respondError(c, err)
	}
	items := make([]dto.ProductResponse, 0, len(list))
	for _, p := range list {
		items = append(items, dto.NewProductResponse(p))
	}
	return c.JSON(dto.ProductListResponse{Items: items, Total: len(items)})
}

// Update godoc
// @Summary      Actualizar producto
// @Description  La cantidad no se edita: solo cambia con movimientos.
// @Tags         products
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "ID del producto"
// @Param        body  body  dto.UpdateProductRequest  true  "Campos a cambiar"
// @Success      200   {object}  dto.ProductResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/products/{id} [put]
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	var in dto.UpdateProductRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	p, err := h.ledger.UpdateProduct(c.UserContext(), c.Params("id"), ledger.ProductPatch{
		SKU:      in.SKU,
		Name:     in.Name,
		Category: in.Category,
		Unit:     in.Unit,
		MinStock: in.MinStock,
		Tag:      in.Tag,
		Lessor:   in.Lessor,
		Location: in.Location,
		Active:   in.Active,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewProductResponse(p))
}

// Deactivate godoc
// @Summary      Desactivar producto
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.ProductResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/deactivate [post]
func (h *ProductHandler) Deactivate(c *fiber.Ctx) error {
	p, err := h.ledger.DeactivateProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewProductResponse(p))
}

// Delete godoc
// @Summary      Eliminar producto
// @Description  Solo productos sin movimientos; los demás se desactivan.
// @Tags         products
// @Security     Bearer
// @Param        id   path  string  true  "ID del producto"
// @Success      204
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/products/{id} [delete]
func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	if err := h.ledger.DeleteProduct(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// NextSKU godoc
// @Summary      Siguiente SKU sugerido
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/products/next-sku [get]
func (h *ProductHandler) NextSKU(c *fiber.Ctx) error {
	sku, err := h.ledger.NextSKU()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"sku": sku})
}

// Movements godoc
// @Summary      Historial de un producto
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.MovementListResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/movements [get]
func (h *ProductHandler) Movements(c *fiber.Ctx) error {
	list, err := h.ledger.ProductMovements(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewMovementListResponse(list))
}

// Audit godoc
// @Summary      Auditar la cantidad de un producto
// @Description  Recalcula el saldo a partir de los movimientos no cancelados y reporta la diferencia.
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.AuditResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/audit [get]
func (h *ProductHandler) Audit(c *fiber.Ctx) error {
	rep, err := h.ledger.Audit(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.AuditResponse{
		ProductID:  rep.ProductID,
		Projected:  rep.Projected,
		Recomputed: rep.Recomputed,
		Drift:      rep.Drift,
		Movements:  rep.Movements,
		Consistent: rep.Consistent,
	})
}
