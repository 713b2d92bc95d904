package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jhoicas/almacen-sync/internal/application/connectivity"
	"github.com/jhoicas/almacen-sync/internal/application/custody"
	"github.com/jhoicas/almacen-sync/internal/application/ledger"
	"github.com/jhoicas/almacen-sync/internal/application/replica"
	"github.com/jhoicas/almacen-sync/internal/application/report"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Ledger    *ledger.Ledger
	Custody   *custody.Service
	Exporter  *report.MovementExporter
	Queue     *syncqueue.Manager
	Monitor   *connectivity.Monitor
	Replica   *replica.Replica
	Metrics   http.Handler // nil = sin /metrics
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	syncHandler := NewSyncHandler(deps.Monitor, deps.Queue, deps.Replica)

	// Público
	app.Get("/health", syncHandler.Health)
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))
	anyRole := RequireRole(jwt.RoleAdmin, jwt.RoleOperator)
	adminOnly := RequireRole(jwt.RoleAdmin)
	online := RequireOnline(deps.Monitor)

	// Products
	products := api.Group("/products")
	productHandler := NewProductHandler(deps.Ledger)
	products.Get("/", anyRole, productHandler.List)
	products.Get("/next-sku", anyRole, productHandler.NextSKU)
	products.Get("/tag/:tag", anyRole, productHandler.GetByTag)
	products.Get("/sku/:sku", anyRole, productHandler.GetBySKU)
	products.Get("/:id", anyRole, productHandler.GetByID)
	products.Get("/:id/movements", anyRole, productHandler.Movements)
	products.Get("/:id/audit", anyRole, productHandler.Audit)
	products.Post("/", adminOnly, productHandler.Create)
	products.Put("/:id", adminOnly, productHandler.Update)
	products.Post("/:id/deactivate", adminOnly, productHandler.Deactivate)
	products.Delete("/:id", adminOnly, productHandler.Delete)

	// Movements
	movements := api.Group("/movements")
	movementHandler := NewMovementHandler(deps.Ledger, deps.Exporter)
	movements.Get("/", anyRole, movementHandler.List)
	movements.Get("/export", anyRole, movementHandler.Export)
	movements.Post("/", anyRole, movementHandler.Register)
	movements.Post("/quick-withdrawal", anyRole, movementHandler.QuickWithdrawal)
	movements.Get("/:id", anyRole, movementHandler.GetByID)
	movements.Post("/:id/cancel", adminOnly, online, movementHandler.Cancel)

	// Collaborators
	collaborators := api.Group("/collaborators")
	collaboratorHandler := NewCollaboratorHandler(deps.Custody)
	collaborators.Get("/", anyRole, collaboratorHandler.List)
	collaborators.Get("/:id", anyRole, collaboratorHandler.GetByID)
	collaborators.Get("/:id/possession", anyRole, collaboratorHandler.Possession)
	collaborators.Get("/:id/due", anyRole, collaboratorHandler.DueItems)
	collaborators.Get("/:id/periodicities", anyRole, collaboratorHandler.Periodicities)
	collaborators.Post("/", adminOnly, collaboratorHandler.Create)
	collaborators.Put("/:id", adminOnly, collaboratorHandler.Update)
	collaborators.Put("/:id/periodicities", adminOnly, collaboratorHandler.UpsertPeriodicity)
	api.Get("/alerts", anyRole, collaboratorHandler.Alerts)

	// Sync
	syncGroup := api.Group("/sync")
	syncGroup.Get("/status", anyRole, syncHandler.Status)
	syncGroup.Post("/", anyRole, syncHandler.Trigger)
	syncGroup.Get("/queue", adminOnly, syncHandler.Queue)
	syncGroup.Delete("/queue/synced", adminOnly, syncHandler.Purge)
	syncGroup.Post("/refresh", adminOnly, online, syncHandler.Refresh)
}
