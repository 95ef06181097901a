package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/invorya/inventory-core/internal/application/alerts"
	"github.com/invorya/inventory-core/internal/application/inventory"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	InventoryService *inventory.Service
	AlertMonitor     *alerts.Monitor
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	inv := api.Group("/inventory")
	inventoryHandler := NewInventoryHandler(deps.InventoryService)
	inv.Get("/", inventoryHandler.GetSnapshot)
	inv.Get("/turnover", inventoryHandler.GetTurnover)
	inv.Get("/reorder-suggestions", inventoryHandler.GetReorderSuggestions)
	inv.Post("/batch", inventoryHandler.ProcessBatch)
	inv.Get("/:id", inventoryHandler.GetStatus)
	inv.Get("/:id/forecast", inventoryHandler.GetForecast)
	inv.Post("/:id/stock", inventoryHandler.AddStock)
	inv.Post("/:id/remove", inventoryHandler.RemoveStock)
	inv.Post("/:id/adjust", inventoryHandler.AdjustStock)

	alertsGroup := api.Group("/alerts")
	alertsHandler := NewAlertsHandler(deps.InventoryService, deps.AlertMonitor)
	alertsGroup.Get("/", alertsHandler.ListActive)
	alertsGroup.Get("/statistics", alertsHandler.Statistics)
	alertsGroup.Post("/:id/acknowledge", alertsHandler.Acknowledge)
}
