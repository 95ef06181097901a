package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/invorya/inventory-core/internal/application/alerts"
	"github.com/invorya/inventory-core/internal/application/dto"
	"github.com/invorya/inventory-core/internal/application/inventory"
)

// AlertsHandler maneja las peticiones HTTP de alertas. El acuse pasa por el
// servicio de orquestación, que además invalida el cache del ítem.
type AlertsHandler struct {
	svc     *inventory.Service
	monitor *alerts.Monitor
}

// NewAlertsHandler construye el handler.
func NewAlertsHandler(svc *inventory.Service, monitor *alerts.Monitor) *AlertsHandler {
	return &AlertsHandler{svc: svc, monitor: monitor}
}

// ListActive lista las alertas sin acuse, de todo el inventario o de un ítem
// (query item_id).
func (h *AlertsHandler) ListActive(c *fiber.Ctx) error {
	itemID := c.Query("item_id")
	var list any
	if itemID != "" {
		list = h.monitor.GetActiveAlerts(itemID)
	} else {
		list = h.monitor.GetAllActiveAlerts()
	}
	return c.JSON(fiber.Map{"alerts": list})
}

// Acknowledge estampa el acuse de recibo de una alerta.
func (h *AlertsHandler) Acknowledge(c *fiber.Ctx) error {
	var in dto.AcknowledgeAlertRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "user_id requerido"})
	}
	if err := h.svc.AcknowledgeAlert(c.Context(), c.Params("id"), in.UserID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "alerta reconocida"})
}

// Statistics devuelve los conteos agregados de alertas.
func (h *AlertsHandler) Statistics(c *fiber.Ctx) error {
	return c.JSON(h.monitor.GetAlertStatistics())
}
