package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/invorya/inventory-core/internal/application/dto"
	"github.com/invorya/inventory-core/internal/application/inventory"
	"github.com/invorya/inventory-core/internal/domain"
)

// InventoryHandler maneja las peticiones HTTP del inventario.
type InventoryHandler struct {
	svc *inventory.Service
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(svc *inventory.Service) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// AddStock registra un lote de compra para el ítem de la ruta.
func (h *InventoryHandler) AddStock(c *fiber.Ctx) error {
	var in dto.AddStockRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	res, err := h.svc.AddStock(c.Context(), inventory.AddStockRequest{
		ItemID:       c.Params("id"),
		Quantity:     in.Quantity,
		UnitCost:     in.UnitCost,
		PurchaseDate: in.PurchaseDate,
		ExpiryDate:   in.ExpiryDate,
		BatchNumber:  in.BatchNumber,
		SupplierID:   in.SupplierID,
		WarehouseID:  in.WarehouseID,
		PerformedBy:  in.PerformedBy,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// RemoveStock consume existencia del ítem en orden FIFO.
func (h *InventoryHandler) RemoveStock(c *fiber.Ctx) error {
	var in dto.RemoveStockRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	res, err := h.svc.RemoveStock(c.Context(), inventory.RemoveStockRequest{
		ItemID:      c.Params("id"),
		Quantity:    in.Quantity,
		Reason:      in.Reason,
		ReferenceID: in.ReferenceID,
		PerformedBy: in.PerformedBy,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// AdjustStock fija la cantidad restante de un lote del ítem.
func (h *InventoryHandler) AdjustStock(c *fiber.Ctx) error {
	var in dto.AdjustStockRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	res, err := h.svc.AdjustStock(c.Context(), inventory.AdjustStockRequest{
		ItemID:      c.Params("id"),
		LotID:       in.LotID,
		NewQuantity: in.NewQuantity,
		Reason:      in.Reason,
		PerformedBy: in.PerformedBy,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// GetStatus devuelve el estado consolidado del ítem.
func (h *InventoryHandler) GetStatus(c *fiber.Ctx) error {
	status, err := h.svc.GetInventoryStatus(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// GetSnapshot devuelve una página del catálogo con filtros.
func (h *InventoryHandler) GetSnapshot(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "parámetros inválidos"})
	}
	page.DefaultPage()
	snap, err := h.svc.GetInventorySnapshot(c.Context(), inventory.SnapshotRequest{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Offset:   page.Offset,
		Limit:    page.Limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

// GetForecast pronostica la demanda del ítem.
func (h *InventoryHandler) GetForecast(c *fiber.Ctx) error {
	days := c.QueryInt("days", 14)
	if days <= 0 || days > 365 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "days fuera de rango"})
	}
	forecasts, err := h.svc.GetDemandForecast(c.Context(), c.Params("id"), days)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"item_id": c.Params("id"), "days": days, "forecasts": forecasts})
}

// GetReorderSuggestions devuelve las sugerencias de reposición ordenadas por urgencia.
func (h *InventoryHandler) GetReorderSuggestions(c *fiber.Ctx) error {
	suggestions, err := h.svc.GetReorderSuggestions(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"total": len(suggestions), "suggestions": suggestions})
}

// GetTurnover analiza la rotación del catálogo completo.
func (h *InventoryHandler) GetTurnover(c *fiber.Ctx) error {
	analysis, err := h.svc.AnalyzeInventoryTurnover(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(analysis)
}

// ProcessBatch ejecuta un lote de operaciones de inventario.
func (h *InventoryHandler) ProcessBatch(c *fiber.Ctx) error {
	var in dto.BatchRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	ops := make([]inventory.BatchOperation, 0, len(in.Operations))
	for _, op := range in.Operations {
		ops = append(ops, toBatchOperation(op))
	}

	results := h.svc.ProcessBatchOperations(c.Context(), ops)
	out := make([]dto.BatchOperationResponse, 0, len(results))
	for _, r := range results {
		resp := dto.BatchOperationResponse{
			Index:     r.Index,
			Type:      string(r.Type),
			Succeeded: r.Err == nil,
			Movements: len(r.Movements),
			Alerts:    len(r.Alerts),
		}
		if r.Err != nil {
			resp.Error = r.Err.Error()
		}
		out = append(out, resp)
	}
	return c.JSON(fiber.Map{"total": len(out), "results": out})
}

func toBatchOperation(op dto.BatchOperationRequest) inventory.BatchOperation {
	out := inventory.BatchOperation{Type: inventory.BatchOperationType(op.Type)}
	switch {
	case op.Add != nil:
		out.Add = &inventory.AddStockRequest{
			ItemID:       op.ItemID,
			Quantity:     op.Add.Quantity,
			UnitCost:     op.Add.UnitCost,
			PurchaseDate: op.Add.PurchaseDate,
			ExpiryDate:   op.Add.ExpiryDate,
			BatchNumber:  op.Add.BatchNumber,
			SupplierID:   op.Add.SupplierID,
			WarehouseID:  op.Add.WarehouseID,
			PerformedBy:  op.Add.PerformedBy,
		}
	case op.Remove != nil:
		out.Remove = &inventory.RemoveStockRequest{
			ItemID:      op.ItemID,
			Quantity:    op.Remove.Quantity,
			Reason:      op.Remove.Reason,
			ReferenceID: op.Remove.ReferenceID,
			PerformedBy: op.Remove.PerformedBy,
		}
	case op.Adjust != nil:
		out.Adjust = &inventory.AdjustStockRequest{
			ItemID:      op.ItemID,
			LotID:       op.Adjust.LotID,
			NewQuantity: op.Adjust.NewQuantity,
			Reason:      op.Adjust.Reason,
			PerformedBy: op.Adjust.PerformedBy,
		}
	}
	return out
}

// respondError traduce errores de dominio a códigos HTTP.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrLotNotFound),
		errors.Is(err, domain.ErrAlertNotFound), errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrInsufficientStock):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INSUFFICIENT_STOCK", Message: err.Error()})
	case errors.Is(err, domain.ErrNoStockAvailable):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NO_STOCK_AVAILABLE", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
