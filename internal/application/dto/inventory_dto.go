package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PageRequest paginación para listados.
type PageRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// DefaultPage aplica valores por defecto si Limit/Offset son cero.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// AddStockRequest alta de un lote de compra.
type AddStockRequest struct {
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	PurchaseDate time.Time       `json:"purchase_date"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	BatchNumber  string          `json:"batch_number,omitempty"`
	SupplierID   string          `json:"supplier_id,omitempty"`
	WarehouseID  string          `json:"warehouse_id,omitempty"`
	PerformedBy  string          `json:"performed_by,omitempty"`
}

// RemoveStockRequest salida de existencia en orden FIFO.
type RemoveStockRequest struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
	PerformedBy string          `json:"performed_by,omitempty"`
}

// AdjustStockRequest ajuste absoluto de la cantidad restante de un lote.
type AdjustStockRequest struct {
	LotID       string          `json:"lot_id"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	Reason      string          `json:"reason,omitempty"`
	PerformedBy string          `json:"performed_by,omitempty"`
}

// AcknowledgeAlertRequest acuse de recibo de una alerta.
type AcknowledgeAlertRequest struct {
	UserID string `json:"user_id"`
}

// BatchOperationRequest una operación dentro de un lote.
type BatchOperationRequest struct {
	Type   string              `json:"type"` // ADD, REMOVE, ADJUST
	ItemID string              `json:"item_id"`
	Add    *AddStockRequest    `json:"add,omitempty"`
	Remove *RemoveStockRequest `json:"remove,omitempty"`
	Adjust *AdjustStockRequest `json:"adjust,omitempty"`
}

// BatchRequest lote de operaciones de inventario.
type BatchRequest struct {
	Operations []BatchOperationRequest `json:"operations"`
}

// BatchOperationResponse resultado de una operación del lote.
type BatchOperationResponse struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
	Movements int    `json:"movements"`
	Alerts    int    `json:"alerts"`
}
