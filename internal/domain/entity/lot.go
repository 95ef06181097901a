package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot representa un lote de compra inmutable con cantidad restante mutable.
// Invariante: 0 <= RemainingQuantity <= Quantity. Un lote con RemainingQuantity = 0
// está agotado: se excluye del consumo FIFO y de las consultas de vencimiento,
// pero se conserva como pista de auditoría.
type Lot struct {
	ID                string
	ItemID            string
	Quantity          decimal.Decimal // cantidad original de la compra
	RemainingQuantity decimal.Decimal
	UnitCost          decimal.Decimal
	PurchaseDate      time.Time
	ExpiryDate        *time.Time // nil = no perecedero
	SupplierID        string
	WarehouseID       string
	BatchNumber       string // formato YYMMDD-XXXX
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Active indica si el lote aún tiene existencia disponible.
func (l *Lot) Active() bool {
	return l.RemainingQuantity.GreaterThan(decimal.Zero)
}
