package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de movimiento de inventario.
const (
	MovementTypeIN         = "IN"         // entrada por compra
	MovementTypeOUT        = "OUT"        // salida por consumo FIFO
	MovementTypeADJUSTMENT = "ADJUSTMENT" // ajuste absoluto sobre un lote
)

// Movement es un asiento append-only del libro de inventario. Nunca se muta ni se
// borra: es la pista de auditoría y la única entrada de los cálculos de rotación
// y pronóstico. Quantity es siempre positiva; Type indica la dirección.
type Movement struct {
	ID          string
	ItemID      string
	LotID       string
	Type        string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	TotalCost   decimal.Decimal
	Reason      string
	ReferenceID string
	Notes       string
	PerformedBy string
	PerformedAt time.Time
}
