package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item representa un ítem del catálogo de inventario con su configuración de reposición.
// Los campos derivados (TotalQuantity, TotalValue, WeightedAverageCost) los posee el motor
// de lotes y se recalculan tras cada mutación; no se editan directamente.
//
// Se espera 0 <= SafetyStock <= ReorderPoint <= MaxStock, pero no se valida en la
// construcción: es responsabilidad del caller que carga el catálogo.
type Item struct {
	ID           string
	Name         string
	Category     string
	Unit         string // unidad de medida (kg, un, lt)
	SafetyStock  decimal.Decimal
	ReorderPoint decimal.Decimal
	MaxStock     decimal.Decimal
	LeadTimeDays int

	// AverageDailyCost consumo diario promedio en unidades (derivado del historial).
	AverageDailyCost decimal.Decimal

	// Derivados del libro de lotes.
	TotalQuantity       decimal.Decimal
	TotalValue          decimal.Decimal
	WeightedAverageCost decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}
