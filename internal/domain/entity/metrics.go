package entity

import "github.com/shopspring/decimal"

// Metrics indicadores derivados de un ítem. Se recalculan bajo demanda desde lotes
// y movimientos; nunca se almacenan de forma independiente.
type Metrics struct {
	ItemID              string
	TotalQuantity       decimal.Decimal
	TotalValue          decimal.Decimal
	WeightedAverageCost decimal.Decimal

	TurnoverRate float64 // rotación anualizada
	AverageAge   float64 // edad media en días, ponderada por cantidad restante
	StockoutRisk float64 // [0,1]

	ExcessStock          decimal.Decimal // existencia por encima de MaxStock
	OptimalOrderQuantity float64         // EOQ

	CostOfGoodsSold       decimal.Decimal // salidas de los últimos 30 días
	AverageInventoryValue decimal.Decimal
}
