package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ForecastMethod etiqueta heurística del método recomendado para un ítem.
// Es informativa: el pronóstico siempre combina los mismos estimadores.
type ForecastMethod string

const (
	MethodMovingAverage        ForecastMethod = "MOVING_AVERAGE"
	MethodExponentialSmoothing ForecastMethod = "EXPONENTIAL_SMOOTHING"
	MethodARIMA                ForecastMethod = "ARIMA"
	MethodML                   ForecastMethod = "ML"
)

// DemandForecast pronóstico de demanda para un día futuro. Efímero: se regenera en
// cada llamada desde el historial de movimientos y solo se cachea con TTL corto.
type DemandForecast struct {
	ItemID            string
	Date              time.Time
	PredictedDemand   float64 // unidades, >= 0, redondeado
	Confidence        float64 // [0,1]
	SeasonalityFactor float64 // multiplicador mensual
	TrendFactor       float64 // 1.0 = sin tendencia
}

// ReorderUrgency prioridad de una sugerencia de reposición.
type ReorderUrgency string

const (
	UrgencyCritical ReorderUrgency = "CRITICAL"
	UrgencyHigh     ReorderUrgency = "HIGH"
	UrgencyMedium   ReorderUrgency = "MEDIUM"
	UrgencyLow      ReorderUrgency = "LOW"
)

// Rank orden de urgencia para ordenamiento (menor = más urgente).
func (u ReorderUrgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	default:
		return 3
	}
}

// ReorderSuggestion sugerencia de reposición para un ítem bajo stock requerido.
type ReorderSuggestion struct {
	ItemID            string
	ItemName          string
	CurrentStock      decimal.Decimal
	LeadTimeDemand    float64
	RequiredStock     float64
	SuggestedQuantity decimal.Decimal
	EstimatedCost     decimal.Decimal
	Urgency           ReorderUrgency
	DaysOfStock       float64
}
