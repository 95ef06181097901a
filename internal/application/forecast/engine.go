package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/invorya/inventory-core/internal/domain/entity"
	"github.com/invorya/inventory-core/pkg/config"
)

// Pesos de la combinación de estimadores y suavizamiento exponencial.
const (
	weightMovingAverage = 0.3
	weightExponential   = 0.5
	weightSeasonal      = 0.2
	smoothingAlpha      = 0.3
	movingAverageWindow = 7
)

// Factores estacionales mensuales (enero..diciembre), pico en julio.
var monthlySeasonality = [12]float64{
	0.90, 0.92, 0.95, 1.00, 1.05, 1.15,
	1.30, 1.25, 1.10, 1.00, 0.95, 1.05,
}

// Parámetros EOQ, alineados con el motor de lotes.
const (
	eoqOrderingCost      = 50.0
	eoqHoldingCostFactor = 0.2
)

// Engine motor de pronóstico de demanda y sugerencias de reposición. Sin estado
// respecto al libro de lotes: recibe snapshots de ítems y movimientos y devuelve
// cómputos puros. El historial vacío nunca es error: produce valores neutros
// (demanda 0, confianza 0).
type Engine struct {
	cfg config.ForecastConfig
	now func() time.Time
}

// New construye el motor con la configuración de pronóstico.
func New(cfg config.ForecastConfig) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// WithClock fija el reloj del motor (para pruebas).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// GenerateForecast pronostica la demanda diaria de los próximos forecastDays días.
// Combina promedio móvil de 7 días, suavizamiento exponencial (α=0.3) y, si está
// habilitado, un estimador estacional semanal:
//
//	demanda = 0.3×MA + 0.5×ES + 0.2×estacional, con piso en 0 y redondeo.
func (e *Engine) GenerateForecast(item *entity.Item, movements []*entity.Movement, forecastDays int) []*entity.DemandForecast {
	series := e.dailySeries(movements)

	ma := movingAverage(series, movingAverageWindow)
	es := exponentialSmoothing(series, smoothingAlpha)
	weekday := weekdayFactors(series, e.now())
	trend := trendFactor(series)
	conf := confidence(series)

	now := e.now()
	forecasts := make([]*entity.DemandForecast, 0, forecastDays)
	for d := 1; d <= forecastDays; d++ {
		date := now.AddDate(0, 0, d)

		seasonal := ma
		if e.cfg.SeasonalityEnabled {
			seasonal = ma * weekday[int(date.Weekday())]
		}
		predicted := weightMovingAverage*ma + weightExponential*es + weightSeasonal*seasonal
		predicted = math.Round(math.Max(0, predicted))

		forecasts = append(forecasts, &entity.DemandForecast{
			ItemID:            item.ID,
			Date:              date,
			PredictedDemand:   predicted,
			Confidence:        conf,
			SeasonalityFactor: monthlySeasonality[int(date.Month())-1],
			TrendFactor:       trend,
		})
	}
	return forecasts
}

// GenerateReorderSuggestions evalúa cada ítem contra la demanda pronosticada del
// lead time y emite sugerencias ordenadas por urgencia (CRITICAL→HIGH→MEDIUM→LOW).
func (e *Engine) GenerateReorderSuggestions(items []*entity.Item, movementsByItem map[string][]*entity.Movement) []*entity.ReorderSuggestion {
	var suggestions []*entity.ReorderSuggestion
	for _, item := range items {
		if s := e.evaluateReorder(item, movementsByItem[item.ID]); s != nil {
			suggestions = append(suggestions, s)
		}
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Urgency.Rank() != suggestions[j].Urgency.Rank() {
			return suggestions[i].Urgency.Rank() < suggestions[j].Urgency.Rank()
		}
		return suggestions[i].DaysOfStock < suggestions[j].DaysOfStock
	})
	return suggestions
}

func (e *Engine) evaluateReorder(item *entity.Item, movements []*entity.Movement) *entity.ReorderSuggestion {
	leadTime := item.LeadTimeDays
	if leadTime <= 0 {
		leadTime = 1
	}
	forecasts := e.GenerateForecast(item, movements, leadTime+7)

	leadTimeDemand := 0.0
	for i := 0; i < leadTime && i < len(forecasts); i++ {
		leadTimeDemand += forecasts[i].PredictedDemand
	}

	current := item.TotalQuantity.InexactFloat64()
	safety := item.SafetyStock.InexactFloat64()
	required := leadTimeDemand + safety
	if current > required {
		return nil
	}

	eoq := e.economicOrderQuantity(item, movements)
	qty := math.Max(eoq, required-current+safety)
	qty = math.Round(qty)
	suggested := decimal.NewFromFloat(qty)

	daysOfStock := math.Inf(1)
	if leadTimeDemand > 0 {
		daysOfStock = current / (leadTimeDemand / float64(leadTime))
	}

	urgency := entity.UrgencyLow
	switch {
	case current <= safety:
		urgency = entity.UrgencyCritical
	case daysOfStock <= float64(leadTime):
		urgency = entity.UrgencyHigh
	case daysOfStock <= 1.5*float64(leadTime):
		urgency = entity.UrgencyMedium
	}

	return &entity.ReorderSuggestion{
		ItemID:            item.ID,
		ItemName:          item.Name,
		CurrentStock:      item.TotalQuantity,
		LeadTimeDemand:    leadTimeDemand,
		RequiredStock:     required,
		SuggestedQuantity: suggested,
		EstimatedCost:     suggested.Mul(item.WeightedAverageCost).Round(2),
		Urgency:           urgency,
		DaysOfStock:       daysOfStock,
	}
}

// economicOrderQuantity EOQ con demanda anual = rotación × stock actual,
// costo de pedido fijo y costo de almacenamiento = WAC × 0.2.
func (e *Engine) economicOrderQuantity(item *entity.Item, movements []*entity.Movement) float64 {
	total := item.TotalQuantity.InexactFloat64()
	avgStock := total / 2
	if avgStock == 0 {
		return 0
	}
	cutoff := e.now().AddDate(0, 0, -365)
	outQty := 0.0
	for _, m := range movements {
		if m.Type == entity.MovementTypeOUT && !m.PerformedAt.Before(cutoff) {
			outQty += m.Quantity.InexactFloat64()
		}
	}
	turnover := outQty / avgStock
	annualDemand := turnover * total
	holdingCost := item.WeightedAverageCost.InexactFloat64() * eoqHoldingCostFactor
	if annualDemand <= 0 || holdingCost <= 0 {
		return 0
	}
	return math.Sqrt(2 * annualDemand * eoqOrderingCost / holdingCost)
}

// SelectBestForecastMethod etiqueta heurística del método más apto según la
// variabilidad, tendencia y estacionalidad del historial. No cambia los
// estimadores que GenerateForecast ejecuta.
func (e *Engine) SelectBestForecastMethod(itemID string, history []float64) entity.ForecastMethod {
	if len(history) > 90 {
		history = history[len(history)-90:]
	}
	cv := coefficientOfVariation(history)
	trend := trendFactor(history)
	seasonality := autocorrelation(history, 7)

	switch {
	case cv < 0.2 && math.Abs(trend-1) < 0.1:
		return entity.MethodMovingAverage
	case seasonality > 0.3:
		return entity.MethodARIMA
	case math.Abs(trend-1) > 0.2:
		return entity.MethodExponentialSmoothing
	default:
		return entity.MethodML
	}
}

// AccuracyReport errores agregados de un pronóstico frente a la demanda real.
type AccuracyReport struct {
	MAPE float64 // porcentual medio, solo sobre puntos con demanda real > 0
	MAE  float64
	RMSE float64
}

// EvaluateForecastAccuracy compara demanda real contra pronóstico elemento a elemento.
func (e *Engine) EvaluateForecastAccuracy(actual, forecast []float64) AccuracyReport {
	n := len(actual)
	if len(forecast) < n {
		n = len(forecast)
	}
	if n == 0 {
		return AccuracyReport{}
	}

	var sumAbs, sumSq, sumPct float64
	pctCount := 0
	for i := 0; i < n; i++ {
		diff := actual[i] - forecast[i]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		if actual[i] > 0 {
			sumPct += math.Abs(diff) / actual[i]
			pctCount++
		}
	}

	report := AccuracyReport{
		MAE:  sumAbs / float64(n),
		RMSE: math.Sqrt(sumSq / float64(n)),
	}
	if pctCount > 0 {
		report.MAPE = sumPct / float64(pctCount) * 100
	}
	return report
}

// dailySeries construye la serie de demanda diaria (salidas OUT) de los últimos
// HistoricalPeriods días; índice 0 = día más antiguo.
func (e *Engine) dailySeries(movements []*entity.Movement) []float64 {
	periods := e.cfg.HistoricalPeriods
	if periods <= 0 {
		periods = 90
	}
	now := e.now()
	start := now.AddDate(0, 0, -(periods - 1)).Truncate(24 * time.Hour)

	series := make([]float64, periods)
	any := false
	for _, m := range movements {
		if m.Type != entity.MovementTypeOUT {
			continue
		}
		day := int(m.PerformedAt.Truncate(24 * time.Hour).Sub(start).Hours() / 24)
		if day < 0 || day >= periods {
			continue
		}
		series[day] += m.Quantity.InexactFloat64()
		any = true
	}
	if !any {
		return nil
	}
	return series
}

func movingAverage(series []float64, window int) float64 {
	if len(series) == 0 {
		return 0
	}
	if window > len(series) {
		window = len(series)
	}
	sum := 0.0
	for _, v := range series[len(series)-window:] {
		sum += v
	}
	return sum / float64(window)
}

// exponentialSmoothing aplica f_t = α·d_t + (1−α)·f_{t-1} de forma recursiva y
// devuelve el último valor suavizado.
func exponentialSmoothing(series []float64, alpha float64) float64 {
	if len(series) == 0 {
		return 0
	}
	f := series[0]
	for _, d := range series[1:] {
		f = alpha*d + (1-alpha)*f
	}
	return f
}

// weekdayFactors promedia la demanda histórica por día de semana y normaliza por
// la media global; 1.0 donde no hay datos.
func weekdayFactors(series []float64, now time.Time) [7]float64 {
	factors := [7]float64{1, 1, 1, 1, 1, 1, 1}
	if len(series) == 0 {
		return factors
	}
	var sums, counts [7]float64
	overall := 0.0
	start := now.AddDate(0, 0, -(len(series) - 1))
	for i, v := range series {
		wd := int(start.AddDate(0, 0, i).Weekday())
		sums[wd] += v
		counts[wd]++
		overall += v
	}
	mean := overall / float64(len(series))
	if mean == 0 {
		return factors
	}
	for wd := range factors {
		if counts[wd] > 0 {
			factors[wd] = (sums[wd] / counts[wd]) / mean
		}
	}
	return factors
}

// trendFactor = 1 + pendiente/mediaY de un ajuste por mínimos cuadrados de la
// serie contra el índice de día; 1.0 con menos de 2 puntos o media 0.
func trendFactor(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 1
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	meanY := sumY / n
	if meanY == 0 {
		return 1
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 1
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return 1 + slope/meanY
}

func coefficientOfVariation(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range series {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(series))
	return math.Sqrt(variance) / mean
}

// confidence = clamp(0,1, 1 − CV); 0 sin historial.
func confidence(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	c := 1 - coefficientOfVariation(series)
	return math.Max(0, math.Min(1, c))
}

// autocorrelation correlación con rezago lag, usada como puntaje de estacionalidad.
func autocorrelation(series []float64, lag int) float64 {
	if len(series) <= lag {
		return 0
	}
	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))

	var num, den float64
	for i := 0; i < len(series); i++ {
		den += (series[i] - mean) * (series[i] - mean)
	}
	if den == 0 {
		return 0
	}
	for i := lag; i < len(series); i++ {
		num += (series[i] - mean) * (series[i-lag] - mean)
	}
	return num / den
}
