package ledger

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/invorya/inventory-core/internal/domain"
	"github.com/invorya/inventory-core/internal/domain/entity"
)

// Parámetros fijos de la fórmula EOQ.
const (
	eoqOrderingCost      = 50.0
	eoqHoldingCostFactor = 0.2
)

// Engine motor de lotes FIFO. Es el único escritor del estado cantidad/costo:
// posee los lotes y movimientos por ítem y recalcula los campos derivados del
// ítem tras cada mutación. Cómputo puro, sin I/O; la serialización por ítem la
// garantiza el servicio de orquestación.
type Engine struct {
	store *Store
	now   func() time.Time
}

// New construye el motor sobre un store inyectado.
func New(store *Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithClock fija el reloj del motor (para pruebas de ventanas temporales).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Store devuelve el store del motor.
func (e *Engine) Store() *Store {
	return e.store
}

// AddStockInput datos para registrar un lote de compra.
type AddStockInput struct {
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	PurchaseDate time.Time
	ExpiryDate   *time.Time
	BatchNumber  string
	SupplierID   string
	WarehouseID  string
	PerformedBy  string
}

// AddStock inserta un lote nuevo, reordena los lotes del ítem por fecha de compra,
// registra el movimiento IN y recalcula los campos derivados. Cantidad cero es
// válida (produce un lote agotado desde el inicio); negativa no.
func (e *Engine) AddStock(item *entity.Item, in AddStockInput) (*entity.Lot, *entity.Movement, error) {
	if in.Quantity.IsNegative() || in.UnitCost.IsNegative() {
		return nil, nil, domain.ErrInvalidInput
	}
	now := e.now()
	batch := in.BatchNumber
	if batch == "" {
		batch = NewBatchNumber(in.PurchaseDate)
	}
	lot := &entity.Lot{
		ID:                uuid.New().String(),
		ItemID:            item.ID,
		Quantity:          in.Quantity,
		RemainingQuantity: in.Quantity,
		UnitCost:          in.UnitCost,
		PurchaseDate:      in.PurchaseDate,
		ExpiryDate:        in.ExpiryDate,
		SupplierID:        in.SupplierID,
		WarehouseID:       in.WarehouseID,
		BatchNumber:       batch,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	e.store.insertLot(lot)

	mov := &entity.Movement{
		ID:          uuid.New().String(),
		ItemID:      item.ID,
		LotID:       lot.ID,
		Type:        entity.MovementTypeIN,
		Quantity:    in.Quantity,
		UnitCost:    in.UnitCost,
		TotalCost:   in.Quantity.Mul(in.UnitCost),
		PerformedBy: in.PerformedBy,
		PerformedAt: now,
	}
	e.store.appendMovement(mov)
	e.recomputeTotals(item)
	return lot, mov, nil
}

// RemovalResult resultado de una salida FIFO.
type RemovalResult struct {
	Movements     []*entity.Movement
	RemainingLots []*entity.Lot // lotes con existencia tras la salida, en orden FIFO
	AffectedLots  []*entity.Lot // lotes consumidos total o parcialmente
	TotalCost     decimal.Decimal
	// WeightedAverageCost costo promedio de esta salida (TotalCost/cantidad),
	// no el WAC corriente del ítem.
	WeightedAverageCost decimal.Decimal
}

// RemoveStock consume existencia en orden FIFO (lote más antiguo primero),
// emitiendo un movimiento OUT por cada lote tocado. Falla con ErrNoStockAvailable
// si el ítem no tiene lotes con existencia, y con ErrInsufficientStock si el total
// disponible es menor al solicitado.
func (e *Engine) RemoveStock(item *entity.Item, quantity decimal.Decimal, reason, referenceID, performedBy string) (*RemovalResult, error) {
	if !quantity.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	lots := e.store.Lots(item.ID)
	available := decimal.Zero
	hasActive := false
	for _, l := range lots {
		if l.Active() {
			hasActive = true
			available = available.Add(l.RemainingQuantity)
		}
	}
	if !hasActive {
		return nil, domain.ErrNoStockAvailable
	}
	if available.LessThan(quantity) {
		return nil, domain.ErrInsufficientStock
	}

	now := e.now()
	result := &RemovalResult{TotalCost: decimal.Zero}
	outstanding := quantity
	for _, lot := range lots {
		if outstanding.IsZero() {
			break
		}
		if !lot.Active() {
			continue
		}
		take := decimal.Min(lot.RemainingQuantity, outstanding)
		lot.RemainingQuantity = lot.RemainingQuantity.Sub(take)
		lot.UpdatedAt = now

		mov := &entity.Movement{
			ID:          uuid.New().String(),
			ItemID:      item.ID,
			LotID:       lot.ID,
			Type:        entity.MovementTypeOUT,
			Quantity:    take,
			UnitCost:    lot.UnitCost,
			TotalCost:   take.Mul(lot.UnitCost),
			Reason:      reason,
			ReferenceID: referenceID,
			PerformedBy: performedBy,
			PerformedAt: now,
		}
		e.store.appendMovement(mov)
		result.Movements = append(result.Movements, mov)
		result.AffectedLots = append(result.AffectedLots, lot)
		result.TotalCost = result.TotalCost.Add(mov.TotalCost)
		outstanding = outstanding.Sub(take)
	}

	result.WeightedAverageCost = result.TotalCost.Div(quantity).Round(2)
	for _, l := range e.store.Lots(item.ID) {
		if l.Active() {
			result.RemainingLots = append(result.RemainingLots, l)
		}
	}
	e.recomputeTotals(item)
	return result, nil
}

// AdjustStock fija la cantidad restante de un lote en un valor absoluto (no relativo)
// y registra un movimiento ADJUSTMENT cuya cantidad es |anterior − nuevo| con la
// dirección en las notas. Falla con ErrLotNotFound si el lote no pertenece al ítem,
// y con ErrInvalidInput si el nuevo valor rompe 0 <= restante <= cantidad original.
func (e *Engine) AdjustStock(item *entity.Item, lotID string, newQuantity decimal.Decimal, reason, performedBy string) (*entity.Movement, error) {
	if newQuantity.IsNegative() {
		return nil, domain.ErrInvalidInput
	}
	var lot *entity.Lot
	for _, l := range e.store.Lots(item.ID) {
		if l.ID == lotID {
			lot = l
			break
		}
	}
	if lot == nil {
		return nil, domain.ErrLotNotFound
	}
	if newQuantity.GreaterThan(lot.Quantity) {
		return nil, domain.ErrInvalidInput
	}

	now := e.now()
	old := lot.RemainingQuantity
	diff := old.Sub(newQuantity).Abs()
	direction := "sin cambio"
	switch {
	case newQuantity.GreaterThan(old):
		direction = "incremento"
	case newQuantity.LessThan(old):
		direction = "disminución"
	}
	lot.RemainingQuantity = newQuantity
	lot.UpdatedAt = now

	mov := &entity.Movement{
		ID:          uuid.New().String(),
		ItemID:      item.ID,
		LotID:       lot.ID,
		Type:        entity.MovementTypeADJUSTMENT,
		Quantity:    diff,
		UnitCost:    lot.UnitCost,
		TotalCost:   diff.Mul(lot.UnitCost),
		Reason:      reason,
		Notes:       fmt.Sprintf("ajuste %s: %s -> %s", direction, old.String(), newQuantity.String()),
		PerformedBy: performedBy,
		PerformedAt: now,
	}
	e.store.appendMovement(mov)
	e.recomputeTotals(item)
	return mov, nil
}

// WeightedAverageCost calcula Σ(restante_i × costo_i) / Σ(restante_i) sobre los
// lotes con existencia; 0 si no hay ninguno. Redondeado a 2 decimales.
func (e *Engine) WeightedAverageCost(itemID string) decimal.Decimal {
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for _, l := range e.store.Lots(itemID) {
		if !l.Active() {
			continue
		}
		totalQty = totalQty.Add(l.RemainingQuantity)
		totalValue = totalValue.Add(l.RemainingQuantity.Mul(l.UnitCost))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalValue.Div(totalQty).Round(2)
}

// TurnoverRate rotación anualizada: salidas de la ventana periodDays divididas por
// el proxy de stock promedio (cantidad actual / 2), escalado ×365/periodDays.
// Devuelve 0 cuando el stock promedio es 0. Redondeado a 2 decimales.
func (e *Engine) TurnoverRate(itemID string, periodDays int) float64 {
	if periodDays <= 0 {
		periodDays = 365
	}
	total := e.totalQuantity(itemID)
	avgStock := total.InexactFloat64() / 2
	if avgStock == 0 {
		return 0
	}
	cutoff := e.now().AddDate(0, 0, -periodDays)
	outQty := decimal.Zero
	for _, m := range e.store.Movements(itemID) {
		if m.Type == entity.MovementTypeOUT && !m.PerformedAt.Before(cutoff) {
			outQty = outQty.Add(m.Quantity)
		}
	}
	rate := outQty.InexactFloat64() / avgStock * (365.0 / float64(periodDays))
	return math.Round(rate*100) / 100
}

// CalculateMetrics recalcula los indicadores derivados del ítem desde lotes y
// movimientos actuales.
func (e *Engine) CalculateMetrics(item *entity.Item) *entity.Metrics {
	now := e.now()
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	weightedAgeSum := 0.0
	for _, l := range e.store.Lots(item.ID) {
		if !l.Active() {
			continue
		}
		totalQty = totalQty.Add(l.RemainingQuantity)
		totalValue = totalValue.Add(l.RemainingQuantity.Mul(l.UnitCost))
		ageDays := now.Sub(l.PurchaseDate).Hours() / 24
		weightedAgeSum += l.RemainingQuantity.InexactFloat64() * ageDays
	}

	m := &entity.Metrics{
		ItemID:              item.ID,
		TotalQuantity:       totalQty,
		TotalValue:          totalValue,
		WeightedAverageCost: e.WeightedAverageCost(item.ID),
		TurnoverRate:        e.TurnoverRate(item.ID, 365),
	}

	totalF := totalQty.InexactFloat64()
	if totalF > 0 {
		m.AverageAge = weightedAgeSum / totalF
	}

	// stockoutRisk = max(0, 1 − total/safetyStock); sin stock de seguridad no hay riesgo medible
	if item.SafetyStock.GreaterThan(decimal.Zero) {
		risk := 1 - totalF/item.SafetyStock.InexactFloat64()
		m.StockoutRisk = math.Max(0, risk)
	}

	if excess := totalQty.Sub(item.MaxStock); excess.GreaterThan(decimal.Zero) {
		m.ExcessStock = excess
	} else {
		m.ExcessStock = decimal.Zero
	}

	// EOQ = sqrt(2 × demandaAnual × costoPedido / costoAlmacenamiento)
	annualDemand := m.TurnoverRate * totalF
	holdingCost := m.WeightedAverageCost.InexactFloat64() * eoqHoldingCostFactor
	if annualDemand > 0 && holdingCost > 0 {
		m.OptimalOrderQuantity = math.Sqrt(2 * annualDemand * eoqOrderingCost / holdingCost)
	}

	cutoff := now.AddDate(0, 0, -30)
	cogs := decimal.Zero
	for _, mov := range e.store.Movements(item.ID) {
		if mov.Type == entity.MovementTypeOUT && !mov.PerformedAt.Before(cutoff) {
			cogs = cogs.Add(mov.TotalCost)
		}
	}
	m.CostOfGoodsSold = cogs
	// Mismo proxy de stock promedio que la rotación: valor actual / 2
	m.AverageInventoryValue = totalValue.Div(decimal.NewFromInt(2))

	return m
}

// ExpiringLots devuelve los lotes activos cuyo vencimiento cae dentro de days días
// desde ahora (incluye los ya vencidos), ordenados por fecha de vencimiento
// ascendente. Lotes sin fecha de vencimiento se excluyen.
func (e *Engine) ExpiringLots(itemID string, days int) []*entity.Lot {
	limit := e.now().AddDate(0, 0, days)
	var expiring []*entity.Lot
	for _, l := range e.store.Lots(itemID) {
		if !l.Active() || l.ExpiryDate == nil {
			continue
		}
		if !l.ExpiryDate.After(limit) {
			expiring = append(expiring, l)
		}
	}
	// Los lotes ya están en orden FIFO por compra; reordenar por vencimiento
	for i := 1; i < len(expiring); i++ {
		for j := i; j > 0 && expiring[j].ExpiryDate.Before(*expiring[j-1].ExpiryDate); j-- {
			expiring[j], expiring[j-1] = expiring[j-1], expiring[j]
		}
	}
	return expiring
}

func (e *Engine) totalQuantity(itemID string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.store.Lots(itemID) {
		if l.Active() {
			total = total.Add(l.RemainingQuantity)
		}
	}
	return total
}

// recomputeTotals actualiza los campos derivados del ítem tras cada mutación.
// AverageDailyCost es el consumo diario promedio de los últimos 30 días.
func (e *Engine) recomputeTotals(item *entity.Item) {
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for _, l := range e.store.Lots(item.ID) {
		if !l.Active() {
			continue
		}
		totalQty = totalQty.Add(l.RemainingQuantity)
		totalValue = totalValue.Add(l.RemainingQuantity.Mul(l.UnitCost))
	}
	item.TotalQuantity = totalQty
	item.TotalValue = totalValue
	item.WeightedAverageCost = e.WeightedAverageCost(item.ID)

	cutoff := e.now().AddDate(0, 0, -30)
	outQty := decimal.Zero
	for _, m := range e.store.Movements(item.ID) {
		if m.Type == entity.MovementTypeOUT && !m.PerformedAt.Before(cutoff) {
			outQty = outQty.Add(m.Quantity)
		}
	}
	item.AverageDailyCost = outQty.Div(decimal.NewFromInt(30)).Round(4)
	item.UpdatedAt = e.now()
}

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewBatchNumber genera un número de lote YYMMDD-XXXX (sufijo base36 aleatorio).
func NewBatchNumber(purchaseDate time.Time) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return purchaseDate.Format("060102") + "-" + string(suffix)
}
