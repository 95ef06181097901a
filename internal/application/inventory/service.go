package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/invorya/inventory-core/internal/application/alerts"
	"github.com/invorya/inventory-core/internal/application/forecast"
	"github.com/invorya/inventory-core/internal/application/ports"
	"github.com/invorya/inventory-core/internal/domain"
	"github.com/invorya/inventory-core/internal/domain/entity"
	"github.com/invorya/inventory-core/internal/domain/ledger"
	"github.com/invorya/inventory-core/internal/domain/repository"
	"github.com/invorya/inventory-core/pkg/config"
	"github.com/invorya/inventory-core/pkg/logger"
)

const (
	cacheTTL              = 5 * time.Minute
	historyWindowDays     = 365
	highTurnoverThreshold = 12.0
)

// Service orquesta los tres motores detrás del contrato externo. Es el único
// componente que toca persistencia, cache y canal realtime: hidrata el estado
// del ítem desde el repositorio, delega en el motor de lotes, persiste los
// deltas, invalida el cache del ítem y difunde el evento. Las escrituras de un
// mismo ítem se serializan con un mutex por ítem; ítems distintos operan en
// paralelo.
type Service struct {
	cfg        config.InventoryConfig
	repo       repository.InventoryRepository
	ledger     *ledger.Engine
	monitor    *alerts.Monitor
	forecaster *forecast.Engine
	cache      ports.Cache
	channel    ports.Channel
	log        *logger.Logger
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService construye el servicio. cache y channel pueden ser nil (sin cache
// de lectura ni notificaciones realtime).
func NewService(
	cfg config.InventoryConfig,
	repo repository.InventoryRepository,
	lg *ledger.Engine,
	monitor *alerts.Monitor,
	forecaster *forecast.Engine,
	cache ports.Cache,
	channel ports.Channel,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		repo:       repo,
		ledger:     lg,
		monitor:    monitor,
		forecaster: forecaster,
		cache:      cache,
		channel:    channel,
		log:        log,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// WithClock fija el reloj del servicio (para pruebas).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// itemLock devuelve el mutex del ítem, creándolo la primera vez.
func (s *Service) itemLock(itemID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[itemID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[itemID] = l
	}
	return l
}

// ensureLoaded hidrata lotes y movimientos del ítem desde el repositorio la
// primera vez que se lo toca. Debe llamarse con el lock del ítem tomado.
func (s *Service) ensureLoaded(ctx context.Context, itemID string) error {
	if s.ledger.Store().Loaded(itemID) {
		return nil
	}
	lots, err := s.repo.GetActiveLots(ctx, itemID)
	if err != nil {
		return fmt.Errorf("repositorio: cargar lotes de %s: %w", itemID, err)
	}
	since := s.now().AddDate(0, 0, -historyWindowDays)
	movements, err := s.repo.ListMovementsSince(ctx, itemID, since)
	if err != nil {
		return fmt.Errorf("repositorio: cargar movimientos de %s: %w", itemID, err)
	}
	s.ledger.Store().Load(itemID, lots, movements)
	return nil
}

// ── Mutaciones ───────────────────────────────────────────────────────────────

// AddStockRequest entrada de un alta de lote.
type AddStockRequest struct {
	ItemID       string
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	PurchaseDate time.Time
	ExpiryDate   *time.Time
	BatchNumber  string
	SupplierID   string
	WarehouseID  string
	PerformedBy  string
}

// AddStockResult resultado de un alta de lote: el estado del ítem tras la
// mutación y las alertas computadas en el mismo llamado.
type AddStockResult struct {
	Item     *entity.Item     `json:"item"`
	Lot      *entity.Lot      `json:"lot"`
	Movement *entity.Movement `json:"movement"`
	Alerts   []*entity.Alert  `json:"alerts"`
}

// AddStock registra un lote de compra: hidrata el ítem, delega en el motor de
// lotes, persiste el lote y el movimiento, invalida el cache y difunde el
// evento. Las alertas generadas se devuelven al caller; su persistencia y
// despacho corren aparte y no bloquean el retorno.
func (s *Service) AddStock(ctx context.Context, req AddStockRequest) (*AddStockResult, error) {
	defer s.trackLatency("add_stock", time.Now())
	if req.ItemID == "" {
		return nil, fmt.Errorf("%w: itemId vacío", domain.ErrInvalidInput)
	}

	lock := s.itemLock(req.ItemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.repo.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLoaded(ctx, req.ItemID); err != nil {
		return nil, err
	}

	lot, mov, err := s.ledger.AddStock(item, ledger.AddStockInput{
		Quantity:     req.Quantity,
		UnitCost:     req.UnitCost,
		PurchaseDate: req.PurchaseDate,
		ExpiryDate:   req.ExpiryDate,
		BatchNumber:  req.BatchNumber,
		SupplierID:   req.SupplierID,
		WarehouseID:  req.WarehouseID,
		PerformedBy:  req.PerformedBy,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("repositorio: insertar lote: %w", err)
	}
	if err := s.repo.InsertMovements(ctx, []*entity.Movement{mov}); err != nil {
		return nil, fmt.Errorf("repositorio: insertar movimientos: %w", err)
	}
	if err := s.repo.UpdateItemTotals(ctx, item); err != nil {
		return nil, fmt.Errorf("repositorio: actualizar totales: %w", err)
	}

	s.afterMutation(ctx, item, "ADD_STOCK", []*entity.Movement{mov})
	generated := s.sweepAlerts(ctx, item)

	return &AddStockResult{Item: item, Lot: lot, Movement: mov, Alerts: generated}, nil
}

// RemoveStockRequest entrada de una salida de existencia.
type RemoveStockRequest struct {
	ItemID      string
	Quantity    decimal.Decimal
	Reason      string
	ReferenceID string
	PerformedBy string
}

// RemoveStockResult resultado de una salida FIFO.
type RemoveStockResult struct {
	Item                *entity.Item       `json:"item"`
	Movements           []*entity.Movement `json:"movements"`
	RemainingLots       []*entity.Lot      `json:"remainingLots"`
	TotalCost           decimal.Decimal    `json:"totalCost"`
	WeightedAverageCost decimal.Decimal    `json:"weightedAverageCost"`
	Alerts              []*entity.Alert    `json:"alerts"`
}

// RemoveStock consume existencia en orden FIFO y persiste los movimientos
// emitidos junto con los lotes afectados.
func (s *Service) RemoveStock(ctx context.Context, req RemoveStockRequest) (*RemoveStockResult, error) {
	defer s.trackLatency("remove_stock", time.Now())
	if req.ItemID == "" {
		return nil, fmt.Errorf("%w: itemId vacío", domain.ErrInvalidInput)
	}

	lock := s.itemLock(req.ItemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.repo.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLoaded(ctx, req.ItemID); err != nil {
		return nil, err
	}

	res, err := s.ledger.RemoveStock(item, req.Quantity, req.Reason, req.ReferenceID, req.PerformedBy)
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertMovements(ctx, res.Movements); err != nil {
		return nil, fmt.Errorf("repositorio: insertar movimientos: %w", err)
	}
	if err := s.repo.UpsertLots(ctx, res.AffectedLots); err != nil {
		return nil, fmt.Errorf("repositorio: actualizar lotes: %w", err)
	}
	if err := s.repo.UpdateItemTotals(ctx, item); err != nil {
		return nil, fmt.Errorf("repositorio: actualizar totales: %w", err)
	}

	s.afterMutation(ctx, item, "REMOVE_STOCK", res.Movements)
	generated := s.sweepAlerts(ctx, item)

	return &RemoveStockResult{
		Item:                item,
		Movements:           res.Movements,
		RemainingLots:       res.RemainingLots,
		TotalCost:           res.TotalCost,
		WeightedAverageCost: res.WeightedAverageCost,
		Alerts:              generated,
	}, nil
}

// AdjustStockRequest entrada de un ajuste absoluto de lote.
type AdjustStockRequest struct {
	ItemID      string
	LotID       string
	NewQuantity decimal.Decimal
	Reason      string
	PerformedBy string
}

// AdjustStockResult resultado de un ajuste de lote.
type AdjustStockResult struct {
	Item     *entity.Item     `json:"item"`
	Movement *entity.Movement `json:"movement"`
	Alerts   []*entity.Alert  `json:"alerts"`
}

// AdjustStock fija la cantidad restante de un lote en un valor absoluto y
// persiste el movimiento ADJUSTMENT junto con el lote corregido.
func (s *Service) AdjustStock(ctx context.Context, req AdjustStockRequest) (*AdjustStockResult, error) {
	defer s.trackLatency("adjust_stock", time.Now())
	if req.ItemID == "" || req.LotID == "" {
		return nil, fmt.Errorf("%w: itemId o lotId vacío", domain.ErrInvalidInput)
	}

	lock := s.itemLock(req.ItemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.repo.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLoaded(ctx, req.ItemID); err != nil {
		return nil, err
	}

	mov, err := s.ledger.AdjustStock(item, req.LotID, req.NewQuantity, req.Reason, req.PerformedBy)
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertMovements(ctx, []*entity.Movement{mov}); err != nil {
		return nil, fmt.Errorf("repositorio: insertar movimientos: %w", err)
	}
	var adjusted []*entity.Lot
	for _, l := range s.ledger.Store().Lots(req.ItemID) {
		if l.ID == req.LotID {
			adjusted = append(adjusted, l)
			break
		}
	}
	if err := s.repo.UpsertLots(ctx, adjusted); err != nil {
		return nil, fmt.Errorf("repositorio: actualizar lotes: %w", err)
	}
	if err := s.repo.UpdateItemTotals(ctx, item); err != nil {
		return nil, fmt.Errorf("repositorio: actualizar totales: %w", err)
	}

	s.afterMutation(ctx, item, "ADJUST_STOCK", []*entity.Movement{mov})
	generated := s.sweepAlerts(ctx, item)

	return &AdjustStockResult{Item: item, Movement: mov, Alerts: generated}, nil
}

// MovementEvent payload difundido en el tópico de movimientos tras cada mutación.
type MovementEvent struct {
	ItemID    string             `json:"itemId"`
	Operation string             `json:"operation"`
	Movements []*entity.Movement `json:"movements"`
	At        time.Time          `json:"at"`
}

// afterMutation invalida el cache del ítem y difunde el evento de movimiento.
// Los fallos de difusión se registran y no se propagan.
func (s *Service) afterMutation(ctx context.Context, item *entity.Item, operation string, movs []*entity.Movement) {
	if s.cache != nil {
		s.cache.InvalidateItem(ctx, item.ID)
	}
	if s.channel != nil {
		event := MovementEvent{ItemID: item.ID, Operation: operation, Movements: movs, At: s.now()}
		if err := s.channel.Broadcast(ctx, ports.TopicMovements, event); err != nil {
			s.log.Error().Err(err).Str("item_id", item.ID).Str("operation", operation).Msg("difundir movimiento")
		}
	}
}

// sweepAlerts evalúa las alertas del ítem de forma síncrona (el caller recibe
// lo computado) y las publica en segundo plano: la mutación no espera a la
// persistencia ni al despacho.
func (s *Service) sweepAlerts(ctx context.Context, item *entity.Item) []*entity.Alert {
	if s.monitor == nil {
		return nil
	}
	generated := s.monitor.Evaluate(item)
	if len(generated) > 0 {
		go s.monitor.Publish(context.WithoutCancel(ctx), generated)
	}
	return generated
}

// AcknowledgeAlert estampa el acuse de recibo de una alerta e invalida el cache
// del ítem afectado: la próxima lectura del estado consolidado ya no la lista.
func (s *Service) AcknowledgeAlert(ctx context.Context, id, userID string) error {
	if s.monitor == nil {
		return domain.ErrAlertNotFound
	}
	acked, err := s.monitor.AcknowledgeAlert(ctx, id, userID)
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateItem(ctx, acked.ItemID)
	}
	return nil
}

// ── Lecturas ─────────────────────────────────────────────────────────────────

// ItemStatus estado consolidado de un ítem: catálogo, métricas derivadas,
// alertas activas y lotes por vencer.
type ItemStatus struct {
	Item         *entity.Item    `json:"item"`
	Metrics      *entity.Metrics `json:"metrics"`
	ActiveAlerts []*entity.Alert `json:"activeAlerts"`
	ExpiringLots []*entity.Lot   `json:"expiringLots"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

// GetInventoryStatus devuelve el estado consolidado del ítem. El resultado se
// cachea cinco minutos bajo la clave (status, itemId); cualquier mutación del
// ítem lo invalida.
func (s *Service) GetInventoryStatus(ctx context.Context, itemID string) (*ItemStatus, error) {
	defer s.trackLatency("get_inventory_status", time.Now())
	key := ports.CacheKey{Operation: "status", ItemID: itemID}
	var cached ItemStatus
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	lock := s.itemLock(itemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLoaded(ctx, itemID); err != nil {
		return nil, err
	}

	status := &ItemStatus{
		Item:         item,
		Metrics:      s.ledger.CalculateMetrics(item),
		ExpiringLots: s.ledger.ExpiringLots(itemID, s.cfg.Alerts.ExpiryDays),
		GeneratedAt:  s.now(),
	}
	if s.monitor != nil {
		status.ActiveAlerts = s.monitor.GetActiveAlerts(itemID)
	}
	s.writeCache(ctx, key, status)
	return status, nil
}

// SnapshotRequest filtros y paginación del snapshot de inventario.
type SnapshotRequest struct {
	Category string
	Search   string
	Offset   int
	Limit    int
}

// InventorySnapshot página del catálogo con los totales derivados corrientes.
type InventorySnapshot struct {
	Items       []*entity.Item `json:"items"`
	Total       int64          `json:"total"`
	Offset      int            `json:"offset"`
	Limit       int            `json:"limit"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// GetInventorySnapshot devuelve una página del catálogo. Se cachea cinco
// minutos; al no pertenecer a un ítem puntual, la entrada expira solo por TTL.
func (s *Service) GetInventorySnapshot(ctx context.Context, req SnapshotRequest) (*InventorySnapshot, error) {
	defer s.trackLatency("get_inventory_snapshot", time.Now())
	if req.Limit <= 0 {
		req.Limit = 20 // mismo valor por defecto que dto.PageRequest
	}
	key := ports.CacheKey{
		Operation: "snapshot",
		ItemID:    fmt.Sprintf("%s:%s:%d:%d", req.Category, req.Search, req.Offset, req.Limit),
	}
	var cached InventorySnapshot
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	items, total, err := s.repo.GetItemsPage(ctx, repository.ItemFilter{
		Category: req.Category,
		Search:   req.Search,
	}, req.Offset, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("repositorio: página de ítems: %w", err)
	}

	snap := &InventorySnapshot{
		Items:       items,
		Total:       total,
		Offset:      req.Offset,
		Limit:       req.Limit,
		GeneratedAt: s.now(),
	}
	s.writeCache(ctx, key, snap)
	return snap, nil
}

// GetDemandForecast pronostica la demanda del ítem para los próximos days días.
// Cacheado cinco minutos bajo (forecast, itemId).
func (s *Service) GetDemandForecast(ctx context.Context, itemID string, days int) ([]*entity.DemandForecast, error) {
	defer s.trackLatency("get_demand_forecast", time.Now())
	key := ports.CacheKey{Operation: fmt.Sprintf("forecast:%d", days), ItemID: itemID}
	var cached []*entity.DemandForecast
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	movements, err := s.movementHistory(ctx, itemID)
	if err != nil {
		return nil, err
	}

	forecasts := s.forecaster.GenerateForecast(item, movements, days)
	s.writeCache(ctx, key, forecasts)
	return forecasts, nil
}

// GetReorderSuggestions genera sugerencias de reposición para todo el catálogo,
// ordenadas por urgencia. Cacheado cinco minutos.
func (s *Service) GetReorderSuggestions(ctx context.Context) ([]*entity.ReorderSuggestion, error) {
	defer s.trackLatency("get_reorder_suggestions", time.Now())
	key := ports.CacheKey{Operation: "reorder", ItemID: "all"}
	var cached []*entity.ReorderSuggestion
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	items, err := s.repo.ListItems(ctx, repository.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("repositorio: listar ítems: %w", err)
	}
	movements := make(map[string][]*entity.Movement, len(items))
	for _, item := range items {
		movs, err := s.movementHistory(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		movements[item.ID] = movs
	}

	suggestions := s.forecaster.GenerateReorderSuggestions(items, movements)
	s.writeCache(ctx, key, suggestions)
	return suggestions, nil
}

// TurnoverEntry rotación anualizada de un ítem.
type TurnoverEntry struct {
	ItemID       string  `json:"itemId"`
	Name         string  `json:"name"`
	TurnoverRate float64 `json:"turnoverRate"`
}

// TurnoverAnalysis rotación por ítem más recomendaciones legibles.
type TurnoverAnalysis struct {
	Entries         []TurnoverEntry `json:"entries"`
	Recommendations []string        `json:"recommendations"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

// AnalyzeInventoryTurnover calcula la rotación anualizada de cada ítem y
// recomienda acción sobre los que quedan bajo la rotación mínima configurada o
// sobre el umbral alto (candidatos a quiebre de stock).
func (s *Service) AnalyzeInventoryTurnover(ctx context.Context) (*TurnoverAnalysis, error) {
	defer s.trackLatency("analyze_inventory_turnover", time.Now())
	items, err := s.repo.ListItems(ctx, repository.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("repositorio: listar ítems: %w", err)
	}

	analysis := &TurnoverAnalysis{GeneratedAt: s.now()}
	for _, item := range items {
		lock := s.itemLock(item.ID)
		lock.Lock()
		if err := s.ensureLoaded(ctx, item.ID); err != nil {
			lock.Unlock()
			return nil, err
		}
		rate := s.ledger.TurnoverRate(item.ID, 365)
		lock.Unlock()

		analysis.Entries = append(analysis.Entries, TurnoverEntry{
			ItemID:       item.ID,
			Name:         item.Name,
			TurnoverRate: rate,
		})
		switch {
		case rate < s.cfg.Performance.MinTurnoverRate:
			analysis.Recommendations = append(analysis.Recommendations,
				fmt.Sprintf("%s rota %.2f veces al año (mínimo %.2f): revisar nivel de compra o liquidar excedente", item.Name, rate, s.cfg.Performance.MinTurnoverRate))
		case rate > highTurnoverThreshold:
			analysis.Recommendations = append(analysis.Recommendations,
				fmt.Sprintf("%s rota %.2f veces al año: candidato a quiebre de stock, evaluar subir el stock de seguridad", item.Name, rate))
		}
	}
	return analysis, nil
}

// ── Realtime ─────────────────────────────────────────────────────────────────

// StartRealtimeMonitoring suscribe onMovement al tópico de movimientos y
// onAlert al de alertas. Devuelve una única función de cancelación que libera
// ambas suscripciones; no llamarla las filtra.
func (s *Service) StartRealtimeMonitoring(onMovement, onAlert func(payload []byte)) (func(), error) {
	if s.channel == nil {
		return nil, fmt.Errorf("%w: canal realtime no configurado", domain.ErrInvalidInput)
	}
	unsubMovements, err := s.channel.Subscribe(ports.TopicMovements, onMovement)
	if err != nil {
		return nil, fmt.Errorf("suscribir movimientos: %w", err)
	}
	unsubAlerts, err := s.channel.Subscribe(ports.TopicAlerts, onAlert)
	if err != nil {
		unsubMovements()
		return nil, fmt.Errorf("suscribir alertas: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			unsubMovements()
			unsubAlerts()
		})
	}
	return cancel, nil
}

// ── Soporte ──────────────────────────────────────────────────────────────────

func (s *Service) movementHistory(ctx context.Context, itemID string) ([]*entity.Movement, error) {
	since := s.now().AddDate(0, 0, -s.cfg.Forecast.HistoricalPeriods)
	movs, err := s.repo.ListMovementsSince(ctx, itemID, since)
	if err != nil {
		return nil, fmt.Errorf("repositorio: cargar movimientos de %s: %w", itemID, err)
	}
	return movs, nil
}

func (s *Service) readCache(ctx context.Context, key ports.CacheKey, v any) bool {
	if s.cache == nil {
		return false
	}
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.log.Debug().Err(err).Str("key", key.String()).Msg("entrada de cache ilegible, se descarta")
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key ports.CacheKey, v any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Debug().Err(err).Str("key", key.String()).Msg("serializar entrada de cache")
		return
	}
	s.cache.Set(ctx, key, raw, cacheTTL)
}

// trackLatency registra en el log las operaciones que superan el tiempo máximo
// configurado. Nunca falla la operación.
func (s *Service) trackLatency(operation string, start time.Time) {
	elapsed := time.Since(start)
	if max := s.cfg.Performance.MaxResponseTime; max > 0 && elapsed > max {
		s.log.Warn().
			Str("operation", operation).
			Dur("elapsed", elapsed).
			Dur("max", max).
			Msg("operación sobre el tiempo máximo")
	}
}
