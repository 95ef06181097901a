package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// ── Stubs en memoria ─────────────────────────────────────────────────────────

type stubRepo struct {
	mu        sync.Mutex
	items     map[string]*entity.Item
	lots      map[string][]*entity.Lot
	movements map[string][]*entity.Movement
	alerts    []*entity.Alert

	getItemCalls       int
	insertMovementsErr error
	getItemsPageCalls  int
}

func newStubRepo(items ...*entity.Item) *stubRepo {
	r := &stubRepo{
		items:     make(map[string]*entity.Item),
		lots:      make(map[string][]*entity.Lot),
		movements: make(map[string][]*entity.Movement),
	}
	for _, it := range items {
		r.items[it.ID] = it
	}
	return r
}

func (r *stubRepo) GetItem(_ context.Context, id string) (*entity.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getItemCalls++
	it, ok := r.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return it, nil
}

func (r *stubRepo) ListItems(_ context.Context, _ repository.ItemFilter) ([]*entity.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Item
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, nil
}

func (r *stubRepo) GetItemsPage(_ context.Context, _ repository.ItemFilter, offset, limit int) ([]*entity.Item, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getItemsPageCalls++
	var out []*entity.Item
	for _, it := range r.items {
		out = append(out, it)
	}
	if offset > len(out) {
		offset = len(out)
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], int64(len(r.items)), nil
}

func (r *stubRepo) UpdateItemTotals(_ context.Context, item *entity.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return nil
}

func (r *stubRepo) GetActiveLots(_ context.Context, itemID string) ([]*entity.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lots[itemID], nil
}

func (r *stubRepo) InsertLot(_ context.Context, lot *entity.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[lot.ItemID] = append(r.lots[lot.ItemID], lot)
	return nil
}

func (r *stubRepo) UpsertLots(_ context.Context, lots []*entity.Lot) error {
	return nil
}

func (r *stubRepo) InsertMovements(_ context.Context, movs []*entity.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertMovementsErr != nil {
		return r.insertMovementsErr
	}
	for _, m := range movs {
		r.movements[m.ItemID] = append(r.movements[m.ItemID], m)
	}
	return nil
}

func (r *stubRepo) ListMovementsSince(_ context.Context, itemID string, since time.Time) ([]*entity.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Movement
	for _, m := range r.movements[itemID] {
		if !m.PerformedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubRepo) InsertAlert(_ context.Context, a *entity.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *stubRepo) UpdateAlertAcknowledgement(context.Context, string, string, time.Time) error {
	return nil
}

var _ repository.InventoryRepository = (*stubRepo)(nil)

type stubCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string][]byte)}
}

func (c *stubCache) Get(_ context.Context, key ports.CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key.String()]
	return raw, ok
}

func (c *stubCache) Set(_ context.Context, key ports.CacheKey, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = value
}

func (c *stubCache) InvalidateItem(_ context.Context, itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, itemID)
	for k := range c.entries {
		delete(c.entries, k)
	}
}

type stubChannel struct {
	mu       sync.Mutex
	topics   []string
	subs     map[string]int
	released map[string]int
}

func newStubChannel() *stubChannel {
	return &stubChannel{subs: make(map[string]int), released: make(map[string]int)}
}

func (c *stubChannel) Broadcast(_ context.Context, topic string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return nil
}

func (c *stubChannel) Subscribe(topic string, _ func([]byte)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic]++
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.released[topic]++
	}, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func testInventoryConfig() config.InventoryConfig {
	return config.InventoryConfig{
		Alerts: config.AlertConfig{
			LowStockPercentage:  1.0,
			ExpiryDays:          30,
			OverstockPercentage: 0.2,
		},
		Forecast: config.ForecastConfig{
			HistoricalPeriods:   90,
			SeasonalityEnabled:  true,
			ConfidenceThreshold: 0.7,
		},
		Performance: config.PerformanceConfig{
			MaxResponseTime: time.Second,
			MinTurnoverRate: 4,
			MaxStockoutRate: 0.05,
		},
	}
}

func testItem(id string) *entity.Item {
	return &entity.Item{
		ID:           id,
		Name:         "Harina 000",
		Unit:         "kg",
		SafetyStock:  decimal.NewFromInt(20),
		ReorderPoint: decimal.NewFromInt(40),
		MaxStock:     decimal.NewFromInt(500),
		LeadTimeDays: 5,
	}
}

func newTestService(repo *stubRepo) (*Service, *stubCache, *stubChannel) {
	cfg := testInventoryConfig()
	clock := func() time.Time { return fixedNow }
	lg := ledger.New(ledger.NewStore()).WithClock(clock)
	monitor := alerts.New(cfg.Alerts, lg, repo, nil, nil, logger.Nop()).WithClock(clock)
	forecaster := forecast.New(cfg.Forecast).WithClock(clock)
	cache := newStubCache()
	channel := newStubChannel()
	svc := NewService(cfg, repo, lg, monitor, forecaster, cache, channel, logger.Nop()).WithClock(clock)
	return svc, cache, channel
}

func addReq(itemID string, qty, cost int64, day time.Time) AddStockRequest {
	return AddStockRequest{
		ItemID:       itemID,
		Quantity:     decimal.NewFromInt(qty),
		UnitCost:     decimal.NewFromInt(cost),
		PurchaseDate: day,
		PerformedBy:  "tester",
	}
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestAddStock_PersisteInvalidaYDifunde(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, cache, channel := newTestService(repo)
	ctx := context.Background()

	res, err := svc.AddStock(ctx, addReq("i1", 100, 5000, fixedNow.AddDate(0, 0, -3)))
	require.NoError(t, err)
	require.NotNil(t, res.Lot)
	assert.True(t, res.Item.TotalQuantity.Equal(decimal.NewFromInt(100)))

	assert.Len(t, repo.lots["i1"], 1)
	assert.Len(t, repo.movements["i1"], 1)
	assert.Contains(t, cache.invalidated, "i1")
	assert.Contains(t, channel.topics, ports.TopicMovements)
}

func TestRemoveStock_ConsumoFIFOYPersistencia(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, addReq("i1", 50, 5000, fixedNow.AddDate(0, 0, -3)))
	require.NoError(t, err)
	_, err = svc.AddStock(ctx, addReq("i1", 30, 5500, fixedNow.AddDate(0, 0, -2)))
	require.NoError(t, err)

	res, err := svc.RemoveStock(ctx, RemoveStockRequest{
		ItemID:   "i1",
		Quantity: decimal.NewFromInt(60),
		Reason:   "venta",
	})
	require.NoError(t, err)
	require.Len(t, res.Movements, 2)
	assert.True(t, res.Movements[0].Quantity.Equal(decimal.NewFromInt(50)))
	assert.True(t, res.Movements[1].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, res.TotalCost.Equal(decimal.NewFromInt(305000)))
	assert.True(t, res.Item.TotalQuantity.Equal(decimal.NewFromInt(20)))

	// 2 IN + 2 OUT persistidos
	assert.Len(t, repo.movements["i1"], 4)
}

func TestRemoveStock_ErroresDeDominio(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.RemoveStock(ctx, RemoveStockRequest{ItemID: "i1", Quantity: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, domain.ErrNoStockAvailable)

	_, err = svc.AddStock(ctx, addReq("i1", 5, 100, fixedNow))
	require.NoError(t, err)
	_, err = svc.RemoveStock(ctx, RemoveStockRequest{ItemID: "i1", Quantity: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = svc.RemoveStock(ctx, RemoveStockRequest{ItemID: "nope", Quantity: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestRemoveStock_FalloDePersistenciaSeSurface(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, addReq("i1", 50, 100, fixedNow.AddDate(0, 0, -1)))
	require.NoError(t, err)

	repo.insertMovementsErr = errors.New("conexión perdida")
	_, err = svc.RemoveStock(ctx, RemoveStockRequest{ItemID: "i1", Quantity: decimal.NewFromInt(10)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repositorio")
}

func TestAdjustStock_PersisteMovimiento(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	added, err := svc.AddStock(ctx, addReq("i1", 50, 100, fixedNow))
	require.NoError(t, err)

	res, err := svc.AdjustStock(ctx, AdjustStockRequest{
		ItemID:      "i1",
		LotID:       added.Lot.ID,
		NewQuantity: decimal.NewFromInt(45),
		Reason:      "conteo físico",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.MovementTypeADJUSTMENT, res.Movement.Type)
	assert.True(t, res.Movement.Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, res.Item.TotalQuantity.Equal(decimal.NewFromInt(45)))

	_, err = svc.AdjustStock(ctx, AdjustStockRequest{
		ItemID:      "i1",
		LotID:       "lote-fantasma",
		NewQuantity: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrLotNotFound)
}

func TestGetInventoryStatus_SegundaLecturaDesdeCache(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, addReq("i1", 100, 5000, fixedNow.AddDate(0, 0, -10)))
	require.NoError(t, err)
	callsAfterAdd := repo.getItemCalls

	first, err := svc.GetInventoryStatus(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, first.Metrics.TotalQuantity.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, callsAfterAdd+1, repo.getItemCalls)

	second, err := svc.GetInventoryStatus(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, second.Metrics.TotalQuantity.Equal(decimal.NewFromInt(100)))
	// sin ida al repositorio: servido desde cache
	assert.Equal(t, callsAfterAdd+1, repo.getItemCalls)
}

func TestGetInventoryStatus_MutacionInvalidaElCache(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, addReq("i1", 100, 5000, fixedNow.AddDate(0, 0, -10)))
	require.NoError(t, err)
	_, err = svc.GetInventoryStatus(ctx, "i1")
	require.NoError(t, err)

	_, err = svc.RemoveStock(ctx, RemoveStockRequest{ItemID: "i1", Quantity: decimal.NewFromInt(40)})
	require.NoError(t, err)

	status, err := svc.GetInventoryStatus(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, status.Metrics.TotalQuantity.Equal(decimal.NewFromInt(60)))
}

func TestGetInventorySnapshot_Paginado(t *testing.T) {
	repo := newStubRepo(testItem("i1"), testItem("i2"), testItem("i3"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	snap, err := svc.GetInventorySnapshot(ctx, SnapshotRequest{Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)
	assert.EqualValues(t, 3, snap.Total)

	// misma página servida desde cache
	_, err = svc.GetInventorySnapshot(ctx, SnapshotRequest{Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.getItemsPageCalls)

	// sin límite explícito aplica el mismo valor por defecto que el DTO
	snap, err = svc.GetInventorySnapshot(ctx, SnapshotRequest{})
	require.NoError(t, err)
	assert.Equal(t, 20, snap.Limit)
}

func TestGetReorderSuggestions_CatalogoCompleto(t *testing.T) {
	item := testItem("i1")
	repo := newStubRepo(item)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, addReq("i1", 300, 100, fixedNow.AddDate(0, 0, -60)))
	require.NoError(t, err)
	// consumo sostenido que deja la existencia bajo el stock de seguridad
	for d := 59; d >= 0; d-- {
		day := fixedNow.AddDate(0, 0, -d)
		repo.movements["i1"] = append(repo.movements["i1"], &entity.Movement{
			ItemID:      "i1",
			Type:        entity.MovementTypeOUT,
			Quantity:    decimal.NewFromInt(4),
			TotalCost:   decimal.NewFromInt(400),
			PerformedAt: day,
		})
	}
	item.TotalQuantity = decimal.NewFromInt(10)
	item.WeightedAverageCost = decimal.NewFromInt(100)

	suggestions, err := svc.GetReorderSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, entity.UrgencyCritical, suggestions[0].Urgency)
}

func TestAnalyzeInventoryTurnover_Recomendaciones(t *testing.T) {
	slow := testItem("lento")
	slow.Name = "Vino reserva"
	repo := newStubRepo(slow)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, addReq("lento", 200, 100, fixedNow.AddDate(0, 0, -300)))
	require.NoError(t, err)
	// una sola salida chica en el año: rotación muy por debajo del mínimo
	_, err = svc.RemoveStock(ctx, RemoveStockRequest{ItemID: "lento", Quantity: decimal.NewFromInt(10)})
	require.NoError(t, err)

	analysis, err := svc.AnalyzeInventoryTurnover(ctx)
	require.NoError(t, err)
	require.Len(t, analysis.Entries, 1)
	assert.Less(t, analysis.Entries[0].TurnoverRate, 4.0)
	require.Len(t, analysis.Recommendations, 1)
	assert.Contains(t, analysis.Recommendations[0], "Vino reserva")
}

func TestStartRealtimeMonitoring_CancelaAmbasSuscripciones(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, _, channel := newTestService(repo)

	cancel, err := svc.StartRealtimeMonitoring(func([]byte) {}, func([]byte) {})
	require.NoError(t, err)
	assert.Equal(t, 1, channel.subs[ports.TopicMovements])
	assert.Equal(t, 1, channel.subs[ports.TopicAlerts])

	cancel()
	assert.Equal(t, 1, channel.released[ports.TopicMovements])
	assert.Equal(t, 1, channel.released[ports.TopicAlerts])

	// cancelar dos veces no libera de más
	cancel()
	assert.Equal(t, 1, channel.released[ports.TopicMovements])
	assert.Equal(t, 1, channel.released[ports.TopicAlerts])
}

func TestProcessBatchOperations_ErroresAislados(t *testing.T) {
	repo := newStubRepo(testItem("i1"), testItem("i2"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	ops := []BatchOperation{
		{Type: BatchAdd, Add: ptr(addReq("i1", 100, 5000, fixedNow.AddDate(0, 0, -1)))},
		{Type: BatchAdd, Add: ptr(addReq("i2", 50, 2000, fixedNow.AddDate(0, 0, -1)))},
		{Type: BatchRemove, Remove: &RemoveStockRequest{ItemID: "nope", Quantity: decimal.NewFromInt(1)}},
		{Type: BatchRemove},
		{Type: BatchOperationType("PURGE")},
	}

	results := svc.ProcessBatchOperations(ctx, ops)
	require.Len(t, results, 5)

	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Len(t, results[0].Movements, 1)
	assert.ErrorIs(t, results[2].Err, domain.ErrItemNotFound)
	assert.ErrorIs(t, results[3].Err, domain.ErrInvalidInput)
	assert.ErrorIs(t, results[4].Err, domain.ErrInvalidInput)

	// los índices se respetan aun con la ejecución concurrente
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestProcessBatchOperations_MismoItemSerializado(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, addReq("i1", 100, 10, fixedNow.AddDate(0, 0, -1)))
	require.NoError(t, err)

	ops := make([]BatchOperation, 20)
	for i := range ops {
		ops[i] = BatchOperation{Type: BatchRemove, Remove: &RemoveStockRequest{
			ItemID:   "i1",
			Quantity: decimal.NewFromInt(5),
		}}
	}
	results := svc.ProcessBatchOperations(ctx, ops)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	status, err := svc.GetInventoryStatus(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, status.Metrics.TotalQuantity.IsZero())
}

func TestProcessBatchOperations_ItemsDistintosEnParalelo(t *testing.T) {
	items := make([]*entity.Item, 50)
	for i := range items {
		items[i] = testItem(fmt.Sprintf("i%d", i))
	}
	repo := newStubRepo(items...)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	// lotes con vencimiento cercano: cada mutación barre alertas y lee los
	// lotes del store mientras los demás ítems mutan en paralelo
	soon := fixedNow.AddDate(0, 0, 2)
	ops := make([]BatchOperation, len(items))
	for i, it := range items {
		req := addReq(it.ID, 100, 50, fixedNow.AddDate(0, 0, -1))
		req.ExpiryDate = &soon
		ops[i] = BatchOperation{Type: BatchAdd, Add: &req}
	}

	results := svc.ProcessBatchOperations(ctx, ops)
	require.Len(t, results, len(items))
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	for _, it := range items {
		assert.Len(t, repo.lots[it.ID], 1)
	}
}

func TestAcknowledgeAlert_InvalidaElCacheDelItem(t *testing.T) {
	repo := newStubRepo(testItem("i1"))
	svc, cache, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, addReq("i1", 100, 5000, fixedNow.AddDate(0, 0, -10)))
	require.NoError(t, err)
	svc.monitor.Publish(ctx, []*entity.Alert{{
		ID:        "a1",
		ItemID:    "i1",
		Type:      entity.AlertTypeLowStock,
		Severity:  entity.SeverityWarning,
		CreatedAt: fixedNow,
	}})

	status, err := svc.GetInventoryStatus(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, status.ActiveAlerts, 1)

	require.NoError(t, svc.AcknowledgeAlert(ctx, "a1", "user-9"))
	assert.Contains(t, cache.invalidated, "i1")

	// la próxima lectura no sale del cache y ya no lista la alerta
	status, err = svc.GetInventoryStatus(ctx, "i1")
	require.NoError(t, err)
	assert.Empty(t, status.ActiveAlerts)

	assert.ErrorIs(t, svc.AcknowledgeAlert(ctx, "fantasma", "user-9"), domain.ErrAlertNotFound)
}

func ptr[T any](v T) *T { return &v }
