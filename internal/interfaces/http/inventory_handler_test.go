package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/invorya/inventory-core/internal/application/alerts"
	"github.com/invorya/inventory-core/internal/application/forecast"
	"github.com/invorya/inventory-core/internal/application/inventory"
	"github.com/invorya/inventory-core/internal/domain"
	"github.com/invorya/inventory-core/internal/domain/entity"
	"github.com/invorya/inventory-core/internal/domain/ledger"
	"github.com/invorya/inventory-core/internal/domain/repository"
	"github.com/invorya/inventory-core/pkg/config"
	"github.com/invorya/inventory-core/pkg/logger"
)

type fakeRepo struct {
	items map[string]*entity.Item
}

func (r *fakeRepo) GetItem(_ context.Context, id string) (*entity.Item, error) {
	it, ok := r.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return it, nil
}

func (r *fakeRepo) ListItems(context.Context, repository.ItemFilter) ([]*entity.Item, error) {
	var out []*entity.Item
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, nil
}

func (r *fakeRepo) GetItemsPage(_ context.Context, _ repository.ItemFilter, _, _ int) ([]*entity.Item, int64, error) {
	list, _ := r.ListItems(context.Background(), repository.ItemFilter{})
	return list, int64(len(list)), nil
}

func (r *fakeRepo) UpdateItemTotals(context.Context, *entity.Item) error { return nil }

func (r *fakeRepo) GetActiveLots(context.Context, string) ([]*entity.Lot, error) { return nil, nil }

func (r *fakeRepo) InsertLot(context.Context, *entity.Lot) error { return nil }

func (r *fakeRepo) UpsertLots(context.Context, []*entity.Lot) error { return nil }

func (r *fakeRepo) InsertMovements(context.Context, []*entity.Movement) error { return nil }
func (r *fakeRepo) ListMovementsSince(context.Context, string, time.Time) ([]*entity.Movement, error) {
	return nil, nil
}
func (r *fakeRepo) InsertAlert(context.Context, *entity.Alert) error { return nil }
func (r *fakeRepo) UpdateAlertAcknowledgement(context.Context, string, string, time.Time) error {
	return nil
}

var _ repository.InventoryRepository = (*fakeRepo)(nil)

func newTestApp(items ...*entity.Item) *fiber.App {
	repo := &fakeRepo{items: make(map[string]*entity.Item)}
	for _, it := range items {
		repo.items[it.ID] = it
	}
	cfg := config.InventoryConfig{
		Alerts:      config.AlertConfig{LowStockPercentage: 1.0, ExpiryDays: 30, OverstockPercentage: 0.2},
		Forecast:    config.ForecastConfig{HistoricalPeriods: 90, SeasonalityEnabled: true, ConfidenceThreshold: 0.7},
		Performance: config.PerformanceConfig{MaxResponseTime: time.Second},
	}
	engine := ledger.New(ledger.NewStore())
	monitor := alerts.New(cfg.Alerts, engine, repo, nil, nil, logger.Nop())
	service := inventory.NewService(cfg, repo, engine, monitor, forecast.New(cfg.Forecast), nil, nil, logger.Nop())

	app := fiber.New()
	Router(app, RouterDeps{InventoryService: service, AlertMonitor: monitor})
	return app
}

func catalogItem(id string) *entity.Item {
	return &entity.Item{
		ID:           id,
		Name:         "Queso cremoso",
		Unit:         "kg",
		SafetyStock:  decimal.NewFromInt(10),
		ReorderPoint: decimal.NewFromInt(20),
		MaxStock:     decimal.NewFromInt(200),
		LeadTimeDays: 3,
	}
}

func TestAddStock_Creado(t *testing.T) {
	app := newTestApp(catalogItem("i1"))

	body, _ := json.Marshal(fiber.Map{
		"quantity":      "100",
		"unit_cost":     "5000",
		"purchase_date": "2024-06-01T00:00:00Z",
	})
	req := httptest.NewRequest("POST", "/api/inventory/i1/stock", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestAddStock_ItemInexistente(t *testing.T) {
	app := newTestApp()

	body, _ := json.Marshal(fiber.Map{
		"quantity":      "10",
		"unit_cost":     "100",
		"purchase_date": "2024-06-01T00:00:00Z",
	})
	req := httptest.NewRequest("POST", "/api/inventory/nope/stock", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRemoveStock_SinExistenciaDevuelveConflicto(t *testing.T) {
	app := newTestApp(catalogItem("i1"))

	body, _ := json.Marshal(fiber.Map{"quantity": "5"})
	req := httptest.NewRequest("POST", "/api/inventory/i1/remove", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestGetForecast_DiasFueraDeRango(t *testing.T) {
	app := newTestApp(catalogItem("i1"))

	req := httptest.NewRequest("GET", "/api/inventory/i1/forecast?days=0", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetSnapshot_ListaElCatalogo(t *testing.T) {
	app := newTestApp(catalogItem("i1"), catalogItem("i2"))

	req := httptest.NewRequest("GET", "/api/inventory/?limit=10", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.EqualValues(t, 2, out.Total)
}

func TestAcknowledge_SinUserID(t *testing.T) {
	app := newTestApp()

	body, _ := json.Marshal(fiber.Map{})
	req := httptest.NewRequest("POST", "/api/alerts/a1/acknowledge", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAcknowledge_AlertaInexistente(t *testing.T) {
	app := newTestApp()

	body, _ := json.Marshal(fiber.Map{"user_id": "u1"})
	req := httptest.NewRequest("POST", "/api/alerts/a1/acknowledge", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
