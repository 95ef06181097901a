package repository

import (
	"context"
	"time"

	"github.com/invorya/inventory-core/internal/domain/entity"
)

// ItemFilter filtros para listar ítems del catálogo.
type ItemFilter struct {
	Category string
	Search   string // coincidencia parcial por nombre
}

// ItemRepository acceso de lectura al catálogo de ítems y escritura de sus
// campos derivados (totales del libro de lotes).
type ItemRepository interface {
	GetItem(ctx context.Context, id string) (*entity.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]*entity.Item, error)
	GetItemsPage(ctx context.Context, filter ItemFilter, offset, limit int) ([]*entity.Item, int64, error)
	UpdateItemTotals(ctx context.Context, item *entity.Item) error
}

// LotRepository persistencia de lotes de compra.
type LotRepository interface {
	GetActiveLots(ctx context.Context, itemID string) ([]*entity.Lot, error)
	InsertLot(ctx context.Context, lot *entity.Lot) error
	UpsertLots(ctx context.Context, lots []*entity.Lot) error
}

// MovementRepository persistencia append-only de movimientos.
type MovementRepository interface {
	InsertMovements(ctx context.Context, movements []*entity.Movement) error
	ListMovementsSince(ctx context.Context, itemID string, since time.Time) ([]*entity.Movement, error)
}

// AlertRepository persistencia de alertas y su acuse de recibo.
type AlertRepository interface {
	InsertAlert(ctx context.Context, alert *entity.Alert) error
	UpdateAlertAcknowledgement(ctx context.Context, id, userID string, at time.Time) error
}

// InventoryRepository capacidad completa que consume el servicio de orquestación.
// El core depende solo de estas interfaces; el adaptador concreto vive en
// internal/infrastructure.
type InventoryRepository interface {
	ItemRepository
	LotRepository
	MovementRepository
	AlertRepository
}
