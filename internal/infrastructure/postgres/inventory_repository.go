package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/invorya/inventory-core/internal/domain"
	"github.com/invorya/inventory-core/internal/domain/entity"
	"github.com/invorya/inventory-core/internal/domain/repository"
)

var _ repository.InventoryRepository = (*InventoryRepo)(nil)

// InventoryRepo implementación del repositorio de inventario sobre PostgreSQL
// (usable con pool o tx).
type InventoryRepo struct {
	q Querier
}

// NewInventoryRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInventoryRepository(q Querier) *InventoryRepo {
	return &InventoryRepo{q: q}
}

const itemColumns = `id, name, category, unit, safety_stock, reorder_point, max_stock,
	lead_time_days, average_daily_cost, total_quantity, total_value,
	weighted_average_cost, created_at, updated_at`

// GetItem obtiene un ítem del catálogo por ID.
func (r *InventoryRepo) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	item, err := scanItem(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems lista el catálogo aplicando los filtros de categoría y búsqueda.
func (r *InventoryRepo) ListItems(ctx context.Context, filter repository.ItemFilter) ([]*entity.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	where, args := filterClauses(filter)
	query += where + ` ORDER BY name`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var list []*entity.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		list = append(list, item)
	}
	return list, rows.Err()
}

// GetItemsPage devuelve una página del catálogo y el total de ítems que
// cumplen el filtro.
func (r *InventoryRepo) GetItemsPage(ctx context.Context, filter repository.ItemFilter, offset, limit int) ([]*entity.Item, int64, error) {
	query := `SELECT ` + itemColumns + `, COUNT(*) OVER() AS total FROM items`
	where, args := filterClauses(filter)
	query += where + fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("page items: %w", err)
	}
	defer rows.Close()

	var list []*entity.Item
	var total int64
	for rows.Next() {
		var it entity.Item
		if err := rows.Scan(
			&it.ID, &it.Name, &it.Category, &it.Unit, &it.SafetyStock, &it.ReorderPoint,
			&it.MaxStock, &it.LeadTimeDays, &it.AverageDailyCost, &it.TotalQuantity,
			&it.TotalValue, &it.WeightedAverageCost, &it.CreatedAt, &it.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		list = append(list, &it)
	}
	return list, total, rows.Err()
}

// UpdateItemTotals persiste los campos derivados del ítem tras una mutación del
// libro de lotes.
func (r *InventoryRepo) UpdateItemTotals(ctx context.Context, item *entity.Item) error {
	query := `
		UPDATE items
		SET total_quantity = $2, total_value = $3, weighted_average_cost = $4,
		    average_daily_cost = $5, updated_at = $6
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		item.ID, item.TotalQuantity, item.TotalValue, item.WeightedAverageCost,
		item.AverageDailyCost, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update item totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// GetActiveLots devuelve los lotes con existencia del ítem en orden de compra.
func (r *InventoryRepo) GetActiveLots(ctx context.Context, itemID string) ([]*entity.Lot, error) {
	query := `
		SELECT id, item_id, quantity, remaining_quantity, unit_cost, purchase_date,
		       expiry_date, supplier_id, warehouse_id, batch_number, created_at, updated_at
		FROM lots
		WHERE item_id = $1 AND remaining_quantity > 0
		ORDER BY purchase_date, created_at`
	rows, err := r.q.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("get active lots: %w", err)
	}
	defer rows.Close()

	var lots []*entity.Lot
	for rows.Next() {
		var l entity.Lot
		if err := rows.Scan(
			&l.ID, &l.ItemID, &l.Quantity, &l.RemainingQuantity, &l.UnitCost,
			&l.PurchaseDate, &l.ExpiryDate, &l.SupplierID, &l.WarehouseID,
			&l.BatchNumber, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, &l)
	}
	return lots, rows.Err()
}

// InsertLot persiste un lote nuevo.
func (r *InventoryRepo) InsertLot(ctx context.Context, lot *entity.Lot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}
	query := `
		INSERT INTO lots (id, item_id, quantity, remaining_quantity, unit_cost, purchase_date,
		                  expiry_date, supplier_id, warehouse_id, batch_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		lot.ID, lot.ItemID, lot.Quantity, lot.RemainingQuantity, lot.UnitCost,
		lot.PurchaseDate, lot.ExpiryDate, lot.SupplierID, lot.WarehouseID,
		lot.BatchNumber, lot.CreatedAt, lot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// UpsertLots persiste el estado corriente de los lotes tocados por una salida
// o un ajuste.
func (r *InventoryRepo) UpsertLots(ctx context.Context, lots []*entity.Lot) error {
	query := `
		INSERT INTO lots (id, item_id, quantity, remaining_quantity, unit_cost, purchase_date,
		                  expiry_date, supplier_id, warehouse_id, batch_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET remaining_quantity = EXCLUDED.remaining_quantity, updated_at = EXCLUDED.updated_at`
	for _, lot := range lots {
		if _, err := r.q.Exec(ctx, query,
			lot.ID, lot.ItemID, lot.Quantity, lot.RemainingQuantity, lot.UnitCost,
			lot.PurchaseDate, lot.ExpiryDate, lot.SupplierID, lot.WarehouseID,
			lot.BatchNumber, lot.CreatedAt, lot.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert lot %s: %w", lot.ID, err)
		}
	}
	return nil
}

// InsertMovements persiste los movimientos emitidos por una mutación. El
// historial es append-only: nunca se actualiza ni borra.
func (r *InventoryRepo) InsertMovements(ctx context.Context, movements []*entity.Movement) error {
	query := `
		INSERT INTO movements (id, item_id, lot_id, type, quantity, unit_cost, total_cost,
		                       reason, reference_id, notes, performed_by, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for _, m := range movements {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if _, err := r.q.Exec(ctx, query,
			m.ID, m.ItemID, m.LotID, m.Type, m.Quantity, m.UnitCost, m.TotalCost,
			nullable(m.Reason), nullable(m.ReferenceID), nullable(m.Notes),
			nullable(m.PerformedBy), m.PerformedAt,
		); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
	}
	return nil
}

// ListMovementsSince lista los movimientos del ítem desde la fecha dada, en
// orden cronológico.
func (r *InventoryRepo) ListMovementsSince(ctx context.Context, itemID string, since time.Time) ([]*entity.Movement, error) {
	query := `
		SELECT id, item_id, lot_id, type, quantity, unit_cost, total_cost,
		       reason, reference_id, notes, performed_by, performed_at
		FROM movements
		WHERE item_id = $1 AND performed_at >= $2
		ORDER BY performed_at`
	rows, err := r.q.Query(ctx, query, itemID, since)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var list []*entity.Movement
	for rows.Next() {
		var m entity.Movement
		var reason, referenceID, notes, performedBy *string
		if err := rows.Scan(
			&m.ID, &m.ItemID, &m.LotID, &m.Type, &m.Quantity, &m.UnitCost, &m.TotalCost,
			&reason, &referenceID, &notes, &performedBy, &m.PerformedAt,
		); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Reason = deref(reason)
		m.ReferenceID = deref(referenceID)
		m.Notes = deref(notes)
		m.PerformedBy = deref(performedBy)
		list = append(list, &m)
	}
	return list, rows.Err()
}

// InsertAlert persiste una alerta generada por el monitor.
func (r *InventoryRepo) InsertAlert(ctx context.Context, alert *entity.Alert) error {
	query := `
		INSERT INTO alerts (id, item_id, type, severity, message, threshold, current_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query,
		alert.ID, alert.ItemID, alert.Type, alert.Severity, alert.Message,
		alert.Threshold, alert.CurrentValue, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// UpdateAlertAcknowledgement estampa el acuse de recibo de una alerta.
func (r *InventoryRepo) UpdateAlertAcknowledgement(ctx context.Context, id, userID string, at time.Time) error {
	query := `UPDATE alerts SET acknowledged_at = $2, acknowledged_by = $3 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, at, userID)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

// filterClauses arma el WHERE del catálogo a partir del filtro.
func filterClauses(filter repository.ItemFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanItem(row pgx.Row) (*entity.Item, error) {
	var it entity.Item
	err := row.Scan(
		&it.ID, &it.Name, &it.Category, &it.Unit, &it.SafetyStock, &it.ReorderPoint,
		&it.MaxStock, &it.LeadTimeDays, &it.AverageDailyCost, &it.TotalQuantity,
		&it.TotalValue, &it.WeightedAverageCost, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
