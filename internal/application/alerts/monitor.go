package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/invorya/inventory-core/internal/application/ports"
	"github.com/invorya/inventory-core/internal/domain"
	"github.com/invorya/inventory-core/internal/domain/entity"
	"github.com/invorya/inventory-core/internal/domain/ledger"
	"github.com/invorya/inventory-core/internal/domain/repository"
	"github.com/invorya/inventory-core/pkg/config"
	"github.com/invorya/inventory-core/pkg/logger"
)

// Umbrales de severidad por ratio stock/seguridad y por días al vencimiento.
const (
	lowStockCriticalRatio = 0.1
	lowStockWarningRatio  = 0.5
	expiryCriticalDays    = 3
	expiryWarningDays     = 7
)

// Handler callback registrado para un tipo de alerta.
type Handler func(ctx context.Context, alert *entity.Alert)

// Option configura el monitor en la construcción.
type Option func(*Monitor)

// WithHandler registra un handler para un tipo de alerta. La tabla de despacho
// queda fija tras la construcción.
func WithHandler(t entity.AlertType, h Handler) Option {
	return func(m *Monitor) {
		m.handlers[t] = append(m.handlers[t], h)
	}
}

// Monitor evalúa el estado del libro de lotes contra la configuración de cada
// ítem y produce alertas tipadas. Posee la creación y el acuse de recibo de
// alertas; solo lee el estado del libro. Los fallos de persistencia o despacho
// se registran en el log y nunca abortan el barrido para los demás ítems.
type Monitor struct {
	cfg     config.AlertConfig
	ledger  *ledger.Engine
	repo    repository.AlertRepository
	channel ports.Channel
	urgent  ports.CriticalDispatcher
	log     *logger.Logger
	now     func() time.Time

	handlers map[entity.AlertType][]Handler

	mu     sync.Mutex
	alerts map[string][]*entity.Alert // por ítem
}

// New construye el monitor. channel y urgent pueden ser nil (sin realtime ni
// despacho urgente).
func New(
	cfg config.AlertConfig,
	lg *ledger.Engine,
	repo repository.AlertRepository,
	channel ports.Channel,
	urgent ports.CriticalDispatcher,
	log *logger.Logger,
	opts ...Option,
) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		ledger:   lg,
		repo:     repo,
		channel:  channel,
		urgent:   urgent,
		log:      log,
		now:      time.Now,
		handlers: make(map[entity.AlertType][]Handler),
		alerts:   make(map[string][]*entity.Alert),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithClock fija el reloj del monitor (para pruebas).
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// MonitorInventory evalúa los cuatro chequeos sobre cada ítem (un ítem puede
// disparar varios a la vez) y publica las alertas generadas. El barrido es
// total: el fallo de un ítem nunca bloquea a los demás.
func (m *Monitor) MonitorInventory(ctx context.Context, items []*entity.Item) []*entity.Alert {
	var all []*entity.Alert
	for _, item := range items {
		generated := m.Evaluate(item)
		m.Publish(ctx, generated)
		all = append(all, generated...)
	}
	return all
}

// Evaluate ejecuta los chequeos de un ítem sin efectos: no persiste ni despacha.
func (m *Monitor) Evaluate(item *entity.Item) []*entity.Alert {
	var alerts []*entity.Alert
	if a := m.checkLowStock(item); a != nil {
		alerts = append(alerts, a)
	}
	alerts = append(alerts, m.checkExpiry(item)...)
	if a := m.checkOverstock(item); a != nil {
		alerts = append(alerts, a)
	}
	if a := m.checkReorder(item); a != nil {
		alerts = append(alerts, a)
	}
	return alerts
}

// Publish registra cada alerta en memoria, la persiste, la despacha a los
// handlers de su tipo y la difunde por el canal realtime. Las CRITICAL pasan
// además por el despacho urgente. Todos los fallos se registran y se recuperan
// localmente.
func (m *Monitor) Publish(ctx context.Context, alerts []*entity.Alert) {
	for _, alert := range alerts {
		m.mu.Lock()
		m.alerts[alert.ItemID] = append(m.alerts[alert.ItemID], alert)
		m.mu.Unlock()

		if m.repo != nil {
			if err := m.repo.InsertAlert(ctx, alert); err != nil {
				m.log.Error().Err(err).Str("alert_id", alert.ID).Str("item_id", alert.ItemID).Msg("persistir alerta")
			}
		}
		for _, h := range m.handlers[alert.Type] {
			h(ctx, alert)
		}
		if m.channel != nil {
			if err := m.channel.Broadcast(ctx, ports.TopicAlerts, alert); err != nil {
				m.log.Error().Err(err).Str("alert_id", alert.ID).Msg("difundir alerta")
			}
		}
		if alert.Severity == entity.SeverityCritical && m.urgent != nil {
			if err := m.urgent.Dispatch(ctx, alert); err != nil {
				m.log.Error().Err(err).Str("alert_id", alert.ID).Msg("despacho urgente de alerta crítica")
			}
		}
	}
}

// checkLowStock dispara cuando la existencia cae a safetyStock × lowStockPercentage.
// Severidad por ratio existencia/seguridad: <=0.1 CRITICAL, <=0.5 WARNING, si no INFO.
func (m *Monitor) checkLowStock(item *entity.Item) *entity.Alert {
	if !item.SafetyStock.GreaterThan(decimal.Zero) {
		return nil
	}
	current := item.TotalQuantity
	threshold := item.SafetyStock.Mul(decimal.NewFromFloat(m.cfg.LowStockPercentage))
	if current.GreaterThan(threshold) {
		return nil
	}

	ratio := current.InexactFloat64() / item.SafetyStock.InexactFloat64()
	severity := entity.SeverityInfo
	switch {
	case ratio <= lowStockCriticalRatio:
		severity = entity.SeverityCritical
	case ratio <= lowStockWarningRatio:
		severity = entity.SeverityWarning
	}

	return m.newAlert(item.ID, entity.AlertTypeLowStock, severity,
		fmt.Sprintf("existencia baja de %s: %s %s (seguridad %s)", item.Name, current, item.Unit, item.SafetyStock),
		threshold, current)
}

// checkExpiry emite una alerta por cada lote activo dentro de la ventana de
// vencimiento. Severidad por días restantes: <=3 CRITICAL, <=7 WARNING, si no INFO.
func (m *Monitor) checkExpiry(item *entity.Item) []*entity.Alert {
	lots := m.ledger.ExpiringLots(item.ID, m.cfg.ExpiryDays)
	if len(lots) == 0 {
		return nil
	}
	now := m.now()
	alerts := make([]*entity.Alert, 0, len(lots))
	for _, lot := range lots {
		days := lot.ExpiryDate.Sub(now).Hours() / 24
		severity := entity.SeverityInfo
		switch {
		case days <= expiryCriticalDays:
			severity = entity.SeverityCritical
		case days <= expiryWarningDays:
			severity = entity.SeverityWarning
		}
		alerts = append(alerts, m.newAlert(item.ID, entity.AlertTypeExpiry, severity,
			fmt.Sprintf("lote %s de %s vence el %s", lot.BatchNumber, item.Name, lot.ExpiryDate.Format("2006-01-02")),
			decimal.NewFromInt(int64(m.cfg.ExpiryDays)), lot.RemainingQuantity))
	}
	return alerts
}

// checkOverstock dispara cuando la existencia supera maxStock × (1 + overstockPercentage).
func (m *Monitor) checkOverstock(item *entity.Item) *entity.Alert {
	if !item.MaxStock.GreaterThan(decimal.Zero) {
		return nil
	}
	limit := item.MaxStock.Mul(decimal.NewFromFloat(1 + m.cfg.OverstockPercentage))
	if !item.TotalQuantity.GreaterThan(limit) {
		return nil
	}
	return m.newAlert(item.ID, entity.AlertTypeOverstock, entity.SeverityWarning,
		fmt.Sprintf("sobrestock de %s: %s %s (máximo %s)", item.Name, item.TotalQuantity, item.Unit, item.MaxStock),
		limit, item.TotalQuantity)
}

// checkReorder dispara cuando la existencia cae al punto de reorden efectivo:
// reorderPoint + consumo diario promedio × lead time.
func (m *Monitor) checkReorder(item *entity.Item) *entity.Alert {
	effective := item.ReorderPoint.Add(item.AverageDailyCost.Mul(decimal.NewFromInt(int64(item.LeadTimeDays))))
	if item.TotalQuantity.GreaterThan(effective) {
		return nil
	}
	severity := entity.SeverityWarning
	if !item.TotalQuantity.GreaterThan(item.SafetyStock) {
		severity = entity.SeverityCritical
	}
	return m.newAlert(item.ID, entity.AlertTypeReorder, severity,
		fmt.Sprintf("reponer %s: existencia %s %s, punto de reorden efectivo %s", item.Name, item.TotalQuantity, item.Unit, effective.Round(2)),
		effective, item.TotalQuantity)
}

func (m *Monitor) newAlert(itemID string, t entity.AlertType, s entity.AlertSeverity, msg string, threshold, current decimal.Decimal) *entity.Alert {
	return &entity.Alert{
		ID:           uuid.New().String(),
		ItemID:       itemID,
		Type:         t,
		Severity:     s,
		Message:      msg,
		Threshold:    threshold,
		CurrentValue: current,
		CreatedAt:    m.now(),
	}
}

// AcknowledgeAlert estampa el acuse de recibo y devuelve la alerta reconocida.
// Es idempotente: repetir el acuse de una alerta ya reconocida no es error ni
// la reactiva.
func (m *Monitor) AcknowledgeAlert(ctx context.Context, id, userID string) (*entity.Alert, error) {
	m.mu.Lock()
	var found *entity.Alert
	for _, list := range m.alerts {
		for _, a := range list {
			if a.ID == id {
				found = a
				break
			}
		}
		if found != nil {
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return nil, domain.ErrAlertNotFound
	}
	if found.Acknowledged() {
		m.mu.Unlock()
		return found, nil
	}
	at := m.now()
	found.AcknowledgedAt = &at
	found.AcknowledgedBy = userID
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.UpdateAlertAcknowledgement(ctx, id, userID, at); err != nil {
			return nil, fmt.Errorf("persistir acuse de alerta: %w", err)
		}
	}
	return found, nil
}

// GetActiveAlerts devuelve las alertas sin acuse de un ítem, más recientes primero.
func (m *Monitor) GetActiveAlerts(itemID string) []*entity.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortByCreatedDesc(filterActive(m.alerts[itemID]))
}

// GetAllActiveAlerts devuelve las alertas sin acuse de todos los ítems, más recientes primero.
func (m *Monitor) GetAllActiveAlerts() []*entity.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*entity.Alert
	for _, list := range m.alerts {
		all = append(all, filterActive(list)...)
	}
	return sortByCreatedDesc(all)
}

// Statistics conteos agregados de alertas.
type Statistics struct {
	Total          int
	Unacknowledged int
	BySeverity     map[entity.AlertSeverity]int
	ByType         map[entity.AlertType]int
}

// GetAlertStatistics devuelve conteos por severidad y tipo más el total sin acuse.
func (m *Monitor) GetAlertStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Statistics{
		BySeverity: make(map[entity.AlertSeverity]int),
		ByType:     make(map[entity.AlertType]int),
	}
	for _, list := range m.alerts {
		for _, a := range list {
			stats.Total++
			stats.BySeverity[a.Severity]++
			stats.ByType[a.Type]++
			if !a.Acknowledged() {
				stats.Unacknowledged++
			}
		}
	}
	return stats
}

func filterActive(list []*entity.Alert) []*entity.Alert {
	var active []*entity.Alert
	for _, a := range list {
		if !a.Acknowledged() {
			active = append(active, a)
		}
	}
	return active
}

func sortByCreatedDesc(list []*entity.Alert) []*entity.Alert {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}
