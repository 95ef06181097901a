package ports

import (
	"context"
	"time"

	"github.com/invorya/inventory-core/internal/domain/entity"
)

// Tópicos del canal realtime.
const (
	TopicMovements = "inventory.movements"
	TopicAlerts    = "inventory.alerts"
)

// CacheKey clave estructurada del cache de lectura: (operación, ítem).
type CacheKey struct {
	Operation string
	ItemID    string
}

// String serializa la clave con el prefijo del cache.
func (k CacheKey) String() string {
	return "inv:" + k.Operation + ":" + k.ItemID
}

// Cache cache de lectura con TTL corto. Las implementaciones indexan las claves
// por ítem para poder invalidarlas todas ante una mutación de ese ítem.
type Cache interface {
	Get(ctx context.Context, key CacheKey) ([]byte, bool)
	Set(ctx context.Context, key CacheKey, value []byte, ttl time.Duration)
	InvalidateItem(ctx context.Context, itemID string)
}

// Channel canal genérico de pub/sub para notificaciones realtime.
// Subscribe devuelve la función que libera la suscripción.
type Channel interface {
	Broadcast(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, fn func(payload []byte)) (func(), error)
}

// CriticalDispatcher despacho urgente de alertas críticas (ej. correo).
// Fire-and-forget: los fallos se registran en el log, nunca se propagan al
// caller de la mutación que los originó.
type CriticalDispatcher interface {
	Dispatch(ctx context.Context, alert *entity.Alert) error
}
