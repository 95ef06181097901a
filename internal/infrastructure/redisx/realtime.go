package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/invorya/inventory-core/internal/application/ports"
	"github.com/invorya/inventory-core/pkg/logger"
)

var _ ports.Channel = (*Channel)(nil)

// Channel canal realtime sobre Redis pub/sub. Cada suscripción corre su propio
// receptor; la función de liberación cierra la suscripción y detiene el receptor.
type Channel struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewChannel construye el adaptador del canal.
func NewChannel(rdb *redis.Client, log *logger.Logger) *Channel {
	return &Channel{rdb: rdb, log: log}
}

// Broadcast publica el payload serializado como JSON en el tópico.
func (c *Channel) Broadcast(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serializar payload de %s: %w", topic, err)
	}
	if err := c.rdb.Publish(ctx, topic, raw).Err(); err != nil {
		return fmt.Errorf("publicar en %s: %w", topic, err)
	}
	return nil
}

// Subscribe registra fn como receptor del tópico y devuelve la función que
// libera la suscripción.
func (c *Channel) Subscribe(topic string, fn func(payload []byte)) (func(), error) {
	sub := c.rdb.Subscribe(context.Background(), topic)
	if _, err := sub.Receive(context.Background()); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("suscribir a %s: %w", topic, err)
	}

	go func() {
		for msg := range sub.Channel() {
			fn([]byte(msg.Payload))
		}
	}()

	return func() {
		if err := sub.Close(); err != nil {
			c.log.Debug().Err(err).Str("topic", topic).Msg("cerrar suscripción")
		}
	}, nil
}
