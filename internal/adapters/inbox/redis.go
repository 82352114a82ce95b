package inbox

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"autonews-pipeline/internal/domain"
)

// RedisInbox читает элементы, сложенные внешними сканерами в Redis-списки.
// Сами сканеры вне ядра: сюда приходят уже распарсенные элементы.
type RedisInbox struct {
	client *redis.Client
	prefix string
}

// NewRedisInbox создаёт inbox с префиксом ключей.
func NewRedisInbox(client *redis.Client, prefix string) *RedisInbox {
	if prefix == "" {
		prefix = "inbox"
	}
	return &RedisInbox{client: client, prefix: prefix}
}

var _ domain.ItemInbox = (*RedisInbox)(nil)

// ReadBatch забирает до max элементов источника указанного типа.
// Нечитаемые записи пропускаются.
func (i *RedisInbox) ReadBatch(ctx context.Context, kind domain.SourceKind, max int) ([]domain.SourceItemPayload, error) {
	if max <= 0 {
		return nil, nil
	}
	key := i.prefix + ":" + string(kind)
	raw, err := i.client.LPopCount(ctx, key, max).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	items := make([]domain.SourceItemPayload, 0, len(raw))
	for _, r := range raw {
		var item domain.SourceItemPayload
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			continue
		}
		if item.Kind == "" {
			item.Kind = kind
		}
		items = append(items, item)
	}
	return items, nil
}
