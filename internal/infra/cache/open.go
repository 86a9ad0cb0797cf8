package cache

import (
	"context"
	"fmt"

	"ai-news-digest/internal/domain"
)

// Open возвращает Redis-кэш, если задан addr, иначе кэш в памяти.
// Возвращённая функция закрывает соединение.
func Open(ctx context.Context, addr, prefix string) (domain.Cache, func(), error) {
	if addr == "" {
		return NewMemory(), func() {}, nil
	}
	client, err := Connect(ctx, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: connect redis: %w", err)
	}
	return NewRedis(client, prefix), func() { _ = client.Close() }, nil
}
