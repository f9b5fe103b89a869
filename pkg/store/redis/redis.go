// Package redis is a store.Backend on top of Redis string keys.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store keeps each document under graphdraw:model:{key}.
type Store struct {
	client *redis.Client
}

// NewStore wraps an existing client. Close closes it.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return NewStore(client), nil
}

func (s *Store) makeKey(key string) string {
	return fmt.Sprintf("graphdraw:model:%s", key)
}

func (s *Store) Name() string { return "redis" }

func (s *Store) Put(ctx context.Context, key string, doc []byte) error {
	if err := s.client.Set(ctx, s.makeKey(key), doc, 0).Err(); err != nil {
		return fmt.Errorf("failed to SET %s: %w", s.makeKey(key), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	doc, err := s.client.Get(ctx, s.makeKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to GET %s: %w", s.makeKey(key), err)
	}
	return doc, true, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
