// Package kvstore persists small agent settings such as label geometry and the
// payment terminal credential.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

var ErrNotFound = errors.New("key not found")

// Store is a flat string-keyed byte store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open picks Redis when a URL is configured and the local SQLite file otherwise.
func Open(ctx context.Context, cfg model.StoreConfig) (Store, error) {
	if cfg.RedisURL != "" {
		return OpenRedis(ctx, cfg.RedisURL)
	}
	return OpenSQLite(cfg.SQLitePath)
}

// GetJSON decodes the value under key into v. Missing keys return ErrNotFound.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
