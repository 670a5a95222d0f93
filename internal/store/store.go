// Package store persists the last verified mode of each device in redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweeney/button-hub/internal/mode"
)

// KeyPrefix namespaces every key the store writes.
const KeyPrefix = "buttonhub:mode:"

// Client is the subset of *redis.Client the store uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// ModeStore implements mode.Store on redis.
type ModeStore struct {
	rdb Client
	ttl time.Duration
}

// NewModeStore creates a store. Records expire after ttl; zero keeps them forever.
func NewModeStore(rdb Client, ttl time.Duration) *ModeStore {
	return &ModeStore{rdb: rdb, ttl: ttl}
}

func key(id string) string { return KeyPrefix + id }

// Load returns the record for deviceID. A missing key is not an error.
func (s *ModeStore) Load(ctx context.Context, deviceID string) (mode.Record, bool, error) {
	b, err := s.rdb.Get(ctx, key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return mode.Record{}, false, nil
	}
	if err != nil {
		return mode.Record{}, false, fmt.Errorf("load mode %s: %w", deviceID, err)
	}
	var rec mode.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return mode.Record{}, false, fmt.Errorf("decode mode %s: %w", deviceID, err)
	}
	return rec, true, nil
}

// Save writes rec for deviceID.
func (s *ModeStore) Save(ctx context.Context, deviceID string, rec mode.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode mode %s: %w", deviceID, err)
	}
	if err := s.rdb.Set(ctx, key(deviceID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("save mode %s: %w", deviceID, err)
	}
	return nil
}
