package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"correio-ftp/internal/core/cache"
	"correio-ftp/internal/features/shipments/domain"
)

const (
	// StatusChannel is the pub/sub channel announcing shipment changes.
	StatusChannel     = "shipments"
	shipmentKeyPrefix = "shipment:"
)

// ShipmentKey is the cache key holding the mirrored record of id.
func ShipmentKey(id string) string {
	return shipmentKeyPrefix + id
}

// CachePublisher implements ports.StatusPublisher by mirroring each shipment into a
// cache.Cache and announcing it on StatusChannel.
type CachePublisher struct {
	cache cache.Cache
}

// NewCachePublisher creates a new CachePublisher.
func NewCachePublisher(c cache.Cache) *CachePublisher {
	return &CachePublisher{cache: c}
}

// Publish stores s under its key without expiry, then announces it.
func (p *CachePublisher) Publish(ctx context.Context, s domain.Shipment) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal shipment: %w", err)
	}

	if err := p.cache.Set(ctx, ShipmentKey(s.ID), data, 0); err != nil {
		return fmt.Errorf("failed to mirror shipment %s: %w", s.ID, err)
	}

	if err := p.cache.Publish(ctx, StatusChannel, data); err != nil {
		return fmt.Errorf("failed to announce shipment %s: %w", s.ID, err)
	}
	return nil
}

// Lookup reads the mirrored record of id.
func (p *CachePublisher) Lookup(ctx context.Context, id string) (*domain.Shipment, error) {
	data, err := p.cache.Get(ctx, ShipmentKey(id))
	if err != nil {
		return nil, err
	}

	var s domain.Shipment
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipment: %w", err)
	}
	return &s, nil
}
