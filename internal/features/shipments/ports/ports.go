package ports

import (
	"context"
	"io"

	"correio-ftp/internal/features/shipments/domain"
)

// ShipmentStore is the secondary port persisting shipment files. The stored file
// name encodes the shipment, so the store is the only durable record.
type ShipmentStore interface {
	// Scan returns every shipment file found in storage.
	Scan(ctx context.Context) ([]domain.Shipment, error)
	// Write streams r into the file for s. Nothing is left behind on failure.
	Write(ctx context.Context, s domain.Shipment, r io.Reader) (int64, error)
	// Open returns the content of s, or domain.ErrFileMissing.
	Open(ctx context.Context, s domain.Shipment) (io.ReadCloser, error)
	// Transition renames the file for s to encode the new status.
	Transition(ctx context.Context, s domain.Shipment, to domain.Status) error
}

// StatusPublisher receives every accepted shipment change.
type StatusPublisher interface {
	Publish(ctx context.Context, s domain.Shipment) error
}

// ShipmentReader is the read side of the registry used by query handlers.
type ShipmentReader interface {
	Get(id string) (domain.Shipment, bool)
	All() []domain.Shipment
}

// Registry is the primary port the control sessions work against.
type Registry interface {
	ShipmentReader
	Create(ctx context.Context, filename string, r io.Reader) (domain.Shipment, error)
	Open(ctx context.Context, id string) (domain.Shipment, io.ReadCloser, error)
	MarkDelivered(ctx context.Context, id string) (domain.Shipment, error)
}
