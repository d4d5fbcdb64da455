package service

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"correio-ftp/internal/core/logger"
	"correio-ftp/internal/features/shipments/domain"
	"correio-ftp/internal/features/shipments/ports"

	"go.uber.org/zap"
)

// Registry is the in-memory directory of shipments, backed by a ports.ShipmentStore.
//
// A status change is a two-step protocol: the store renames the file first and the
// in-memory record is updated only afterwards. If the process dies in between, the
// next Load reads the renamed file, so the filesystem always wins.
type Registry struct {
	store     ports.ShipmentStore
	publisher ports.StatusPublisher
	logger    *zap.Logger

	// mu guards records, reserved and every entry's shipment value.
	mu       sync.RWMutex
	records  map[string]*entry
	reserved map[string]struct{}

	now  func() time.Time
	intn func(n int) int
}

// entry holds one record. Its mutex serializes status transitions of that id only.
type entry struct {
	mu       sync.Mutex
	shipment domain.Shipment
}

// NewRegistry creates an empty registry. A nil publisher discards changes.
func NewRegistry(store ports.ShipmentStore, publisher ports.StatusPublisher) *Registry {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Registry{
		store:     store,
		publisher: publisher,
		logger:    logger.Named("registry"),
		records:   make(map[string]*entry),
		reserved:  make(map[string]struct{}),
		now:       time.Now,
		intn:      rand.IntN,
	}
}

// Load populates the registry from the store. It must complete before any session
// is served. When two files carry the same id the first one scanned is kept.
func (r *Registry) Load(ctx context.Context) (int, error) {
	shipments, err := r.store.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("registry: failed to load shipments: %w", err)
	}

	loaded := 0
	for _, s := range shipments {
		if _, exists := r.Get(s.ID); exists {
			r.logger.Warn("Duplicate shipment id on disk, keeping first",
				zap.String("shipment_id", s.ID),
				zap.String("file", s.StoredName()),
			)
			continue
		}
		r.Put(s)
		loaded++
		r.logger.Info("Shipment loaded", zap.String("shipment", s.String()))
	}
	return loaded, nil
}

// Put inserts or replaces a record without touching the store.
func (r *Registry) Put(s domain.Shipment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.records[s.ID]; ok {
		e.shipment = s
		return
	}
	r.records[s.ID] = &entry{shipment: s}
}

// Get returns the record of id.
func (r *Registry) Get(id string) (domain.Shipment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.records[id]
	if !ok {
		return domain.Shipment{}, false
	}
	return e.shipment, true
}

// All returns a snapshot of every record, newest first.
func (r *Registry) All() []domain.Shipment {
	r.mu.RLock()
	list := make([]domain.Shipment, 0, len(r.records))
	for _, e := range r.records {
		list = append(list, e.shipment)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Len returns the number of registered shipments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Create stores the content of src under a fresh tracking id and registers it.
// The record becomes visible only after the content is fully stored.
func (r *Registry) Create(ctx context.Context, filename string, src io.Reader) (domain.Shipment, error) {
	name, err := domain.SanitizeFilename(filename)
	if err != nil {
		return domain.Shipment{}, err
	}

	id, err := r.reserveID()
	if err != nil {
		return domain.Shipment{}, err
	}

	s := domain.NewShipment(id, name, r.now())
	if _, err := r.store.Write(ctx, s, src); err != nil {
		r.release(id)
		return domain.Shipment{}, fmt.Errorf("registry: %w", err)
	}

	r.mu.Lock()
	r.records[id] = &entry{shipment: s}
	delete(r.reserved, id)
	r.mu.Unlock()

	r.publish(ctx, s)
	return s, nil
}

// reserveID draws random ids until one is neither registered nor reserved.
func (r *Registry) reserveID() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records)+len(r.reserved) >= domain.IDSpace {
		return "", domain.ErrIDSpaceExhausted
	}

	for {
		id := domain.FormatID(r.intn(domain.IDSpace))
		if _, taken := r.records[id]; taken {
			continue
		}
		if _, taken := r.reserved[id]; taken {
			continue
		}
		r.reserved[id] = struct{}{}
		return id, nil
	}
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.reserved, id)
	r.mu.Unlock()
}

func (r *Registry) entry(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.records[id]
	return e, ok
}

// Open returns the record of id with a reader over its stored content.
func (r *Registry) Open(ctx context.Context, id string) (domain.Shipment, io.ReadCloser, error) {
	e, ok := r.entry(id)
	if !ok {
		return domain.Shipment{}, nil, fmt.Errorf("%w: %s", domain.ErrShipmentNotFound, id)
	}

	// Holding the entry lock keeps a concurrent rename from racing the open.
	e.mu.Lock()
	defer e.mu.Unlock()

	s, _ := r.Get(id)
	rc, err := r.store.Open(ctx, s)
	if err != nil {
		return s, nil, err
	}
	return s, rc, nil
}

// MarkDelivered moves id to ENTREGUE. The file is renamed before the record is
// updated. Calling it on a delivered shipment is a no-op.
func (r *Registry) MarkDelivered(ctx context.Context, id string) (domain.Shipment, error) {
	e, ok := r.entry(id)
	if !ok {
		return domain.Shipment{}, fmt.Errorf("%w: %s", domain.ErrShipmentNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current, _ := r.Get(id)
	if current.Status == domain.StatusDelivered {
		return current, nil
	}
	if !domain.CanTransition(current.Status, domain.StatusDelivered) {
		return current, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current.Status, domain.StatusDelivered)
	}

	if err := r.store.Transition(ctx, current, domain.StatusDelivered); err != nil {
		return current, fmt.Errorf("registry: %w", err)
	}

	r.mu.Lock()
	e.shipment.Status = domain.StatusDelivered
	updated := e.shipment
	r.mu.Unlock()

	r.publish(ctx, updated)
	return updated, nil
}

func (r *Registry) publish(ctx context.Context, s domain.Shipment) {
	if err := r.publisher.Publish(ctx, s); err != nil {
		r.logger.Warn("Failed to publish shipment status",
			zap.String("shipment_id", s.ID),
			zap.Error(err),
		)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Shipment) error { return nil }
