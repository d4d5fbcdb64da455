package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"correio-ftp/internal/core/logger"
	"correio-ftp/internal/features/shipments/domain"

	"go.uber.org/zap"
)

// DiskStore implements ports.ShipmentStore on a directory where every shipment is
// one file named {id}_{base}_{status}{ext}.
type DiskStore struct {
	dir    string
	logger *zap.Logger
}

// NewDiskStore creates the storage directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
	}
	return &DiskStore{
		dir:    dir,
		logger: logger.Named("store"),
	}, nil
}

// Dir returns the storage directory.
func (d *DiskStore) Dir() string {
	return d.dir
}

func (d *DiskStore) path(s domain.Shipment) string {
	return filepath.Join(d.dir, s.StoredName())
}

// Scan parses every regular file of the storage directory. Files that do not
// follow the naming convention are skipped. CreatedAt is the file's mtime.
func (d *DiskStore) Scan(ctx context.Context) ([]domain.Shipment, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage dir: %w", err)
	}

	shipments := make([]domain.Shipment, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}

		s, ok := domain.ParseStoredName(entry.Name())
		if !ok {
			d.logger.Debug("Skipping non-shipment file", zap.String("file", entry.Name()))
			continue
		}

		info, err := entry.Info()
		if err != nil {
			d.logger.Warn("Failed to stat shipment file",
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		s.CreatedAt = info.ModTime()
		shipments = append(shipments, s)
	}
	return shipments, nil
}

// Write copies r into a temporary file and renames it into place once complete.
func (d *DiskStore) Write(ctx context.Context, s domain.Shipment, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to write shipment %s: %w", s.ID, err)
	}

	if err := os.Rename(tmpName, d.path(s)); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to store shipment %s: %w", s.ID, err)
	}
	return n, nil
}

// Open returns the stored content of s.
func (d *DiskStore) Open(ctx context.Context, s domain.Shipment) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.path(s))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileMissing, s.StoredName())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open shipment %s: %w", s.ID, err)
	}
	return f, nil
}

// Transition renames the file of s so its name encodes to.
func (d *DiskStore) Transition(ctx context.Context, s domain.Shipment, to domain.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := s
	next.Status = to

	err := os.Rename(d.path(s), d.path(next))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrFileMissing, s.StoredName())
	}
	if err != nil {
		return fmt.Errorf("failed to rename shipment %s: %w", s.ID, err)
	}
	return nil
}

// contextReader stops a copy once its context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
