package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a shipment. It is also encoded in the stored file name.
type Status string

const (
	// StatusSent marks a shipment uploaded but never retrieved.
	StatusSent Status = "ENVIADA"
	// StatusDelivered marks a shipment retrieved at least once.
	StatusDelivered Status = "ENTREGUE"
)

// IDDigits is the width of a tracking identifier.
const IDDigits = 4

// IDSpace is the number of distinct tracking identifiers.
const IDSpace = 10000

var (
	// ErrShipmentNotFound is returned when no shipment has the requested id.
	ErrShipmentNotFound = errors.New("shipment not found")
	// ErrFileMissing is returned when a shipment is registered but its file is gone.
	ErrFileMissing = errors.New("shipment file missing")
	// ErrIDSpaceExhausted is returned when every tracking id is taken.
	ErrIDSpaceExhausted = errors.New("tracking id space exhausted")
	// ErrInvalidFilename is returned for names that cannot be stored.
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrInvalidTransition is returned for status changes other than ENVIADA to ENTREGUE.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusSent || s == StatusDelivered
}

// CanTransition reports whether a shipment may move from one status to another.
func CanTransition(from, to Status) bool {
	return from == StatusSent && to == StatusDelivered
}

// Shipment is one uploaded file and its tracking state.
type Shipment struct {
	// ID is the 4-digit tracking identifier.
	ID string `json:"id"`
	// Filename is the name supplied by the uploading client.
	Filename string `json:"filename"`
	// CreatedAt is the upload time, or the file's modification time for recovered shipments.
	CreatedAt time.Time `json:"created_at"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
}

// NewShipment creates a freshly uploaded shipment.
func NewShipment(id, filename string, now time.Time) Shipment {
	return Shipment{
		ID:        id,
		Filename:  filename,
		CreatedAt: now,
		Status:    StatusSent,
	}
}

// FormatID renders n as a zero-padded tracking identifier.
func FormatID(n int) string {
	return fmt.Sprintf("%0*d", IDDigits, n)
}

// ValidID reports whether id looks like a tracking identifier.
func ValidID(id string) bool {
	if len(id) != IDDigits {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders the shipment as "id: filename (status)".
func (s Shipment) String() string {
	return fmt.Sprintf("%s: %s (%s)", s.ID, s.Filename, s.Status)
}

// StoredName is the file name that persists this shipment.
func (s Shipment) StoredName() string {
	return StoredName(s.ID, s.Filename, s.Status)
}
