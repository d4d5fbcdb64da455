package wire

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ListingTimeLayout is the timestamp layout of LIST lines.
	ListingTimeLayout = "2006-01-02 15:04:05"
	// EmptyListing is the only line sent by LIST when there are no records.
	EmptyListing = "Nenhuma encomenda registrada."
)

// ErrMalformedListing is returned for a LIST line that is not four fields.
var ErrMalformedListing = errors.New("malformed listing line")

// Listing is one line of the LIST data channel.
type Listing struct {
	ID        string
	Filename  string
	Status    string
	Timestamp time.Time
}

// String renders l as "id | filename | status | timestamp" with padded columns.
func (l Listing) String() string {
	return fmt.Sprintf("%s | %-30s | %-10s | %s", l.ID, l.Filename, l.Status, l.Timestamp.Format(ListingTimeLayout))
}

// ParseListing reads one LIST line. Timestamps are read in the local time zone.
// Filenames containing " | " cannot be told apart from the separator and fail.
func ParseListing(line string) (Listing, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), " | ")
	if len(fields) != 4 {
		return Listing{}, fmt.Errorf("%w: %q", ErrMalformedListing, line)
	}

	ts, err := time.ParseInLocation(ListingTimeLayout, strings.TrimSpace(fields[3]), time.Local)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %q: %v", ErrMalformedListing, line, err)
	}

	l := Listing{
		ID:        strings.TrimSpace(fields[0]),
		Filename:  strings.TrimRight(fields[1], " "),
		Status:    strings.TrimSpace(fields[2]),
		Timestamp: ts,
	}
	if l.ID == "" || l.Status == "" {
		return Listing{}, fmt.Errorf("%w: %q", ErrMalformedListing, line)
	}
	return l, nil
}
