package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListing_String(t *testing.T) {
	l := Listing{
		ID:        "0007",
		Filename:  "report.pdf",
		Status:    "ENVIADA",
		Timestamp: time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC),
	}
	assert.Equal(t, "0007 | report.pdf                     | ENVIADA    | 2024-12-31 23:59:58", l.String())
}

func TestParseListing(t *testing.T) {
	want := Listing{
		ID:        "0042",
		Filename:  "my notes.txt",
		Status:    "ENTREGUE",
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local),
	}

	got, err := ParseListing(want.String() + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Filename, got.Filename)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))

	long := Listing{ID: "0001", Filename: "a-very-long-filename-that-exceeds-thirty.bin", Status: "ENVIADA", Timestamp: want.Timestamp}
	got, err = ParseListing(long.String())
	require.NoError(t, err)
	assert.Equal(t, long.Filename, got.Filename)
}

func TestParseListing_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		EmptyListing,
		"0001 | a.txt | ENVIADA",
		"0001 | a.txt | ENVIADA | yesterday",
		" | a.txt | ENVIADA | 2024-03-01 10:00:00",
	} {
		_, err := ParseListing(line)
		assert.ErrorIs(t, err, ErrMalformedListing, line)
	}
}
