package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// splitExt separates the extension from name. A leading dot is part of the base,
// so ".profile" has no extension.
func splitExt(name string) (base, ext string) {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return name, ""
	}
	return name[:dot], name[dot:]
}

// StoredName encodes a shipment as "{id}_{base}_{status}{ext}".
func StoredName(id, filename string, status Status) string {
	base, ext := splitExt(filename)
	return fmt.Sprintf("%s_%s_%s%s", id, base, status, ext)
}

// ParseStoredName rebuilds a shipment from a stored file name. The second result is
// false for names that are not shipment files: fewer than three underscore
// separated segments, an unknown status, or a malformed id. CreatedAt is left zero.
//
// The extension normally starts at the last dot. Names of dot files such as
// "0001_.profile_ENVIADA" have their last dot inside the base, so the status
// segment is tried as "STATUS[.ext]" when the first reading fails.
func ParseStoredName(name string) (Shipment, bool) {
	if s, ok := parseParts(splitExt(name)); ok {
		return s, true
	}

	cut := strings.LastIndex(name, "_")
	if cut < 0 {
		return Shipment{}, false
	}
	tail := name[cut+1:]
	status, ext := tail, ""
	if dot := strings.Index(tail, "."); dot >= 0 {
		status, ext = tail[:dot], tail[dot:]
	}
	return parseParts(name[:cut+1]+status, ext)
}

func parseParts(base, ext string) (Shipment, bool) {
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return Shipment{}, false
	}

	id := parts[0]
	status := Status(parts[len(parts)-1])
	if !ValidID(id) || !status.Valid() {
		return Shipment{}, false
	}

	return Shipment{
		ID:       id,
		Filename: strings.Join(parts[1:len(parts)-1], "_") + ext,
		Status:   status,
	}, true
}

// SanitizeFilename reduces a client-supplied name to a bare file name.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	clean := filepath.Base(filepath.Clean("/" + name))
	if clean == "" || clean == "/" || clean == "." || clean == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return clean, nil
}
