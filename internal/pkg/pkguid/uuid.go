package pkguid

import "github.com/google/uuid"

// UUID generates time-ordered RFC 9562 (v7) UUID strings.
type UUID struct {
	prefix string
}

// NewUUID returns a UUID generator.
func NewUUID() *UUID {
	return &UUID{}
}

// NewPrefixedUUID returns a generator whose ids read "<prefix>_<uuid>".
func NewPrefixedUUID(prefix string) *UUID {
	return &UUID{prefix: prefix}
}

// Generate returns a new UUID string.
func (u *UUID) Generate() string {
	id := uuid.Must(uuid.NewV7()).String()
	if u.prefix == "" {
		return id
	}
	return u.prefix + "_" + id
}
