package registry

import "github.com/google/uuid"

// UUIDMinter mints player identities as random (v4) UUIDs rendered as text,
// matching the "128-bit random rendered as text" identity scheme.
type UUIDMinter struct{}

// New returns a freshly generated UUID string.
func (UUIDMinter) New() string {
	return uuid.NewString()
}
