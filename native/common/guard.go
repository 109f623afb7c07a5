package common

import (
	"errors"

	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("common: unauthorized capability")

// Capability is an unforgeable admin token minted once at initialisation.
// Mutating configuration calls require the holder to present it explicitly;
// there is no ambient admin identity anywhere in the core.
type Capability struct {
	id uuid.UUID
}

// NewCapability mints a fresh capability token.
func NewCapability() Capability {
	return Capability{id: uuid.New()}
}

// Zero reports whether the capability was never minted.
func (c Capability) Zero() bool {
	return c.id == uuid.Nil
}

// String renders the token identity for audit logs.
func (c Capability) String() string {
	return c.id.String()
}

// Guard verifies that the presented capability matches the required one. A
// zero required capability always denies so that an uninitialised component
// cannot be administered.
func Guard(required, presented Capability) error {
	if required.Zero() || required.id != presented.id {
		return ErrUnauthorized
	}
	return nil
}
