// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// DuplicateVariantError reports an attempt to create an entity from a raw
// string that already resolves to a different entity of the same type. This
// is a resolution-logic bug, not a recoverable condition. Per
// prd001-entity-store R2.4.
type DuplicateVariantError struct {
	Raw        string
	Type       EntityType
	ExistingID string
}

func (e *DuplicateVariantError) Error() string {
	return fmt.Sprintf("variant %q already maps to %s entity %s", e.Raw, e.Type, e.ExistingID)
}

// UnknownEntityError reports an operation against an entity id that is not
// in the store. Per prd001-entity-store R3.3.
type UnknownEntityError struct {
	ID string
	Op string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("%s: unknown entity %s", e.Op, e.ID)
}

// CapabilityUnavailableError reports that an external capability (text
// generation, embedding, confirmation) is down, unauthorized, or out of
// quota. Callers recover locally by falling back to raw input or parking the
// dependent step; it is never fatal to a batch. Per prd004-capabilities R3.1.
type CapabilityUnavailableError struct {
	Capability string
	Err        error
}

func (e *CapabilityUnavailableError) Error() string {
	return fmt.Sprintf("%s capability unavailable: %v", e.Capability, e.Err)
}

func (e *CapabilityUnavailableError) Unwrap() error { return e.Err }
