package domain

import "strings"

// EntityRef is an opaque reference to an external entity (owner, context or boundary).
// The engine compares and propagates references but never interprets them.
type EntityRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// NewEntityRef returns a reference, or nil when both parts are blank.
func NewEntityRef(kind, id string) *EntityRef {
	if strings.TrimSpace(kind) == "" && strings.TrimSpace(id) == "" {
		return nil
	}
	return &EntityRef{Kind: kind, ID: id}
}

// Equal reports whether two references point to the same entity. Two nil references are equal.
func (r *EntityRef) Equal(other *EntityRef) bool {
	if r == nil || other == nil {
		return r == nil && other == nil
	}
	return r.Kind == other.Kind && r.ID == other.ID
}

// Clone returns a copy of the reference.
func (r *EntityRef) Clone() *EntityRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// String renders the reference as kind:id.
func (r *EntityRef) String() string {
	if r == nil {
		return ""
	}
	return r.Kind + ":" + r.ID
}
