package domain

import (
	"sort"
	"strings"
)

// Canonical identity snapshot field keys. Callers may supply additional keys;
// these are the ones the base goals and conflict checks care about.
const (
	FieldFullName  = "full_name"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldCity      = "city"
	FieldState     = "state"
	FieldSituation = "situation"
	FieldAdverse   = "adverse_party"
)

// IdentitySnapshot holds the contact and situation fields gathered so far.
// Fields accumulate incrementally; a populated field is never cleared.
type IdentitySnapshot map[string]string

// Merge folds incoming fields into the snapshot and returns the keys that
// were newly populated. Empty incoming values and already-populated fields
// are ignored, so the snapshot only ever grows.
func (s IdentitySnapshot) Merge(incoming map[string]string) []string {
	var added []string
	for key, value := range incoming {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if _, exists := s[key]; exists {
			continue
		}
		s[key] = value
		added = append(added, key)
	}
	sort.Strings(added)
	return added
}

// Clone returns an independent copy of the snapshot.
func (s IdentitySnapshot) Clone() IdentitySnapshot {
	cloned := make(IdentitySnapshot, len(s))
	for key, value := range s {
		cloned[key] = value
	}
	return cloned
}

// Fields returns the populated field keys in sorted order.
func (s IdentitySnapshot) Fields() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
