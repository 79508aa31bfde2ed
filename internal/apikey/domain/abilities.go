package domain

import (
	"encoding/json"
	"sort"
)

// Abilities is a set of capability strings with an explicit grants-all flag.
// The zero value grants nothing.
type Abilities struct {
	all bool
	set map[string]struct{}
}

// NewAbilities builds an ability set. The wildcard ability anywhere in the list
// produces a grants-all set.
func NewAbilities(abilities ...string) Abilities {
	a := Abilities{set: make(map[string]struct{}, len(abilities))}
	for _, ability := range abilities {
		if ability == "" {
			continue
		}
		if ability == WildcardAbility {
			return AllAbilities()
		}
		a.set[ability] = struct{}{}
	}
	return a
}

// AllAbilities returns a grants-all set.
func AllAbilities() Abilities {
	return Abilities{all: true}
}

// GrantsAll reports whether the set is the wildcard set.
func (a Abilities) GrantsAll() bool {
	return a.all
}

// Can reports whether ability is granted.
func (a Abilities) Can(ability string) bool {
	if a.all {
		return true
	}
	_, ok := a.set[ability]
	return ok
}

// Len returns the number of explicit abilities. A grants-all set has length 0.
func (a Abilities) Len() int {
	return len(a.set)
}

// IsEmpty reports whether the set grants nothing.
func (a Abilities) IsEmpty() bool {
	return !a.all && len(a.set) == 0
}

// List returns the abilities sorted, or the wildcard alone for a grants-all set.
func (a Abilities) List() []string {
	if a.all {
		return []string{WildcardAbility}
	}
	list := make([]string, 0, len(a.set))
	for ability := range a.set {
		list = append(list, ability)
	}
	sort.Strings(list)
	return list
}

// Equal reports whether both sets grant exactly the same abilities.
func (a Abilities) Equal(other Abilities) bool {
	if a.all || other.all {
		return a.all == other.all
	}
	if len(a.set) != len(other.set) {
		return false
	}
	for ability := range a.set {
		if _, ok := other.set[ability]; !ok {
			return false
		}
	}
	return true
}

// IsSubset reports whether every ability in child is granted by parent.
// A grants-all parent accepts any child; a grants-all child needs a grants-all parent.
func IsSubset(child, parent Abilities) bool {
	if parent.all {
		return true
	}
	if child.all {
		return false
	}
	for ability := range child.set {
		if _, ok := parent.set[ability]; !ok {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted JSON array.
func (a Abilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.List())
}

// UnmarshalJSON decodes a JSON array of abilities.
func (a *Abilities) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*a = NewAbilities(list...)
	return nil
}
