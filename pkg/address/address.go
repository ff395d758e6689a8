// Package address defines the opaque, totally ordered node identifier used
// throughout the scheduling core to name fathers, children and requesters.
package address

import (
	"encoding/json"
	"fmt"
)

// Address identifies a node in the aggregation tree. The zero value is Null,
// meaning "no such neighbour" (spec.md §3).
type Address struct {
	id uint64
}

// Null is the distinguished address meaning "no such neighbour".
var Null = Address{}

// New wraps a raw numeric identifier as an Address. Callers that need
// globally unique addresses should derive id from a UUID or similar; New
// itself performs no uniqueness check.
func New(id uint64) Address {
	return Address{id: id}
}

// IsNull reports whether a is the distinguished null address.
func (a Address) IsNull() bool {
	return a.id == 0
}

// Less defines the total order over addresses required by spec.md §3.
func (a Address) Less(other Address) bool {
	return a.id < other.id
}

// Equal reports whether two addresses name the same node.
func (a Address) Equal(other Address) bool {
	return a.id == other.id
}

// Compare returns -1, 0 or 1 following the usual comparator convention.
func (a Address) Compare(other Address) int {
	switch {
	case a.id < other.id:
		return -1
	case a.id > other.id:
		return 1
	default:
		return 0
	}
}

// Uint64 exposes the raw identifier, mainly for hashing and wire encoding.
func (a Address) Uint64() uint64 {
	return a.id
}

// String implements fmt.Stringer.
func (a Address) String() string {
	if a.IsNull() {
		return "<null>"
	}
	return fmt.Sprintf("node:%d", a.id)
}

// MarshalJSON encodes the raw identifier as a JSON number, since id is
// unexported and would otherwise marshal as an empty object; needed
// wherever an Address crosses the transport boundary (spec.md §6).
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.id)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Address) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &a.id)
}
