package synapse

import "fmt"

// Connector is a growable sequence of records of exactly one synapse type.
// Positions are local connection ids (lcid).
type Connector interface {
	SynID() SynID
	Len() int
	// Push appends c and returns its lcid. c must come from the model the
	// connector was created by.
	Push(c Connection) int
	// At returns the record at lcid. The result aliases connector storage and
	// is valid until the next Push.
	At(lcid int) Connection
	// Permute reorders records so that position i holds the old perm[i].
	Permute(perm []int)
}

// Homogeneous stores records of type T by value.
type Homogeneous[T any, P interface {
	*T
	Connection
}] struct {
	id    SynID
	items []T
}

func (h *Homogeneous[T, P]) SynID() SynID { return h.id }
func (h *Homogeneous[T, P]) Len() int     { return len(h.items) }

func (h *Homogeneous[T, P]) Push(c Connection) int {
	p, ok := c.(P)
	if !ok {
		panic(fmt.Sprintf("synapse: record %T pushed into connector for type %d", c, h.id))
	}
	h.items = append(h.items, *p)
	return len(h.items) - 1
}

func (h *Homogeneous[T, P]) At(lcid int) Connection {
	return P(&h.items[lcid])
}

func (h *Homogeneous[T, P]) Permute(perm []int) {
	if len(perm) != len(h.items) {
		panic(fmt.Sprintf("synapse: permutation of length %d for %d records", len(perm), len(h.items)))
	}
	next := make([]T, len(h.items))
	for i, j := range perm {
		next[i] = h.items[j]
	}
	h.items = next
}
