// Package collective provides the cross-process reduction the connection
// manager needs to agree on the delay window.
package collective

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/nvandessel/connectome/internal/connerr"
)

// Extrema is a min/max pair in simulation steps.
type Extrema struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Identity is the neutral element of Merge.
var Identity = Extrema{Min: math.MaxInt64, Max: math.MinInt64}

// Merge returns the componentwise min of Min and max of Max.
func (e Extrema) Merge(o Extrema) Extrema {
	return Extrema{Min: min(e.Min, o.Min), Max: max(e.Max, o.Max)}
}

// Communicator reduces values across cooperating processes.
type Communicator interface {
	NumProcesses() int
	Rank() int
	// AllReduce returns the merge of the values contributed by every process.
	// All processes must call it the same number of times.
	AllReduce(ctx context.Context, local Extrema) (Extrema, error)
}

// Local is the single-process communicator.
type Local struct{}

func (Local) NumProcesses() int { return 1 }
func (Local) Rank() int         { return 0 }

func (Local) AllReduce(ctx context.Context, local Extrema) (Extrema, error) {
	if err := ctx.Err(); err != nil {
		return Extrema{}, err
	}
	return local, nil
}

// Group joins n in-process members into one reduction domain. It stands in
// for a multi-process run within a single binary.
type Group struct {
	n int

	mu      sync.Mutex
	acc     Extrema
	arrived int
	waiters []chan Extrema
	broken  bool
}

// NewGroup returns a group of n members.
func NewGroup(n int) (*Group, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: group size %d", connerr.ErrConfig, n)
	}
	return &Group{n: n, acc: Identity}, nil
}

// Member returns the communicator for rank.
func (g *Group) Member(rank int) Communicator {
	if rank < 0 || rank >= g.n {
		panic(fmt.Sprintf("collective: rank %d out of range [0, %d)", rank, g.n))
	}
	return &member{g: g, rank: rank}
}

type member struct {
	g    *Group
	rank int
}

func (m *member) NumProcesses() int { return m.g.n }
func (m *member) Rank() int         { return m.rank }

func (m *member) AllReduce(ctx context.Context, local Extrema) (Extrema, error) {
	g := m.g
	ch := make(chan Extrema, 1)

	g.mu.Lock()
	if g.broken {
		g.mu.Unlock()
		return Extrema{}, fmt.Errorf("%w: collective group broken by an abandoned reduction", connerr.ErrInvalidState)
	}
	g.acc = g.acc.Merge(local)
	g.arrived++
	g.waiters = append(g.waiters, ch)
	if g.arrived == g.n {
		for _, w := range g.waiters {
			w <- g.acc
		}
		g.acc, g.arrived, g.waiters = Identity, 0, nil
	}
	g.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		g.mu.Lock()
		g.broken = true
		g.mu.Unlock()
		return Extrema{}, ctx.Err()
	}
}
