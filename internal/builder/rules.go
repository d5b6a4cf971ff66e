package builder

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/node"
)

type oneToOne struct{ *base }

func newOneToOne(s Spec) (Builder, error) {
	b, err := newBase(OneToOne, s)
	if err != nil {
		return nil, err
	}
	if len(s.Sources) != len(s.Targets) {
		return nil, fmt.Errorf("%w: one_to_one needs equally sized populations, got %d sources and %d targets",
			connerr.ErrDimensionMismatch, len(s.Sources), len(s.Targets))
	}
	return &oneToOne{b}, nil
}

func (r *oneToOne) Connect(ctx context.Context, w Worker) error {
	params := r.workerParams()
	for i, tgt := range r.targets {
		if err := cancelled(ctx, i); err != nil {
			return err
		}
		if !w.Owns(tgt) {
			continue
		}
		if err := r.connect(w, params, r.sources[i], tgt); err != nil {
			return err
		}
	}
	return nil
}

type allToAll struct{ *base }

func newAllToAll(s Spec) (Builder, error) {
	b, err := newBase(AllToAll, s)
	if err != nil {
		return nil, err
	}
	return &allToAll{b}, nil
}

func (r *allToAll) Connect(ctx context.Context, w Worker) error {
	params := r.workerParams()
	for i, tgt := range r.targets {
		if err := cancelled(ctx, i); err != nil {
			return err
		}
		if !w.Owns(tgt) {
			continue
		}
		for _, src := range r.sources {
			if err := r.connect(w, params, src, tgt); err != nil {
				return err
			}
		}
	}
	return nil
}

type fixedIndegree struct {
	*base
	indegree int
}

func newFixedIndegree(s Spec) (Builder, error) {
	b, err := newBase(FixedIndegree, s)
	if err != nil {
		return nil, err
	}
	n, err := requiredInt(s.Conn, FixedIndegree, KeyIndegree)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(s.Sources) == 0 {
		return nil, fmt.Errorf("%w: indegree %d with no sources", connerr.ErrBadProperty, n)
	}
	if !b.multapses && n > len(s.Sources) {
		return nil, fmt.Errorf("%w: indegree %d exceeds %d sources without multapses",
			connerr.ErrBadProperty, n, len(s.Sources))
	}
	return &fixedIndegree{base: b, indegree: n}, nil
}

func (r *fixedIndegree) Connect(ctx context.Context, w Worker) error {
	params := r.workerParams()
	rng := w.Rand()
	for i, tgt := range r.targets {
		if err := cancelled(ctx, i); err != nil {
			return err
		}
		if !w.Owns(tgt) {
			continue
		}
		picks, err := r.draw(rng, r.sources, tgt, r.indegree)
		if err != nil {
			return err
		}
		for _, src := range picks {
			if err := r.connect(w, params, src, tgt); err != nil {
				return err
			}
		}
	}
	return nil
}

type fixedOutdegree struct {
	*base
	outdegree int
}

func newFixedOutdegree(s Spec) (Builder, error) {
	b, err := newBase(FixedOutdegree, s)
	if err != nil {
		return nil, err
	}
	n, err := requiredInt(s.Conn, FixedOutdegree, KeyOutdegree)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(s.Targets) == 0 {
		return nil, fmt.Errorf("%w: outdegree %d with no targets", connerr.ErrBadProperty, n)
	}
	if !b.multapses && n > len(s.Targets) {
		return nil, fmt.Errorf("%w: outdegree %d exceeds %d targets without multapses",
			connerr.ErrBadProperty, n, len(s.Targets))
	}
	return &fixedOutdegree{base: b, outdegree: n}, nil
}

// Connect draws every source's targets from the global stream so that all
// workers agree on the full edge set, then keeps the owned ones.
func (r *fixedOutdegree) Connect(ctx context.Context, w Worker) error {
	params := r.workerParams()
	rng := w.GlobalRand()
	for i, src := range r.sources {
		if err := cancelled(ctx, i); err != nil {
			return err
		}
		picks, err := r.draw(rng, r.targets, src, r.outdegree)
		if err != nil {
			return err
		}
		for _, tgt := range picks {
			if !w.Owns(tgt) {
				continue
			}
			if err := r.connect(w, params, src, tgt); err != nil {
				return err
			}
		}
	}
	return nil
}

// draw picks n members of pool for partner self, honouring the autapse and
// multapse switches.
func (b *base) draw(rng *rand.Rand, pool []node.GID, self node.GID, n int) ([]node.GID, error) {
	if n == 0 {
		return nil, nil
	}
	avail := b.available(pool, self)
	if avail == 0 || (!b.multapses && n > avail) {
		return nil, fmt.Errorf("%w: cannot draw %d partners for node %d from %d candidates",
			connerr.ErrBadProperty, n, self, avail)
	}
	out := make([]node.GID, 0, n)
	var taken map[int]bool
	if !b.multapses {
		taken = make(map[int]bool, n)
	}
	for len(out) < n {
		idx := rng.IntN(len(pool))
		g := pool[idx]
		if !b.autapses && g == self {
			continue
		}
		if taken != nil {
			if taken[idx] {
				continue
			}
			taken[idx] = true
		}
		out = append(out, g)
	}
	return out, nil
}

type fixedTotalNumber struct {
	*base
	total int
}

func newFixedTotalNumber(s Spec) (Builder, error) {
	b, err := newBase(FixedTotalNumber, s)
	if err != nil {
		return nil, err
	}
	n, err := requiredInt(s.Conn, FixedTotalNumber, KeyN)
	if err != nil {
		return nil, err
	}
	r := &fixedTotalNumber{base: b, total: n}
	if avail := r.pairsAvailable(); n > 0 && (avail == 0 || (!b.multapses && n > avail)) {
		return nil, fmt.Errorf("%w: N %d exceeds %d admissible pairs", connerr.ErrBadProperty, n, avail)
	}
	return r, nil
}

func (r *fixedTotalNumber) pairsAvailable() int {
	total := len(r.sources) * len(r.targets)
	if r.autapses {
		return total
	}
	inTargets := make(map[node.GID]int, len(r.targets))
	for _, t := range r.targets {
		inTargets[t]++
	}
	for _, s := range r.sources {
		total -= inTargets[s]
	}
	return total
}

// Connect draws all pairs from the global stream; each worker keeps the
// pairs whose target it owns.
func (r *fixedTotalNumber) Connect(ctx context.Context, w Worker) error {
	params := r.workerParams()
	rng := w.GlobalRand()
	var taken map[[2]int]bool
	if !r.multapses {
		taken = make(map[[2]int]bool, r.total)
	}
	for made := 0; made < r.total; {
		if err := cancelled(ctx, made); err != nil {
			return err
		}
		si, ti := rng.IntN(len(r.sources)), rng.IntN(len(r.targets))
		src, tgt := r.sources[si], r.targets[ti]
		if !r.autapses && src == tgt {
			continue
		}
		if taken != nil {
			if taken[[2]int{si, ti}] {
				continue
			}
			taken[[2]int{si, ti}] = true
		}
		made++
		if !w.Owns(tgt) {
			continue
		}
		if err := r.connect(w, params, src, tgt); err != nil {
			return err
		}
	}
	return nil
}

type pairwiseBernoulli struct {
	*base
	p float64
}

func newPairwiseBernoulli(s Spec) (Builder, error) {
	b, err := newBase(PairwiseBernoulli, s)
	if err != nil {
		return nil, err
	}
	p, ok, err := s.Conn.Float(KeyP)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: rule %s requires %q", connerr.ErrBadProperty, PairwiseBernoulli, KeyP)
	}
	if p < 0 || p > 1 {
		return nil, fmt.Errorf("%w: connection probability %g outside [0, 1]", connerr.ErrBadProperty, p)
	}
	return &pairwiseBernoulli{base: b, p: p}, nil
}

func (r *pairwiseBernoulli) Connect(ctx context.Context, w Worker) error {
	params := r.workerParams()
	rng := w.Rand()
	for i, tgt := range r.targets {
		if err := cancelled(ctx, i); err != nil {
			return err
		}
		if !w.Owns(tgt) {
			continue
		}
		for _, src := range r.sources {
			if !r.autapses && src == tgt {
				continue
			}
			if rng.Float64() >= r.p {
				continue
			}
			if err := r.connect(w, params, src, tgt); err != nil {
				return err
			}
		}
	}
	return nil
}
