package ecss

import (
	"fmt"
	"sync"
)

// Registry tracks which component set each type token belongs to, enforcing
// spec.md §6's "a type may belong to at most one group" rule across
// [RegisterComponentSet] calls. The zero value is ready to use.
type Registry struct {
	mu    sync.Mutex
	owner map[int32]*Container
}

// RegisterComponentSet creates a new [Container] for the given members, all
// of which must be described with [Describe] and not already belong to
// another container registered on this Registry.
//
// ThreadSafe selects the container's concurrency variant: false builds one
// with no internal synchronization (see [pkg/ecss/sectors.NonThreadSafe]);
// true builds one safe for concurrent use, with [PinSector] and [PinBack] available
// (see [pkg/ecss/sectors.ThreadSafe]).
func (r *Registry) RegisterComponentSet(threadSafe bool, opts Options, members ...Member) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owner == nil {
		r.owner = make(map[int32]*Container)
	}

	for _, m := range members {
		if existing, ok := r.owner[m.token]; ok {
			return nil, fmt.Errorf("%w: token %d already in container %p", ErrDuplicateRegistration, m.token, existing)
		}
	}

	c, err := newContainer(threadSafe, opts, members)
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		r.owner[m.token] = c
	}

	return c, nil
}
