// Package ecss is an in-process entity-component-system storage core: no
// CLI, no files, no sockets. Component values for a set of types live
// packed together in cache-friendly "sectors", addressed by entity id.
//
// # Basic Usage
//
//	var reg ecss.Registry
//
//	type Position struct{ X, Y float64 }
//	type Velocity struct{ X, Y float64 }
//
//	c, err := reg.RegisterComponentSet(false, ecss.Options{},
//	    ecss.Describe[Position](),
//	    ecss.Describe[Velocity](),
//	)
//	if err != nil {
//	    // handle ErrDuplicateRegistration
//	}
//
//	ecss.Add(c, 1, Position{X: 1})
//	ecss.Add(c, 1, Velocity{X: 2})
//
//	pos, ok := ecss.Get[Position](c, 1)
//
//	v := ecss.NewView[Position](c, []ecss.ExtraMember{ecss.Extra[Velocity](c, true)}, nil)
//	for row := range v.All() {
//	    row.Main().X += ecss.As[Velocity](row.Extra(0)).X
//	}
//
// # Concurrency
//
// A container built with threadSafe=false has no internal synchronization;
// callers must serialize their own access. One built with threadSafe=true
// is safe for concurrent structural mutation and offers [PinSector]/
// [PinBack]: a pin holds a byte slice into a sector's payload stable,
// readable without any lock, for as long as it's held — the container
// simply never relocates a pinned sector.
//
// # Component Types
//
// Types passed to [Describe] that contain no Go pointers (no slice, map,
// string, channel, function, interface, or unsafe.Pointer field,
// recursively) need no further configuration. Types that do must supply a
// [pkg/ecss/layout.FuncTable] — sector storage lives in chunk arenas the
// garbage collector does not scan for inner pointers, so such a type's
// Move/Copy/Destroy must rewrite those fields through ordinary Go
// assignment rather than letting the container raw-copy them. See
// [ErrUnsupportedType].
//
// # Error Handling
//
// Absence (no sector, or a member not alive) is always an optional return,
// never an error: [Get], [Has] and removal report it directly. Allocation
// failures propagate as errors with strong guarantees for insert/reserve
// and basic guarantees for bulk erase. Registering the same type into two
// different component sets ([ErrDuplicateRegistration]), and internal
// consistency failures surfaced via [pkg/ecss/internal/invariant.Violation]
// panics, are both programming errors rather than conditions a caller is
// expected to recover from.
package ecss
