package ecss

import "errors"

// Sentinel errors returned by this package's operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, ecss.ErrDuplicateRegistration) {
//	    // a type was grouped into two different component sets
//	}
var (
	// ErrDuplicateRegistration is returned by [RegisterComponentSet] when a
	// type token already belongs to a different component set.
	//
	// Fatal at registration time: a type's component set is meant to be
	// fixed once, typically at program startup.
	ErrDuplicateRegistration = errors.New("ecss: type already registered to a different component set")

	// ErrUnsupportedType describes a type to be stored inline in sector
	// storage that contains Go pointers (slice, map, string, etc.) but no
	// [layout.FuncTable] to manage them. No operation of this package
	// returns it: [Describe] panics with an invariant violation for such a
	// type.
	//
	// Sector payloads live in chunk arenas the garbage collector does not
	// scan; a type with GC-managed fields stored there by raw byte copy
	// would let the collector reclaim what it points to. Supply a FuncTable
	// whose Move/Copy/Destroy handle those fields through ordinary Go
	// assignment, or use a pointer-free type.
	ErrUnsupportedType = errors.New("ecss: type contains pointers and has no move/copy/destroy functions")

	// ErrNotThreadSafe is returned by operations that only apply to a
	// container registered with threadSafe=true (pinning, async erase):
	// [PinSector], [PinBack], [Container.EraseAsync], [Container.ProcessPendingErases].
	ErrNotThreadSafe = errors.New("ecss: operation requires a thread-safe container")
)
