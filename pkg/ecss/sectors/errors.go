package sectors

import "errors"

// Sentinel errors returned by this package.
var (
	// ErrNilLayout is returned by the constructors when given a nil layout.
	ErrNilLayout = errors.New("sectors: nil layout meta")

	// ErrStorage wraps a chunk-allocator failure during a structural
	// mutation (allocation failure is fatal per spec.md §4.5's failure
	// semantics: "memory-allocation failure is fatal").
	ErrStorage = errors.New("sectors: storage operation failed")
)
