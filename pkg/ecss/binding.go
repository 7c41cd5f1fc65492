package ecss

import (
	"reflect"
	"unsafe"

	"github.com/calvinalkan/ecss/pkg/ecss/internal/invariant"
	"github.com/calvinalkan/ecss/pkg/ecss/layout"
)

// Member describes one component type to [RegisterComponentSet]. Build one
// with [Describe]; the zero value is not usable.
type Member struct {
	token int32
	raw   layout.Member
}

// Describe binds Go type T to a component type for use with
// [RegisterComponentSet]. The type token is assigned by [layout.TokenOf] on
// first use and is stable only for the process's lifetime.
//
// If T contains no Go pointers (no slice, map, string, channel, function,
// interface, or unsafe.Pointer field, recursively), funcs may be omitted: the
// container manipulates values of T with plain byte copies. Otherwise funcs
// must fully implement Move/Copy/Destroy, since sector storage lives outside
// what the garbage collector scans for inner pointers — see
// [ErrUnsupportedType].
func Describe[T any](funcs ...layout.FuncTable) Member {
	var zero T

	t := reflect.TypeOf(zero)

	var ft layout.FuncTable
	if len(funcs) > 0 {
		ft = funcs[0]
	}

	trivial := ft.Move == nil && ft.Copy == nil && ft.Destroy == nil

	if trivial && containsPointers(t) {
		invariant.Check(false, "ecss: "+t.String()+" contains pointers and no move/copy/destroy functions were supplied")
	}

	token := layout.TokenOf[T]()

	return Member{
		token: token,
		raw: layout.Member{
			Token:   token,
			Size:    uint32(unsafe.Sizeof(zero)),
			Align:   uint32(t.Align()),
			Trivial: trivial,
			Funcs:   ft,
		},
	}
}

// containsPointers reports whether t (recursively, through structs and
// arrays) contains any Go pointer-bearing kind.
func containsPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.String, reflect.Map,
		reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return containsPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if containsPointers(t.Field(i).Type) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// valueAt reinterprets buf's first unsafe.Sizeof(T) bytes as *T. buf must be
// at least that long and correctly aligned, which the layout package
// guarantees by construction (each member starts at a multiple of its own
// alignment within the sector).
func valueAt[T any](buf []byte) *T {
	return (*T)(unsafe.Pointer(unsafe.SliceData(buf)))
}
