package sectors_test

import (
	"testing"

	"github.com/calvinalkan/ecss/pkg/ecss/internal/testutil"
	"github.com/calvinalkan/ecss/pkg/ecss/sectors"
)

// FuzzNonThreadSafe_ModelVsReal checks *NonThreadSafe against an in-memory
// oracle ([testutil.Model]) across arbitrary sequences of insert/remove/
// removeEntity/defragment/clear, decoded from the fuzz input one opcode at
// a time.
func FuzzNonThreadSafe_ModelVsReal(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x01, 0x00, 1, 2, 3, 4, 5, 6, 7, 8})
	f.Add([]byte{
		0x00, 0x05, 0x00, 1, 2, 3, 4, 5, 6, 7, 8, // insert(id=5, pos)
		0x00, 0x05, 0x01, 8, 7, 6, 5, 4, 3, 2, 1, // insert(id=5, vel)
		0x03, // defragment
		0x01, 0x05, 0x00, // remove(id=5, pos)
		0x02, 0x05, // removeEntity(id=5)
	})

	f.Fuzz(func(t *testing.T, in []byte) {
		meta := trivialLayout(t)

		c, err := sectors.NewNonThreadSafe(meta, sectors.Options{DefragThreshold: 0.01})
		if err != nil {
			t.Fatalf("NewNonThreadSafe: %v", err)
		}

		model := testutil.NewModel()

		r := byteReader{buf: in}

		for !r.empty() {
			op := r.u8() % 5

			switch op {
			case 0: // insert
				id := uint32(r.u8())
				token := int32(r.u8() % 2)
				value := r.bytes(8)

				_, err := c.Insert(id, token, func(dst []byte) { copy(dst, value) })
				if err != nil {
					t.Fatalf("Insert: %v", err)
				}

				model.Insert(id, token, value)
			case 1: // remove
				id := uint32(r.u8())
				token := int32(r.u8() % 2)

				got := c.Remove(id, token)
				want := model.Remove(id, token)

				if got != want {
					t.Fatalf("Remove(%d,%d): real=%v model=%v", id, token, got, want)
				}
			case 2: // removeEntity
				id := uint32(r.u8())

				got := c.RemoveEntity(id)
				want := model.RemoveEntity(id)

				if got != want {
					t.Fatalf("RemoveEntity(%d): real=%v model=%v", id, got, want)
				}
			case 3: // defragment
				if err := c.Defragment(); err != nil {
					t.Fatalf("Defragment: %v", err)
				}
			case 4: // clear
				if err := c.Clear(); err != nil {
					t.Fatalf("Clear: %v", err)
				}

				model.Clear()
			}

			if diff := testutil.Diff(model, c, []int32{0, 1}); diff != "" {
				t.Fatalf("model/real diverged after op %d: %s", op, diff)
			}
		}
	})
}

// byteReader pulls fixed-size fields out of a fuzz input without ever
// panicking on a short read, so arbitrary fuzzer-generated inputs are
// always valid (just truncated to fewer operations).
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) empty() bool {
	return r.pos >= len(r.buf)
}

func (r *byteReader) u8() byte {
	if r.pos >= len(r.buf) {
		return 0
	}

	b := r.buf[r.pos]
	r.pos++

	return b
}

func (r *byteReader) bytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = r.u8()
	}

	return out
}
