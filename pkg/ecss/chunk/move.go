package chunk

// MoveFunc moves (or copies) one sector's payload from src to dst. Used
// for non-trivial layouts where a raw byte copy would skip necessary
// per-member move/copy semantics (see pkg/ecss/layout).
type MoveFunc func(dst, src []byte)

// MoveSectors relocates n sectors from linear index src to linear index
// dst, which may overlap.
//
// For trivial layouts (moveFn nil) this is a byte-level memmove, computed
// in chunk-boundary-respecting runs so no single operation crosses a chunk
// edge. For non-trivial layouts, moveFn is invoked once per sector, in
// forward order when dst < src and reverse order when dst > src — the same
// direction rule memmove uses internally, required here because moveFn may
// leave src in a shallow/unspecified state (destructive move), so a sector
// must never be read after an earlier step has already clobbered it.
func (a *Allocator) MoveSectors(dst, src, n uint32, moveFn MoveFunc) error {
	if n == 0 || dst == src {
		return nil
	}

	if moveFn != nil {
		return a.moveSectorsOneByOne(dst, src, n, moveFn)
	}

	return a.moveSectorsTrivial(dst, src, n)
}

// moveSectorsOneByOne invokes moveFn sector-by-sector in the direction that
// never reads a slot after it has already been overwritten.
func (a *Allocator) moveSectorsOneByOne(dst, src, n uint32, moveFn MoveFunc) error {
	if dst < src {
		for i := uint32(0); i < n; i++ {
			s, err := a.At(src + i)
			if err != nil {
				return err
			}

			d, err := a.At(dst + i)
			if err != nil {
				return err
			}

			moveFn(d, s)
		}

		return nil
	}

	for i := n; i > 0; i-- {
		s, err := a.At(src + i - 1)
		if err != nil {
			return err
		}

		d, err := a.At(dst + i - 1)
		if err != nil {
			return err
		}

		moveFn(d, s)
	}

	return nil
}

// moveSectorsTrivial performs a chunk-boundary-respecting byte memmove.
func (a *Allocator) moveSectorsTrivial(dst, src, n uint32) error {
	if dst < src {
		return a.copyRunsForward(dst, src, n)
	}

	return a.copyRunsBackward(dst, src, n)
}

func (a *Allocator) copyRunsForward(dst, src, n uint32) error {
	var done uint32

	for done < n {
		remaining := n - done
		run := a.clampRun(src+done, dst+done, remaining)

		err := a.copyRun(dst+done, src+done, run)
		if err != nil {
			return err
		}

		done += run
	}

	return nil
}

func (a *Allocator) copyRunsBackward(dst, src, n uint32) error {
	var done uint32

	for done < n {
		remaining := n - done
		end := n - done

		// Walk backward: find the largest run ending at `end` that fits
		// within one chunk on both the src and dst side.
		run := a.clampRunBackward(src+end, dst+end, remaining)

		err := a.copyRun(dst+end-run, src+end-run, run)
		if err != nil {
			return err
		}

		done += run
	}

	return nil
}

// clampRun returns how many consecutive sectors starting at src (and the
// correspondingly positioned dst) can be copied in one run without
// crossing either side's chunk boundary, capped at want.
func (a *Allocator) clampRun(src, dst, want uint32) uint32 {
	srcRoom := a.capacity - (src & a.mask)
	dstRoom := a.capacity - (dst & a.mask)

	run := want
	if srcRoom < run {
		run = srcRoom
	}

	if dstRoom < run {
		run = dstRoom
	}

	return run
}

// clampRunBackward is the mirror of clampRun for a run ending at
// (exclusive) src/dst, walking backward from the chunk boundary.
func (a *Allocator) clampRunBackward(srcEnd, dstEnd, want uint32) uint32 {
	srcRoom := ((srcEnd - 1) & a.mask) + 1
	dstRoom := ((dstEnd - 1) & a.mask) + 1

	run := want
	if srcRoom < run {
		run = srcRoom
	}

	if dstRoom < run {
		run = dstRoom
	}

	return run
}

// copyRun copies `run` consecutive sectors, a contiguous byte range on both
// sides since clampRun/clampRunBackward guarantee neither side crosses a
// chunk boundary.
func (a *Allocator) copyRun(dst, src, run uint32) error {
	if run == 0 {
		return nil
	}

	srcChunk, srcSlot := a.chunkIndex(src)
	dstChunk, dstSlot := a.chunkIndex(dst)

	srcStart := srcSlot * a.stride
	dstStart := dstSlot * a.stride
	length := run * a.stride

	if int(srcChunk) >= len(a.chunks) || int(dstChunk) >= len(a.chunks) {
		return ErrIndexOutOfRange
	}

	copy(a.chunks[dstChunk][dstStart:dstStart+length], a.chunks[srcChunk][srcStart:srcStart+length])

	return nil
}
