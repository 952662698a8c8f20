package deck

import "time"

// allocator issues collision-free identifiers consistent with the
// archive's existing scheme: millisecond timestamps. It is stateful so
// rapid allocation and clock skew still yield strictly increasing ids.
type allocator struct {
	last  int64
	taken map[int64]struct{}
}

func newAllocator() *allocator {
	return &allocator{taken: make(map[int64]struct{})}
}

// reserve marks an id already present in the loaded archive.
func (a *allocator) reserve(id int64) {
	a.taken[id] = struct{}{}
}

// next returns a fresh id: the current time in milliseconds, bumped past
// the last id issued this session and past any id the archive already
// contains.
func (a *allocator) next() int64 {
	id := time.Now().UnixMilli()
	if id <= a.last {
		id = a.last + 1
	}
	for {
		if _, used := a.taken[id]; !used {
			break
		}
		id++
	}
	a.last = id
	a.taken[id] = struct{}{}
	return id
}
