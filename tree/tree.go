// Package tree provides an ordered index keyed by unsigned integers.
//
// Entries are never dropped until they are deleted explicitly or the index
// is cleared, so an Index can own the records it stores for the lifetime of
// whatever holds it.
package tree

import (
	"math"

	"github.com/go-faster/errors"
	"github.com/google/btree"
	"golang.org/x/exp/constraints"
)

// ErrDuplicateKey is returned by Insert when the key is already present and
// the index rejects duplicates.
var ErrDuplicateKey = errors.New("tree: duplicate key")

// DuplicatePolicy controls what Insert does with a key that is already
// present.
type DuplicatePolicy int

const (
	// RejectDuplicates makes Insert fail with ErrDuplicateKey.
	RejectDuplicates DuplicatePolicy = iota
	// AllowDuplicates keeps every entry; equal keys are visited in
	// insertion order.
	AllowDuplicates
)

const defaultDegree = 16

type config struct {
	degree int
	policy DuplicatePolicy
}

// Option configures an Index.
type Option func(*config)

// WithDegree sets the branching degree of the underlying B-tree.
func WithDegree(degree int) Option {
	return func(c *config) { c.degree = degree }
}

// WithDuplicates sets the duplicate key policy.
func WithDuplicates(policy DuplicatePolicy) Option {
	return func(c *config) { c.policy = policy }
}

type entry[K constraints.Unsigned, V any] struct {
	key   K
	seq   uint64
	value V
}

func less[K constraints.Unsigned, V any](a, b entry[K, V]) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq < b.seq
}

// Index is an ordered collection of values keyed by K.
// It is not safe for concurrent use; callers serialize access.
type Index[K constraints.Unsigned, V any] struct {
	bt     *btree.BTreeG[entry[K, V]]
	policy DuplicatePolicy
	seq    uint64
}

// New returns an empty index.
func New[K constraints.Unsigned, V any](opts ...Option) *Index[K, V] {
	c := config{degree: defaultDegree, policy: RejectDuplicates}
	for _, opt := range opts {
		opt(&c)
	}
	if c.degree < 2 {
		c.degree = 2
	}
	return &Index[K, V]{
		bt:     btree.NewG[entry[K, V]](c.degree, less[K, V]),
		policy: c.policy,
	}
}

// Len returns the number of entries.
func (ix *Index[K, V]) Len() int {
	return ix.bt.Len()
}

// Insert adds value under key.
func (ix *Index[K, V]) Insert(key K, value V) error {
	if ix.policy == RejectDuplicates {
		if _, ok := ix.first(key); ok {
			return errors.Wrapf(ErrDuplicateKey, "key %d", uint64(key))
		}
		ix.bt.ReplaceOrInsert(entry[K, V]{key: key, value: value})
		return nil
	}

	ix.seq++
	ix.bt.ReplaceOrInsert(entry[K, V]{key: key, seq: ix.seq, value: value})
	return nil
}

// Find returns the value stored under key. With duplicates allowed it
// returns the earliest inserted one.
func (ix *Index[K, V]) Find(key K) (V, bool) {
	e, ok := ix.first(key)
	return e.value, ok
}

// FindAll returns every value stored under key in insertion order.
func (ix *Index[K, V]) FindAll(key K) []V {
	var out []V
	ix.bt.AscendGreaterOrEqual(entry[K, V]{key: key}, func(e entry[K, V]) bool {
		if e.key != key {
			return false
		}
		out = append(out, e.value)
		return true
	})
	return out
}

// Delete removes the entry Find would return for key.
func (ix *Index[K, V]) Delete(key K) (V, bool) {
	e, ok := ix.first(key)
	if !ok {
		var zero V
		return zero, false
	}
	ix.bt.Delete(e)
	return e.value, true
}

// First returns the entry with the smallest key.
func (ix *Index[K, V]) First() (K, V, bool) {
	e, ok := ix.bt.Min()
	return e.key, e.value, ok
}

// Last returns the entry with the largest key.
func (ix *Index[K, V]) Last() (K, V, bool) {
	e, ok := ix.bt.Max()
	return e.key, e.value, ok
}

// Next returns the first entry whose key is strictly greater than key.
func (ix *Index[K, V]) Next(key K) (K, V, bool) {
	var (
		found entry[K, V]
		ok    bool
	)
	if key == ^K(0) {
		return found.key, found.value, false
	}
	ix.bt.AscendGreaterOrEqual(entry[K, V]{key: key + 1}, func(e entry[K, V]) bool {
		found, ok = e, true
		return false
	})
	return found.key, found.value, ok
}

// Prev returns the last entry whose key is strictly less than key.
func (ix *Index[K, V]) Prev(key K) (K, V, bool) {
	var (
		found entry[K, V]
		ok    bool
	)
	if key == 0 {
		return found.key, found.value, false
	}
	ix.bt.DescendLessOrEqual(entry[K, V]{key: key - 1, seq: math.MaxUint64}, func(e entry[K, V]) bool {
		found, ok = e, true
		return false
	})
	return found.key, found.value, ok
}

// Enumerate calls fn for every entry in key order until fn returns false.
func (ix *Index[K, V]) Enumerate(fn func(key K, value V) bool) {
	ix.bt.Ascend(func(e entry[K, V]) bool {
		return fn(e.key, e.value)
	})
}

// Values returns all values in key order.
func (ix *Index[K, V]) Values() []V {
	out := make([]V, 0, ix.bt.Len())
	ix.Enumerate(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Clear removes every entry.
func (ix *Index[K, V]) Clear() {
	ix.bt.Clear(false)
	ix.seq = 0
}

func (ix *Index[K, V]) first(key K) (entry[K, V], bool) {
	var (
		found entry[K, V]
		ok    bool
	)
	ix.bt.AscendGreaterOrEqual(entry[K, V]{key: key}, func(e entry[K, V]) bool {
		if e.key == key {
			found, ok = e, true
		}
		return false
	})
	return found, ok
}
