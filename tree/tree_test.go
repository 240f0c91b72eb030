package tree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	id       uint64
	requests int
}

func TestInsertFind(t *testing.T) {
	ix := New[uint64, *record]()

	for _, id := range []uint64{42, 7, 1000, 1, 99} {
		require.NoError(t, ix.Insert(id, &record{id: id}))
	}
	require.Equal(t, 5, ix.Len())

	r, ok := ix.Find(1000)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), r.id)

	_, ok = ix.Find(8)
	assert.False(t, ok)
}

func TestRejectDuplicates(t *testing.T) {
	ix := New[uint32, string]()

	require.NoError(t, ix.Insert(3, "a"))
	err := ix.Insert(3, "b")
	require.True(t, errors.Is(err, ErrDuplicateKey))

	v, ok := ix.Find(3)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, ix.Len())
}

func TestAllowDuplicates(t *testing.T) {
	ix := New[uint16, string](WithDuplicates(AllowDuplicates), WithDegree(2))

	require.NoError(t, ix.Insert(5, "first"))
	require.NoError(t, ix.Insert(2, "x"))
	require.NoError(t, ix.Insert(5, "second"))
	require.NoError(t, ix.Insert(5, "third"))

	v, ok := ix.Find(5)
	require.True(t, ok)
	assert.Equal(t, "first", v)
	assert.Equal(t, []string{"first", "second", "third"}, ix.FindAll(5))

	v, ok = ix.Delete(5)
	require.True(t, ok)
	assert.Equal(t, "first", v)
	assert.Equal(t, []string{"second", "third"}, ix.FindAll(5))
	assert.Equal(t, 3, ix.Len())
}

func TestEnumerateVisitsEveryRecordInOrder(t *testing.T) {
	ix := New[uint64, *record](WithDegree(3))

	rnd := rand.New(rand.NewSource(1))
	want := make([]uint64, 0, 500)
	seen := map[uint64]bool{}
	for len(want) < 500 {
		id := uint64(rnd.Int63n(1 << 20))
		if seen[id] {
			continue
		}
		seen[id] = true
		want = append(want, id)
		require.NoError(t, ix.Insert(id, &record{id: id}))
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	var got []uint64
	ix.Enumerate(func(key uint64, r *record) bool {
		require.Equal(t, key, r.id)
		got = append(got, key)
		return true
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("enumeration mismatch (-want +got):\n%s", diff)
	}

	var stopped int
	ix.Enumerate(func(uint64, *record) bool {
		stopped++
		return stopped < 10
	})
	assert.Equal(t, 10, stopped)
}

func TestNavigation(t *testing.T) {
	ix := New[uint8, int]()

	_, _, ok := ix.First()
	require.False(t, ok)

	for _, k := range []uint8{10, 20, 30, 255} {
		require.NoError(t, ix.Insert(k, int(k)*2))
	}

	k, v, ok := ix.First()
	require.True(t, ok)
	assert.Equal(t, uint8(10), k)
	assert.Equal(t, 20, v)

	k, _, ok = ix.Last()
	require.True(t, ok)
	assert.Equal(t, uint8(255), k)

	k, _, ok = ix.Next(10)
	require.True(t, ok)
	assert.Equal(t, uint8(20), k)

	k, _, ok = ix.Next(21)
	require.True(t, ok)
	assert.Equal(t, uint8(30), k)

	_, _, ok = ix.Next(255)
	assert.False(t, ok)

	k, _, ok = ix.Prev(30)
	require.True(t, ok)
	assert.Equal(t, uint8(20), k)

	_, _, ok = ix.Prev(10)
	assert.False(t, ok)
	_, _, ok = ix.Prev(0)
	assert.False(t, ok)
}

func TestValuesAndClear(t *testing.T) {
	ix := New[uint64, string]()
	require.NoError(t, ix.Insert(2, "b"))
	require.NoError(t, ix.Insert(1, "a"))
	require.NoError(t, ix.Insert(3, "c"))

	assert.Equal(t, []string{"a", "b", "c"}, ix.Values())

	ix.Clear()
	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.Values())
	_, ok := ix.Find(1)
	assert.False(t, ok)

	require.NoError(t, ix.Insert(1, "again"))
	v, ok := ix.Find(1)
	require.True(t, ok)
	assert.Equal(t, "again", v)
}

func TestDeleteMissing(t *testing.T) {
	ix := New[uint64, int]()
	_, ok := ix.Delete(1)
	assert.False(t, ok)
}
