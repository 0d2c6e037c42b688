package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEntry struct {
	value  int
	shared *[]string
}

func (e *fakeEntry) CreateCopy() Entry {
	// value is cloned, the slice pointer is shared.
	return &fakeEntry{value: e.value, shared: e.shared}
}

type otherEntry struct {
	name string
}

func (e *otherEntry) CreateCopy() Entry {
	return &otherEntry{name: e.name}
}

func TestGet_FabricatesOnce(t *testing.T) {
	r := New()

	first := Get(r, func() *fakeEntry { return &fakeEntry{value: 1} })
	second := Get(r, func() *fakeEntry { t.Fatal("must not fabricate twice"); return nil })

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Len())
}

func TestGet_KeyedByType(t *testing.T) {
	r := New()

	Get(r, func() *fakeEntry { return &fakeEntry{value: 1} })
	Get(r, func() *otherEntry { return &otherEntry{name: "x"} })

	assert.Equal(t, 2, r.Len())
}

func TestSet_Replaces(t *testing.T) {
	r := New()

	Get(r, func() *fakeEntry { return &fakeEntry{value: 1} })
	r.Set(&fakeEntry{value: 2})

	got := Get(r, func() *fakeEntry { t.Fatal("must not fabricate"); return nil })
	assert.Equal(t, 2, got.value)
	assert.Equal(t, 1, r.Len())
}

func TestCopy_ClonesEntries(t *testing.T) {
	r := New()
	original := Get(r, func() *fakeEntry { return &fakeEntry{value: 1} })

	child := r.Copy()
	copied := Get(child, func() *fakeEntry { t.Fatal("must not fabricate"); return nil })

	assert.NotSame(t, original, copied)
	copied.value = 9
	assert.Equal(t, 1, original.value)
}

func TestCopy_EntryControlsSharing(t *testing.T) {
	r := New()
	queue := []string{}
	Get(r, func() *fakeEntry { return &fakeEntry{shared: &queue} })

	child := r.Copy()
	copied := Get(child, func() *fakeEntry { t.Fatal("must not fabricate"); return nil })

	*copied.shared = append(*copied.shared, "event")
	assert.Equal(t, []string{"event"}, queue)
}

func TestCopy_LaterFabricationsDoNotLeak(t *testing.T) {
	r := New()
	child := r.Copy()

	Get(child, func() *fakeEntry { return &fakeEntry{value: 1} })
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, child.Len())
}

func TestGet_Concurrent(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	results := make([]*fakeEntry, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Get(r, func() *fakeEntry { return &fakeEntry{value: 7} })
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Same(t, results[0], got)
	}
	assert.Equal(t, 1, r.Len())
}
