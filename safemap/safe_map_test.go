package safemap

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSafeMap(t *testing.T) {
	m := NewSafeMap[string, int]()
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
	_, ok := m.Load("x")
	assert.False(t, ok)
}

func TestSafeMap_StoreLoadDelete(t *testing.T) {
	m := NewSafeMap[uint32, string]()

	t.Run("store and load returns value", func(t *testing.T) {
		m.Store(1, "a")
		v, ok := m.Load(1)
		assert.True(t, ok)
		assert.Equal(t, "a", v)
	})

	t.Run("overwrite returns new value", func(t *testing.T) {
		m.Store(1, "b")
		v, _ := m.Load(1)
		assert.Equal(t, "b", v)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("delete removes key and missing delete is no-op", func(t *testing.T) {
		m.Delete(1)
		m.Delete(42)
		assert.False(t, m.Has(1))
		assert.Equal(t, 0, m.Len())
	})
}

func TestSafeMap_Update(t *testing.T) {
	m := NewSafeMap[string, int]()

	m.Update("listeners", func(v int, found bool) int {
		assert.False(t, found)
		return v + 1
	})
	m.Update("listeners", func(v int, found bool) int {
		assert.True(t, found)
		return v + 1
	})

	v, _ := m.Load("listeners")
	assert.Equal(t, 2, v)
}

func TestSafeMap_RangeAndValues(t *testing.T) {
	m := NewSafeMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)
	m.Store("c", 3)

	t.Run("iterates all entries", func(t *testing.T) {
		seen := map[string]int{}
		m.Range(func(k string, v int) bool {
			seen[k] = v
			return true
		})
		assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, seen)
	})

	t.Run("stops when f returns false", func(t *testing.T) {
		count := 0
		m.Range(func(k string, v int) bool {
			count++
			return count < 2
		})
		assert.Equal(t, 2, count)
	})

	t.Run("values is a copy", func(t *testing.T) {
		vals := m.Values()
		sort.Ints(vals)
		assert.Equal(t, []int{1, 2, 3}, vals)

		vals[0] = 100
		v, _ := m.Load("a")
		assert.Equal(t, 1, v)
	})
}

func TestSafeMap_ConcurrentReadersOneWriter(t *testing.T) {
	m := NewSafeMap[int, int]()
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			m.Store(i, i*2)
		}
		for i := 0; i < n/2; i++ {
			m.Delete(i)
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n; j++ {
				_ = m.Values()
				_ = m.Len()
				m.Range(func(k, v int) bool { return v == k*2 })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n/2, m.Len())
}
