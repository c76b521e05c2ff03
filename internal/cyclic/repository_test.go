package cyclic

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyRejected(t *testing.T) {
	repo, err := New([]string{})
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, ErrEmpty)

	intRepo, err := New[int](nil)
	assert.Nil(t, intRepo)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestTake_WrapsAround(t *testing.T) {
	items := []string{"a", "b", "c"}
	repo, err := New(items)
	require.NoError(t, err)

	var got []string
	for i := 0; i < len(items)+1; i++ {
		v, err := repo.Take()
		require.NoError(t, err)
		got = append(got, v)
	}

	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
	assert.Equal(t, got[0], got[len(items)])
}

func TestTake_SingleElement(t *testing.T) {
	repo, err := New([]int{42})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		v, err := repo.Take()
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
}

func TestStop_InvalidatesTake(t *testing.T) {
	repo, err := New([]int{1, 2})
	require.NoError(t, err)

	repo.Stop()
	repo.Stop()

	_, err = repo.Take()
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestNew_CopiesBacking(t *testing.T) {
	items := []int{1, 2, 3}
	repo, err := New(items)
	require.NoError(t, err)

	items[0] = 99
	v, err := repo.Take()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 3, repo.Len())
	assert.Equal(t, []int{1, 2, 3}, repo.Items())
}

func TestTake_ConcurrentEvenDistribution(t *testing.T) {
	const workers = 8
	const perWorker = 300
	repo, err := New([]int{0, 1, 2})
	require.NoError(t, err)

	var mu sync.Mutex
	counts := make(map[int]int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[int]int)
			for i := 0; i < perWorker; i++ {
				v, err := repo.Take()
				if err != nil {
					return
				}
				local[v]++
			}
			mu.Lock()
			for k, c := range local {
				counts[k] += c
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	total := workers * perWorker
	for i := 0; i < 3; i++ {
		assert.Equal(t, total/3, counts[i], "element %d", i)
	}
}
