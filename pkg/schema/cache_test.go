package schema

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemon-dev/mnemon/pkg/driver"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

// countingStore wraps a MemStore and counts introspection calls.
type countingStore struct {
	*driver.MemStore
	labelCalls int
	nameCalls  int
	failLabels bool
}

func (c *countingStore) Labels(ctx context.Context) ([]string, error) {
	c.labelCalls++
	if c.failLabels {
		return nil, errors.New("store down")
	}
	return c.MemStore.Labels(ctx)
}

func (c *countingStore) NodeNames(ctx context.Context, label string) ([]string, error) {
	c.nameCalls++
	return c.MemStore.NodeNames(ctx, label)
}

func seedStore(t *testing.T) *countingStore {
	t.Helper()
	store := &countingStore{MemStore: driver.NewMemStore()}
	ctx := context.Background()
	require.NoError(t, store.CreateOrUpdateRelationship(ctx, &types.Relationship{
		Type: "LIVE_IN", StartNode: "Alice", EndNode: "Paris",
		StartLabel: "Person", EndLabel: "Place",
	}))
	return store
}

func TestCacheServesFromMemoryUntilExpiry(t *testing.T) {
	store := seedStore(t)
	cache := New(store, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		labels, err := cache.Labels(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Person", "Place"}, labels)
	}
	assert.Equal(t, 1, store.labelCalls)
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	store := seedStore(t)
	cache := New(store, time.Hour)
	ctx := context.Background()

	_, err := cache.Labels(ctx)
	require.NoError(t, err)

	current := time.Now()
	cache.now = func() time.Time { return current.Add(25 * time.Hour) }

	_, err = cache.Labels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.labelCalls)
}

func TestCacheNodeNamesKeyedPerLabel(t *testing.T) {
	store := seedStore(t)
	cache := New(store, time.Hour)
	ctx := context.Background()

	people, err := cache.NodeNames(ctx, "Person")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, people)

	places, err := cache.NodeNames(ctx, "Place")
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris"}, places)

	_, err = cache.NodeNames(ctx, "Person")
	require.NoError(t, err)
	assert.Equal(t, 2, store.nameCalls)
}

func TestCacheServesStaleOnRefreshFailure(t *testing.T) {
	store := seedStore(t)
	cache := New(store, time.Hour)
	ctx := context.Background()

	_, err := cache.Labels(ctx)
	require.NoError(t, err)

	store.failLabels = true
	current := time.Now()
	cache.now = func() time.Time { return current.Add(25 * time.Hour) }

	labels, err := cache.Labels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Person", "Place"}, labels)
}

func TestCacheColdMissPropagatesError(t *testing.T) {
	store := seedStore(t)
	store.failLabels = true
	cache := New(store, time.Hour)

	_, err := cache.Labels(context.Background())
	assert.Error(t, err)
}

func TestLabelForName(t *testing.T) {
	store := seedStore(t)
	cache := New(store, time.Hour)
	ctx := context.Background()

	label, err := cache.LabelForName(ctx, "Paris")
	require.NoError(t, err)
	assert.Equal(t, "Place", label)

	label, err = cache.LabelForName(ctx, "Nobody")
	require.NoError(t, err)
	assert.Equal(t, "", label)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	store := seedStore(t)
	cache := New(store, time.Hour)
	ctx := context.Background()

	_, err := cache.Labels(ctx)
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Labels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.labelCalls)
}
