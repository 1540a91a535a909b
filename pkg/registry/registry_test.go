package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemon-dev/mnemon/pkg/driver"
)

func TestGetCreatesOncePerTenant(t *testing.T) {
	ctx := context.Background()
	var built int32
	reg := New(func(ctx context.Context, tenant string) (driver.GraphStore, error) {
		atomic.AddInt32(&built, 1)
		return driver.NewMemStore(), nil
	})

	var wg sync.WaitGroup
	stores := make([]driver.GraphStore, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store, err := reg.Get(ctx, "tenant-a")
			require.NoError(t, err)
			stores[i] = store
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&built))
	for _, store := range stores[1:] {
		assert.Same(t, stores[0], store)
	}
}

func TestGetSlowTenantDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	reg := New(func(ctx context.Context, tenant string) (driver.GraphStore, error) {
		if tenant == "slow" {
			close(started)
			<-release
		}
		return driver.NewMemStore(), nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := reg.Get(ctx, "slow")
		done <- err
	}()
	<-started

	store, err := reg.Get(ctx, "fast")
	require.NoError(t, err)
	assert.NotNil(t, store)

	close(release)
	require.NoError(t, <-done)
}

func TestGetSeparateStoresPerTenant(t *testing.T) {
	ctx := context.Background()
	reg := New(func(ctx context.Context, tenant string) (driver.GraphStore, error) {
		return driver.NewMemStore(), nil
	})

	a, err := reg.Get(ctx, "tenant-a")
	require.NoError(t, err)
	b, err := reg.Get(ctx, "tenant-b")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.ElementsMatch(t, []string{"tenant-a", "tenant-b"}, reg.Tenants())
}

func TestGetFactoryErrorNotCached(t *testing.T) {
	ctx := context.Background()
	fail := true
	reg := New(func(ctx context.Context, tenant string) (driver.GraphStore, error) {
		if fail {
			return nil, errors.New("store down")
		}
		return driver.NewMemStore(), nil
	})

	_, err := reg.Get(ctx, "tenant-a")
	assert.Error(t, err)
	assert.Empty(t, reg.Tenants())

	fail = false
	store, err := reg.Get(ctx, "tenant-a")
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestCloseEmptiesPool(t *testing.T) {
	ctx := context.Background()
	reg := New(func(ctx context.Context, tenant string) (driver.GraphStore, error) {
		return driver.NewMemStore(), nil
	})

	_, err := reg.Get(ctx, "tenant-a")
	require.NoError(t, err)
	require.NoError(t, reg.Close(ctx))
	assert.Empty(t, reg.Tenants())
}
