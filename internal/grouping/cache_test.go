package grouping_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boletodesk/internal/backend"
	"boletodesk/internal/grouping"
)

func counting(calls *atomic.Int32, data string) grouping.FetchFunc {
	return func(context.Context) (*backend.Binary, error) {
		calls.Add(1)
		return &backend.Binary{Data: []byte(data), ContentType: "application/pdf"}, nil
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "boleto-abc", grouping.Key(backend.KindCollection, "abc"))
	assert.Equal(t, "xml-abc", grouping.Key(backend.KindFiscal, "abc"))
}

func TestCacheNeverRefetches(t *testing.T) {
	cache := grouping.NewCache("", nil)
	var calls atomic.Int32
	ctx := context.Background()

	first, err := cache.Get(ctx, "boleto-1", counting(&calls, "pdf-1"))
	require.NoError(t, err)
	second, err := cache.Get(ctx, "boleto-1", counting(&calls, "other"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheCollapsesConcurrentFetches(t *testing.T) {
	cache := grouping.NewCache("", nil)
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (*backend.Binary, error) {
		calls.Add(1)
		<-release
		return &backend.Binary{Data: []byte("x")}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), "xml-9", fetch)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	cache := grouping.NewCache("", nil)
	boom := errors.New("boom")
	_, err := cache.Get(context.Background(), "boleto-1", func(context.Context) (*backend.Binary, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	var calls atomic.Int32
	_, err = cache.Get(context.Background(), "boleto-1", counting(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheMirrorSurvivesNewInstance(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session-1")
	var calls atomic.Int32
	ctx := context.Background()

	_, err := grouping.NewCache(dir, nil).Get(ctx, "boleto-7", counting(&calls, "mirrored"))
	require.NoError(t, err)

	reopened := grouping.NewCache(dir, nil)
	bin, err := reopened.Get(ctx, "boleto-7", counting(&calls, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "mirrored", string(bin.Data))
	assert.Equal(t, "application/pdf", bin.ContentType)

	require.NoError(t, reopened.Purge())
	assert.NoDirExists(t, dir)
	assert.Equal(t, 0, reopened.Len())

	_, err = reopened.Get(ctx, "boleto-7", counting(&calls, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheRejectsEmptyKey(t *testing.T) {
	_, err := grouping.NewCache("", nil).Get(context.Background(), "", nil)
	assert.Error(t, err)
}
