package workerpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubmitRunsTask(t *testing.T) {
	p, err := New("test", 2, zap.NewNop())
	require.NoError(t, err)
	defer p.Release()

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	require.NoError(t, p.Submit(func() {
		ran = true
		wg.Done()
	}))

	wg.Wait()
	require.True(t, ran)
}

func TestFactoryReturnsSamePoolByName(t *testing.T) {
	f := NewFactory(zap.NewNop())
	defer f.ReleaseAll()

	p1, err := f.Get("latency", 2)
	require.NoError(t, err)
	p2, err := f.Get("latency", 2)
	require.NoError(t, err)

	require.Same(t, p1, p2)
}

func TestFactoryKeepsPoolsIndependent(t *testing.T) {
	f := NewFactory(zap.NewNop())
	defer f.ReleaseAll()

	latency, err := f.Get("latency", 1)
	require.NoError(t, err)
	snapshot, err := f.Get("snapshot", 1)
	require.NoError(t, err)

	require.NotSame(t, latency, snapshot)
}

func TestSubmitAfterReleaseFails(t *testing.T) {
	p, err := New("test", 1, zap.NewNop())
	require.NoError(t, err)

	p.Release()
	time.Sleep(5 * time.Millisecond)

	err = p.Submit(func() {})
	require.ErrorIs(t, err, ErrPoolClosed)
}
