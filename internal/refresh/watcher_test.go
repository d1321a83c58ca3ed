package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/model"
)

type fakeHead struct {
	mu   sync.Mutex
	head uint64
	err  error
}

func (f *fakeHead) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.err
}

func (f *fakeHead) set(head uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head, f.err = head, err
}

func TestWatcherNotifiesOnNewBlocksOnly(t *testing.T) {
	src := &fakeHead{head: 5}
	w := NewWatcher(src, WatcherConfig{}, nil, nil)

	blocks := make(chan uint64, 4)
	unsubscribe := w.Subscribe(func(b uint64) { blocks <- b })

	assert.True(t, w.Poll(context.Background()))
	assert.Equal(t, uint64(5), <-blocks)
	assert.Equal(t, model.StatusConnected, w.Status())

	// same head, no notification
	w.Poll(context.Background())
	src.set(6, nil)
	w.Poll(context.Background())
	assert.Equal(t, uint64(6), <-blocks)

	unsubscribe()
	src.set(7, nil)
	w.Poll(context.Background())
	select {
	case b := <-blocks:
		t.Fatalf("unexpected notification for block %d", b)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, uint64(7), w.Head())
}

func TestWatcherReportsDisconnect(t *testing.T) {
	src := &fakeHead{head: 1}
	w := NewWatcher(src, WatcherConfig{}, nil, nil)
	assert.Equal(t, model.StatusConnecting, w.Status())

	require.True(t, w.Poll(context.Background()))
	assert.True(t, w.Connected())

	src.set(0, errors.New("dial tcp: connection refused"))
	assert.False(t, w.Poll(context.Background()))
	assert.Equal(t, model.StatusDisconnected, w.Status())

	src.set(2, nil)
	require.True(t, w.Poll(context.Background()))
	assert.Equal(t, model.StatusConnected, w.Status())
}
