package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

// Mountable is the type-erased face of a View.
type Mountable interface {
	Name() string
	Refresh(ctx context.Context) (bool, error)
	Close()
}

type mounted struct {
	view        Mountable
	unsubscribe func()
}

// Registry keeps views mounted while they are being read. A view that is
// not read for the idle timeout is evicted, which unmounts it.
type Registry struct {
	watcher *Watcher
	views   *cache.Cache
	logger  *zerolog.Logger
	metrics *metrics.Metrics
	mu      sync.Mutex
}

func NewRegistry(watcher *Watcher, idle time.Duration, logger *zerolog.Logger, m *metrics.Metrics) *Registry {
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if m == nil {
		m = metrics.NewNop()
	}
	r := &Registry{
		watcher: watcher,
		views:   cache.New(idle, idle/2),
		logger:  logger,
		metrics: m,
	}
	r.views.OnEvicted(func(key string, v interface{}) {
		mv := v.(*mounted)
		mv.unsubscribe()
		mv.view.Close()
		r.metrics.MountedViews.Dec()
		r.logger.Debug().Str("key", key).Msg("View unmounted")
	})
	return r
}

// Mount returns the view under key, building and subscribing it on first
// use. created is true when build ran.
func (r *Registry) Mount(key string, build func() Mountable) (view Mountable, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.views.Get(key); ok {
		// reset the idle timer
		r.views.SetDefault(key, v)
		return v.(*mounted).view, false
	}
	// An expired entry the janitor has not swept yet is still stored;
	// Delete runs the eviction hook for it so its subscription goes too.
	r.views.Delete(key)

	view = build()
	unsubscribe := r.watcher.Subscribe(func(block uint64) {
		if _, err := view.Refresh(context.Background()); err != nil && err != ErrClosed {
			r.logger.Debug().Err(err).Str("view", view.Name()).Uint64("block", block).Msg("Block refresh failed")
		}
	})
	r.views.SetDefault(key, &mounted{view: view, unsubscribe: unsubscribe})
	r.metrics.MountedViews.Inc()
	return view, true
}

// Unmount drops the view under key.
func (r *Registry) Unmount(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views.Delete(key)
}

// Refresh forces a reload of a mounted view, if any.
func (r *Registry) Refresh(ctx context.Context, key string) error {
	v, ok := r.views.Get(key)
	if !ok {
		return nil
	}
	_, err := v.(*mounted).view.Refresh(ctx)
	return err
}

// Close unmounts every view.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.views.Items() {
		r.views.Delete(key)
	}
}

func (r *Registry) Len() int {
	return r.views.ItemCount()
}

// MountView is Mount for a concrete view type. The first mount loads the
// view synchronously so the caller sees data.
func MountView[T any](ctx context.Context, r *Registry, key string, build func() *View[T]) (*View[T], error) {
	m, created := r.Mount(key, func() Mountable { return build() })
	view, ok := m.(*View[T])
	if !ok {
		return nil, fmt.Errorf("view %s is mounted with another type", key)
	}
	if created {
		// errors are reflected in the view state
		_, _ = view.Refresh(ctx)
	}
	return view, nil
}
