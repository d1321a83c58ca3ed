package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/pkg/messaging"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

// ErrClosed is returned when refreshing an unmounted view.
var ErrClosed = errors.New("view is unmounted")

// SnapshotMessage is the message type of published view states.
const SnapshotMessage = "VIEW_SNAPSHOT"

// Result is what one load produces.
type Result[T any] struct {
	Data     T
	Warnings []string
	Block    uint64
}

// Loader computes a fresh result. It must not touch shared view state.
type Loader[T any] func(ctx context.Context) (Result[T], error)

// StatusFunc reports the provider connection status.
type StatusFunc func() model.ConnectionStatus

// Publisher receives every applied snapshot.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

type Options struct {
	Timeout   time.Duration
	Status    StatusFunc
	Publisher Publisher
	// Channel overrides the publish channel. Defaults to views.<name>.
	Channel string
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

type pendingChange[T any] struct {
	id    uint64
	apply func(T) T
	// settleAt is the receipt block of a confirmed change. The change is
	// dropped once an applied result reaches it; zero means unconfirmed.
	settleAt uint64
}

// View holds the displayed state of one mounted page. Refreshes may
// overlap; a result is applied only when it was started after the one
// currently shown, and never after Close.
type View[T any] struct {
	name    string
	load    Loader[T]
	opts    Options
	logger  *zerolog.Logger
	metrics *metrics.Metrics

	seq      atomic.Uint64
	changeID atomic.Uint64

	mu       sync.RWMutex
	applied  uint64
	inflight int
	closed   bool
	state    model.ViewState[T]
	pending  []pendingChange[T]
}

func NewView[T any](name string, load Loader[T], opts Options) *View[T] {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Channel == "" {
		opts.Channel = messaging.ViewChannel(name)
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &View[T]{
		name:    name,
		load:    load,
		opts:    opts,
		logger:  logger,
		metrics: m,
		state:   model.ViewState[T]{View: name, Status: model.StatusConnecting},
	}
}

func (v *View[T]) Name() string {
	return v.name
}

// Refresh runs the loader and applies its result if it is still the
// newest. The returned flag reports whether the result was applied.
func (v *View[T]) Refresh(ctx context.Context) (bool, error) {
	seq := v.seq.Add(1)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false, ErrClosed
	}
	v.inflight++
	v.state.Loading = true
	v.mu.Unlock()

	lctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	res, err := v.run(lctx)
	cancel()

	v.mu.Lock()
	v.inflight--
	if v.inflight == 0 {
		v.state.Loading = false
	}
	if v.closed || seq <= v.applied {
		v.mu.Unlock()
		v.metrics.RefreshTotal.WithLabelValues(v.name, "dropped").Inc()
		v.logger.Debug().Str("view", v.name).Uint64("seq", seq).Msg("Dropping superseded refresh")
		return false, err
	}
	v.applied = seq
	now := time.Now().UTC()
	if err != nil {
		v.state.Error = err.Error()
		v.mu.Unlock()
		v.metrics.RefreshTotal.WithLabelValues(v.name, "failed").Inc()
		v.logger.Warn().Err(err).Str("view", v.name).Msg("View refresh failed")
		return true, err
	}
	v.state.Data = res.Data
	v.state.Warnings = res.Warnings
	v.state.Block = res.Block
	v.state.Error = ""
	v.state.RefreshedAt = &now
	v.settle()
	v.mu.Unlock()

	v.metrics.RefreshTotal.WithLabelValues(v.name, "applied").Inc()
	v.publish(ctx)
	return true, nil
}

// run shields the view from a panicking loader.
func (v *View[T]) run(ctx context.Context) (res Result[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error().Interface("panic", r).Str("view", v.name).Msg("Loader panicked")
			err = errors.New("unexpected error while loading view")
		}
	}()
	return v.load(ctx)
}

func (v *View[T]) publish(ctx context.Context) {
	if v.opts.Publisher == nil {
		return
	}
	snap := v.State()
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := v.opts.Publisher.Publish(pctx, v.opts.Channel, messaging.Message{Type: SnapshotMessage, Payload: snap}); err != nil {
		v.logger.Warn().Err(err).Str("view", v.name).Msg("Failed to publish view snapshot")
	}
}

// State returns the displayed state with pending optimistic changes
// layered on top.
func (v *View[T]) State() model.ViewState[T] {
	v.mu.RLock()
	st := v.state
	pending := append([]pendingChange[T](nil), v.pending...)
	v.mu.RUnlock()

	if v.opts.Status != nil {
		st.Status = v.opts.Status()
	} else if st.RefreshedAt != nil {
		st.Status = model.StatusConnected
	}
	st.Warnings = append([]string(nil), st.Warnings...)
	for _, p := range pending {
		st.Data = p.apply(st.Data)
	}
	st.Pending = len(pending) > 0
	return st
}

// ApplyOptimistic layers change over the displayed data until it is
// confirmed or discarded. change must return a new value rather than
// modify its argument.
func (v *View[T]) ApplyOptimistic(change func(T) T) uint64 {
	id := v.changeID.Add(1)
	v.mu.Lock()
	v.pending = append(v.pending, pendingChange[T]{id: id, apply: change})
	v.mu.Unlock()
	return id
}

// Confirm marks a change as mined in block. It is dropped as soon as the
// displayed data is at or past that block, so a failed reload keeps it
// layered until a later one succeeds.
func (v *View[T]) Confirm(id, block uint64) {
	if block == 0 {
		block = 1
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.pending {
		if v.pending[i].id == id {
			v.pending[i].settleAt = block
		}
	}
	v.settle()
}

// settle drops confirmed changes the displayed data already reflects.
// Callers hold v.mu.
func (v *View[T]) settle() {
	if v.state.RefreshedAt == nil {
		return
	}
	kept := v.pending[:0]
	for _, p := range v.pending {
		if p.settleAt != 0 && v.state.Block >= p.settleAt {
			continue
		}
		kept = append(kept, p)
	}
	v.pending = kept
}

// Discard rolls back a change whose write failed.
func (v *View[T]) Discard(id uint64) {
	v.dropChange(id)
}

func (v *View[T]) dropChange(id uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, p := range v.pending {
		if p.id == id {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return
		}
	}
}

// Close unmounts the view. Refreshes still in flight are dropped when
// they complete.
func (v *View[T]) Close() {
	v.mu.Lock()
	v.closed = true
	v.pending = nil
	v.mu.Unlock()
}

func (v *View[T]) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}
