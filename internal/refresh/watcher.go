package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/pkg/circuitbreaker"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

// HeadSource is the slice of ethclient the watcher needs.
type HeadSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// HeadSubscriber is implemented by websocket clients.
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

type WatcherConfig struct {
	PollInterval time.Duration
	// UseSubscription tries SubscribeNewHead before polling.
	UseSubscription bool
	MaxFailures     int
	RetryTimeout    time.Duration
}

// Watcher follows the chain head and notifies subscribers of every new
// block. It also owns the process wide connection status.
type Watcher struct {
	src     HeadSource
	cfg     WatcherConfig
	cb      *circuitbreaker.CircuitBreaker
	logger  *zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	subs   map[uint64]func(block uint64)
	nextID uint64
	head   uint64
	status model.ConnectionStatus
}

func NewWatcher(src HeadSource, cfg WatcherConfig, logger *zerolog.Logger, m *metrics.Metrics) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 4 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if m == nil {
		m = metrics.NewNop()
	}
	w := &Watcher{
		src:     src,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		subs:    make(map[uint64]func(uint64)),
		status:  model.StatusConnecting,
	}
	w.cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "chain-provider",
		MaxFailures: cfg.MaxFailures,
		Timeout:     cfg.RetryTimeout,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit breaker state changed")
		},
	})
	return w
}

// Subscribe registers fn for new blocks. The returned func unsubscribes.
func (w *Watcher) Subscribe(fn func(block uint64)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
		})
	}
}

func (w *Watcher) Status() model.ConnectionStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Watcher) Connected() bool {
	return w.Status() == model.StatusConnected
}

func (w *Watcher) Head() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.head
}

// Run follows the head until ctx is done. With a subscriber it listens for
// new heads and falls back to polling when the subscription drops.
func (w *Watcher) Run(ctx context.Context) error {
	w.Poll(ctx)
	for {
		if sub, ok := w.src.(HeadSubscriber); ok && w.cfg.UseSubscription {
			if err := w.follow(ctx, sub); err != nil {
				w.logger.Warn().Err(err).Msg("Head subscription ended, polling instead")
			}
		}
		if err := w.poll(ctx); err != nil {
			return err
		}
	}
}

func (w *Watcher) follow(ctx context.Context, s HeadSubscriber) error {
	heads := make(chan *types.Header, 16)
	sub, err := s.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	w.logger.Info().Msg("Subscribed to new heads")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			w.setStatus(model.StatusDisconnected)
			return err
		case h := <-heads:
			w.observe(h.Number.Uint64())
		}
	}
}

// poll reads the head on a ticker. It returns nil after a stretch of
// successful polls so Run can retry the subscription.
func (w *Watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	healthy := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.Poll(ctx) {
				healthy++
			} else {
				healthy = 0
			}
			if w.cfg.UseSubscription && healthy >= 15 {
				return nil
			}
		}
	}
}

// Poll reads the head once and notifies subscribers when it advanced.
func (w *Watcher) Poll(ctx context.Context) bool {
	var head uint64
	err := w.cb.Execute(func() error {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		var err error
		head, err = w.src.BlockNumber(pctx)
		return err
	})
	if err != nil {
		if w.setStatus(model.StatusDisconnected) {
			w.logger.Warn().Err(err).Msg("Chain provider unreachable")
		}
		return false
	}
	w.observe(head)
	return true
}

func (w *Watcher) observe(head uint64) {
	if w.setStatus(model.StatusConnected) {
		w.logger.Info().Uint64("head", head).Msg("Chain provider connected")
	}
	w.mu.Lock()
	if head <= w.head {
		w.mu.Unlock()
		return
	}
	w.head = head
	subs := make([]func(uint64), 0, len(w.subs))
	for _, fn := range w.subs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	w.metrics.HeadBlock.Set(float64(head))
	for _, fn := range subs {
		go fn(head)
	}
}

// setStatus reports whether the status changed.
func (w *Watcher) setStatus(s model.ConnectionStatus) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == s {
		return false
	}
	w.status = s
	if s == model.StatusConnected {
		w.metrics.ProviderUp.Set(1)
	} else {
		w.metrics.ProviderUp.Set(0)
	}
	return true
}
