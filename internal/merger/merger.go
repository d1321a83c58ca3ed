package merger

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

// Row is a reduced membership enriched with its live profile.
type Row[P any] struct {
	model.MembershipRecord
	Profile *P `json:"profile,omitempty"`
	// Stale is set when the live read failed and the row shows
	// event-derived state only.
	Stale bool `json:"stale"`
}

// LiveReader performs the authoritative contract read for one key. The
// returned flag replaces the event-derived active state.
type LiveReader[P any] func(ctx context.Context, key model.Key) (profile P, active bool, err error)

// FallbackProfile builds a profile from event data when no live read is
// available. It may return nil.
type FallbackProfile[P any] func(rec model.MembershipRecord) *P

type Config struct {
	// Name prefixes cache keys and labels metrics.
	Name string
	// ReadInactive also reads keys the reducer reports as removed.
	ReadInactive bool
	Concurrency  int
	Timeout      time.Duration
	CacheTTL     time.Duration
}

type Merger[P any] struct {
	cfg      Config
	read     LiveReader[P]
	fallback FallbackProfile[P]
	cache    *cache.Cache
	logger   *zerolog.Logger
	metrics  *metrics.Metrics
}

func New[P any](cfg Config, read LiveReader[P], fallback FallbackProfile[P], logger *zerolog.Logger, m *metrics.Metrics) *Merger[P] {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Merger[P]{
		cfg:      cfg,
		read:     read,
		fallback: fallback,
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:   logger,
		metrics:  m,
	}
}

type liveResult[P any] struct {
	profile P
	active  bool
}

// Merge overlays live reads on the reduced records. Reads are pinned to
// block through the cache, so merging the same records at the same block
// twice yields the same rows. Output order follows records.
func (m *Merger[P]) Merge(ctx context.Context, block uint64, records []model.MembershipRecord) ([]Row[P], []string) {
	return m.MergeWith(ctx, block, records, m.fallback)
}

// MergeWith is Merge with a fallback for this call only.
func (m *Merger[P]) MergeWith(ctx context.Context, block uint64, records []model.MembershipRecord, fallback FallbackProfile[P]) ([]Row[P], []string) {
	fallbackFor := func(rec model.MembershipRecord) *P {
		if fallback == nil {
			return nil
		}
		return fallback(rec)
	}
	rows := make([]Row[P], len(records))
	failed := make([]error, len(records))

	g := new(errgroup.Group)
	g.SetLimit(m.cfg.Concurrency)
	for i, rec := range records {
		rows[i] = Row[P]{MembershipRecord: rec}
		if m.read == nil || (!rec.Active && !m.cfg.ReadInactive) {
			rows[i].Profile = fallbackFor(rec)
			continue
		}
		g.Go(func() error {
			res, err := m.readCached(ctx, block, rec.MapKey())
			if err != nil {
				failed[i] = err
				rows[i].Profile = fallbackFor(rec)
				rows[i].Stale = true
				return nil
			}
			p := res.profile
			rows[i].Profile = &p
			rows[i].Active = res.active
			return nil
		})
	}
	_ = g.Wait()

	var stale int
	var firstErr error
	for _, err := range failed {
		if err == nil {
			continue
		}
		stale++
		if firstErr == nil {
			firstErr = err
		}
	}
	if stale == 0 {
		return rows, nil
	}
	m.metrics.LiveReadFallbacks.WithLabelValues(m.cfg.Name).Add(float64(stale))
	m.logger.Warn().Err(firstErr).Str("view", m.cfg.Name).Int("rows", stale).Msg("Live reads failed, using event-derived state")
	return rows, []string{fmt.Sprintf("%d of %d rows could not be confirmed on-chain and may be stale: %v", stale, len(records), firstErr)}
}

func (m *Merger[P]) readCached(ctx context.Context, block uint64, key model.Key) (liveResult[P], error) {
	ck := fmt.Sprintf("%s|%s|%d", m.cfg.Name, key.String(), block)
	if v, ok := m.cache.Get(ck); ok {
		return v.(liveResult[P]), nil
	}
	rctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	profile, active, err := m.read(rctx, key)
	if err != nil {
		return liveResult[P]{}, err
	}
	res := liveResult[P]{profile: profile, active: active}
	m.cache.SetDefault(ck, res)
	return res, nil
}
