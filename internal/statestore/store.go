// Package statestore reconstructs entity state from contract events: fetch
// the logs of every source, reduce them to one record per key and overlay
// the live contract reads.
package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/merger"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/reducer"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

// HeadReader returns the current block number.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// KeyFunc extracts the membership key from a decoded log. Returning false
// skips the log.
type KeyFunc func(e model.LogEntry) (model.Key, bool)

// Source is one event stream feeding a view.
type Source struct {
	Filter eventlog.Filter
	Kind   model.TransitionKind
	Key    KeyFunc
}

// Fallback builds a profile from the latest add event of a key. last is
// the zero LogEntry when the key was never added.
type Fallback[P any] func(rec model.MembershipRecord, last model.LogEntry) *P

// Spec configures one view of the store.
type Spec[P any] struct {
	Name     string
	Sources  []Source
	Live     merger.LiveReader[P]
	Fallback Fallback[P]
	// ActiveOnly drops rows that end up inactive after the merge.
	ActiveOnly   bool
	ReadInactive bool
}

// Snapshot is the result of one load.
type Snapshot[P any] struct {
	Rows     []merger.Row[P]
	Warnings []string
	Block    uint64
}

type Store[P any] struct {
	spec    Spec[P]
	head    HeadReader
	fetcher *eventlog.Fetcher
	merger  *merger.Merger[P]
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

type Options struct {
	LiveConcurrency int
	LiveTimeout     time.Duration
	LiveCacheTTL    time.Duration
}

func New[P any](spec Spec[P], head HeadReader, fetcher *eventlog.Fetcher, opts Options, logger *zerolog.Logger, m *metrics.Metrics) *Store[P] {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if m == nil {
		m = metrics.NewNop()
	}
	mg := merger.New[P](merger.Config{
		Name:         spec.Name,
		ReadInactive: spec.ReadInactive,
		Concurrency:  opts.LiveConcurrency,
		Timeout:      opts.LiveTimeout,
		CacheTTL:     opts.LiveCacheTTL,
	}, spec.Live, nil, logger, m)
	return &Store[P]{
		spec:    spec,
		head:    head,
		fetcher: fetcher,
		merger:  mg,
		logger:  logger,
		metrics: m,
	}
}

func (s *Store[P]) Name() string {
	return s.spec.Name
}

// Load reads the head block and rebuilds the snapshot at it. Only a failed
// head read is an error; event and live read failures become warnings.
func (s *Store[P]) Load(ctx context.Context) (Snapshot[P], error) {
	head, err := s.head.BlockNumber(ctx)
	if err != nil {
		return Snapshot[P]{}, fmt.Errorf("read head block: %w", err)
	}
	return s.LoadAt(ctx, head), nil
}

// LoadAt runs fetch, reduce and merge against a fixed head.
func (s *Store[P]) LoadAt(ctx context.Context, head uint64) Snapshot[P] {
	start := time.Now()
	defer func() {
		s.metrics.RefreshDuration.WithLabelValues(s.spec.Name).Observe(time.Since(start).Seconds())
	}()

	filters := make([]eventlog.Filter, len(s.spec.Sources))
	for i, src := range s.spec.Sources {
		filters[i] = src.Filter
	}
	batch := s.fetcher.FetchAll(ctx, filters, head)
	warnings := append([]string(nil), batch.Warnings...)

	var transitions []model.Transition
	lastAdd := make(map[model.Key]model.LogEntry)
	for i, src := range s.spec.Sources {
		for _, e := range batch.Logs[i] {
			key, ok := src.Key(e)
			if !ok {
				s.logger.Debug().Str("view", s.spec.Name).Str("event", e.Event).Msg("Skipping log without key")
				continue
			}
			transitions = append(transitions, model.Transition{
				Key:      key,
				Kind:     src.Kind,
				Block:    e.BlockNumber,
				LogIndex: e.LogIndex,
				TxHash:   e.TxHash,
			})
			if src.Kind == model.TransitionAdd {
				if prev, seen := lastAdd[key]; !seen || prev.Before(e) {
					lastAdd[key] = e
				}
			}
		}
	}

	records := reducer.Sorted(reducer.Reduce(transitions))

	var fallback merger.FallbackProfile[P]
	if s.spec.Fallback != nil {
		fallback = func(rec model.MembershipRecord) *P {
			return s.spec.Fallback(rec, lastAdd[rec.MapKey()])
		}
	}
	rows, liveWarnings := s.merger.MergeWith(ctx, head, records, fallback)
	warnings = append(warnings, liveWarnings...)

	if s.spec.ActiveOnly {
		kept := rows[:0]
		for _, r := range rows {
			if r.Active {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	return Snapshot[P]{Rows: rows, Warnings: warnings, Block: head}
}
