package eventlog

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

// LogFilterer is the slice of ethclient the fetcher needs.
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Filter describes one event query.
type Filter struct {
	// Name labels the filter in warnings and metrics. Defaults to Event.
	Name    string
	Address common.Address
	ABI     *abi.ABI
	Event   string
	// Indexed holds one constraint list per indexed argument, in order.
	// A nil list matches any value.
	Indexed   [][]interface{}
	FromBlock uint64
	// ToBlock of nil means the head passed to Fetch.
	ToBlock *uint64
}

func (f Filter) label() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Event
}

// Topics builds the topic filter: the event id followed by the indexed
// argument constraints.
func (f Filter) Topics() ([][]common.Hash, error) {
	ev, ok := f.ABI.Events[f.Event]
	if !ok {
		return nil, fmt.Errorf("event %s not in abi", f.Event)
	}
	topics := [][]common.Hash{{ev.ID}}
	if len(f.Indexed) == 0 {
		return topics, nil
	}
	rest, err := abi.MakeTopics(f.Indexed...)
	if err != nil {
		return nil, fmt.Errorf("build topics for %s: %w", f.Event, err)
	}
	return append(topics, rest...), nil
}

type Config struct {
	// MaxBlockSpan splits every query into chunks of at most this many
	// blocks. Zero sends the whole range and only splits on rejection.
	MaxBlockSpan uint64
	// Concurrency bounds parallel filter queries in FetchAll.
	Concurrency int
	// QueryTimeout bounds a single eth_getLogs call.
	QueryTimeout time.Duration
}

// Fetcher runs event queries, splitting ranges the provider refuses.
type Fetcher struct {
	client  LogFilterer
	cfg     Config
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

func NewFetcher(client LogFilterer, cfg Config, logger *zerolog.Logger, m *metrics.Metrics) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 15 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Fetcher{client: client, cfg: cfg, logger: logger, metrics: m}
}

// Fetch returns the decoded logs of one filter in chain order.
func (f *Fetcher) Fetch(ctx context.Context, filter Filter, head uint64) ([]model.LogEntry, error) {
	if filter.ABI == nil {
		return nil, fmt.Errorf("%s: no abi", filter.label())
	}
	topics, err := filter.Topics()
	if err != nil {
		return nil, err
	}
	to := head
	if filter.ToBlock != nil {
		to = *filter.ToBlock
	}
	if filter.FromBlock > to {
		return nil, nil
	}

	var raw []types.Log
	for _, r := range chunk(filter.FromBlock, to, f.cfg.MaxBlockSpan) {
		logs, err := f.fetchRange(ctx, filter.Address, topics, r[0], r[1])
		if err != nil {
			return nil, err
		}
		raw = append(raw, logs...)
	}

	entries := make([]model.LogEntry, 0, len(raw))
	for _, l := range raw {
		if l.Removed {
			continue
		}
		e, err := Decode(filter.ABI, filter.Event, l)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
	return entries, nil
}

func (f *Fetcher) fetchRange(ctx context.Context, addr common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error) {
	qctx, cancel := context.WithTimeout(ctx, f.cfg.QueryTimeout)
	logs, err := f.client.FilterLogs(qctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{addr},
		Topics:    topics,
	})
	cancel()
	if err == nil {
		return logs, nil
	}
	if !IsRangeTooLarge(err) || from >= to {
		return nil, err
	}

	f.metrics.FetchRangeSplits.Inc()
	mid := from + (to-from)/2
	f.logger.Debug().Uint64("from", from).Uint64("to", to).Msg("Splitting rejected log range")
	left, err := f.fetchRange(ctx, addr, topics, from, mid)
	if err != nil {
		return nil, err
	}
	right, err := f.fetchRange(ctx, addr, topics, mid+1, to)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// Batch is the outcome of FetchAll, aligned with the input filters.
type Batch struct {
	Logs [][]model.LogEntry
	// Warnings lists filters that failed. Their Logs entry is empty.
	Warnings []string
}

// FetchAll runs every filter concurrently. A failing filter yields an empty
// result and a warning instead of failing the batch.
func (f *Fetcher) FetchAll(ctx context.Context, filters []Filter, head uint64) Batch {
	out := Batch{Logs: make([][]model.LogEntry, len(filters))}
	errs := make([]error, len(filters))

	g := new(errgroup.Group)
	g.SetLimit(f.cfg.Concurrency)
	for i, filter := range filters {
		g.Go(func() error {
			logs, err := f.Fetch(ctx, filter, head)
			if err != nil {
				errs[i] = err
				return nil
			}
			out.Logs[i] = logs
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		name := filters[i].label()
		f.metrics.FetchFailures.WithLabelValues(name).Inc()
		f.logger.Warn().Err(err).Str("event", name).Msg("Event query failed, treating as empty")
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s events unavailable: %v", name, err))
	}
	return out
}

// Decode turns a raw log into a LogEntry with indexed and data arguments
// merged into Args.
func Decode(a *abi.ABI, event string, l types.Log) (model.LogEntry, error) {
	ev, ok := a.Events[event]
	if !ok {
		return model.LogEntry{}, fmt.Errorf("event %s not in abi", event)
	}
	if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
		return model.LogEntry{}, fmt.Errorf("%s: log %s#%d has a foreign signature", event, l.TxHash.Hex(), l.Index)
	}

	args := make(map[string]interface{})
	if err := a.UnpackIntoMap(args, event, l.Data); err != nil {
		return model.LogEntry{}, fmt.Errorf("%s: unpack data: %w", event, err)
	}
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
		return model.LogEntry{}, fmt.Errorf("%s: parse topics: %w", event, err)
	}

	return model.LogEntry{
		Contract:    l.Address,
		Event:       event,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
		TxHash:      l.TxHash,
		Args:        args,
	}, nil
}

var rangeErrorHints = []string{
	"block range",
	"range too large",
	"too many blocks",
	"query returned more than",
	"limit exceeded",
	"response size exceeded",
	"exceed maximum block range",
}

// IsRangeTooLarge reports whether a provider refused a query for its size.
func IsRangeTooLarge(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range rangeErrorHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// chunk splits [from, to] into inclusive spans of at most span blocks.
func chunk(from, to, span uint64) [][2]uint64 {
	if span == 0 || to-from < span {
		return [][2]uint64{{from, to}}
	}
	var out [][2]uint64
	for start := from; start <= to; start += span {
		end := start + span - 1
		if end > to || end < start {
			end = to
		}
		out = append(out, [2]uint64{start, end})
		if end == to {
			break
		}
	}
	return out
}
