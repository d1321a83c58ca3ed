// Package viewstest provides an in-memory chain for view and service tests.
package viewstest

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

// Deployment places every contract at a fixed address.
var Deployment = contract.Deployment{
	HospitalManagement:             common.HexToAddress("0x1000000000000000000000000000000000000001"),
	DoctorManagement:               common.HexToAddress("0x1000000000000000000000000000000000000002"),
	PatientManagement:              common.HexToAddress("0x1000000000000000000000000000000000000003"),
	EMRSystem:                      common.HexToAddress("0x1000000000000000000000000000000000000004"),
	ResearchOrganizationManagement: common.HexToAddress("0x1000000000000000000000000000000000000005"),
}

// Chain serves logs and the head block from memory.
type Chain struct {
	mu      sync.Mutex
	head    uint64
	headErr error
	logs    []types.Log
	failing map[common.Hash]error
}

func NewChain(head uint64) *Chain {
	return &Chain{head: head, failing: make(map[common.Hash]error)}
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, c.headErr
}

func (c *Chain) SetHead(head uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head, c.headErr = head, err
}

// Fail makes every query for event return err.
func (c *Chain) Fail(n contract.Name, event string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[contract.MustABI(n).Events[event].ID] = err
}

// Emit appends a log. args lists every event input in ABI order.
func (c *Chain) Emit(t *testing.T, n contract.Name, event string, block uint64, index uint, args ...interface{}) types.Log {
	t.Helper()
	ev, ok := contract.MustABI(n).Events[event]
	require.True(t, ok, "unknown event %s", event)
	require.Len(t, args, len(ev.Inputs))

	topics := []common.Hash{ev.ID}
	var data []interface{}
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, args[i])
			continue
		}
		tt, err := abi.MakeTopics([]interface{}{args[i]})
		require.NoError(t, err)
		topics = append(topics, tt[0][0])
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)

	addr, err := Deployment.Address(n)
	require.NoError(t, err)
	l := types.Log{
		Address:     addr,
		Topics:      topics,
		Data:        packed,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
	}
	c.mu.Lock()
	c.logs = append(c.logs, l)
	c.mu.Unlock()
	return l
}

func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(q.Topics) > 0 && len(q.Topics[0]) > 0 {
		if err := c.failing[q.Topics[0][0]]; err != nil {
			return nil, err
		}
	}
	var out []types.Log
	for _, l := range c.logs {
		if matches(l, q) {
			out = append(out, l)
		}
	}
	return out, nil
}

func matches(l types.Log, q ethereum.FilterQuery) bool {
	if len(q.Addresses) > 0 && !containsAddr(q.Addresses, l.Address) {
		return false
	}
	if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	for i, want := range q.Topics {
		if len(want) == 0 {
			continue
		}
		if i >= len(l.Topics) || !containsHash(want, l.Topics[i]) {
			return false
		}
	}
	return true
}

func containsAddr(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

// ErrUnreachable is what failing fakes return.
var ErrUnreachable = errors.New("provider unreachable")

// NewRuntime wires a runtime over c and readers. The registry has no
// running watcher; tests refresh views directly.
func NewRuntime(c *Chain, readers contract.Readers) *views.Runtime {
	watcher := refresh.NewWatcher(c, refresh.WatcherConfig{}, nil, nil)
	return &views.Runtime{
		Head:       c,
		Fetcher:    eventlog.NewFetcher(c, eventlog.Config{}, nil, nil),
		Readers:    readers,
		Deployment: Deployment,
		Registry:   refresh.NewRegistry(watcher, 0, nil, nil),
		Watcher:    watcher,
		StoreOptions: statestore.Options{
			LiveConcurrency: 4,
		},
	}
}

var _ statestore.HeadReader = (*Chain)(nil)
var _ eventlog.LogFilterer = (*Chain)(nil)
