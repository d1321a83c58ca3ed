package statestore

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/model"
)

var registry = common.HexToAddress("0x1000000000000000000000000000000000000001")

type chain struct {
	head    uint64
	headErr error
	logs    []types.Log
	failAll error
}

func (c *chain) BlockNumber(ctx context.Context) (uint64, error) {
	return c.head, c.headErr
}

func (c *chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if c.failAll != nil {
		return nil, c.failAll
	}
	var out []types.Log
	for _, l := range c.logs {
		if l.Topics[0] == q.Topics[0][0] && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func hospitalLog(t *testing.T, event string, hospital common.Address, block uint64, index uint, data ...interface{}) types.Log {
	t.Helper()
	ev := contract.MustABI(contract.Hospital).Events[event]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return types.Log{
		Address:     registry,
		Topics:      []common.Hash{ev.ID, common.BytesToHash(hospital.Bytes())},
		Data:        packed,
		BlockNumber: block,
		Index:       index,
	}
}

type hospital struct {
	Name   string
	Active bool
}

func hospitalSpec(live func(ctx context.Context, key model.Key) (hospital, bool, error)) Spec[hospital] {
	a := contract.MustABI(contract.Hospital)
	return Spec[hospital]{
		Name: "hospitals",
		Sources: []Source{
			{
				Filter: eventlog.Filter{Address: registry, ABI: a, Event: "HospitalRegistered"},
				Kind:   model.TransitionAdd,
				Key:    ByAddress("hospitalAddress"),
			},
			{
				Filter: eventlog.Filter{Address: registry, ABI: a, Event: "HospitalDeactivated"},
				Kind:   model.TransitionRemove,
				Key:    ByAddress("hospitalAddress"),
			},
		},
		Live: live,
		Fallback: func(rec model.MembershipRecord, last model.LogEntry) *hospital {
			return &hospital{Name: last.String("name"), Active: rec.Active}
		},
	}
}

func newStore(c *chain, spec Spec[hospital]) *Store[hospital] {
	return New[hospital](spec, c, eventlog.NewFetcher(c, eventlog.Config{}, nil, nil), Options{}, nil, nil)
}

func TestLoadReducesAndMerges(t *testing.T) {
	a, b := common.HexToAddress("0xaa"), common.HexToAddress("0xbb")
	c := &chain{head: 20, logs: []types.Log{
		hospitalLog(t, "HospitalRegistered", a, 3, 0, "Alpha", "R-A"),
		hospitalLog(t, "HospitalRegistered", b, 4, 0, "Beta", "R-B"),
		hospitalLog(t, "HospitalDeactivated", b, 9, 1),
	}}
	live := func(ctx context.Context, key model.Key) (hospital, bool, error) {
		return hospital{Name: "live " + key.Subject.Hex(), Active: true}, true, nil
	}

	snap, err := newStore(c, hospitalSpec(live)).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(20), snap.Block)
	assert.Empty(t, snap.Warnings)
	require.Len(t, snap.Rows, 2)

	assert.Equal(t, a, snap.Rows[0].Key)
	assert.True(t, snap.Rows[0].Active)
	assert.Equal(t, "live "+a.Hex(), snap.Rows[0].Profile.Name)

	// inactive keys are not read live; the event data fills in
	assert.Equal(t, b, snap.Rows[1].Key)
	assert.False(t, snap.Rows[1].Active)
	assert.Equal(t, "Beta", snap.Rows[1].Profile.Name)
	assert.Equal(t, uint64(9), snap.Rows[1].LastSeenBlock)
}

func TestSameBlockLaterIndexWins(t *testing.T) {
	a := common.HexToAddress("0xa")
	c := &chain{head: 10, logs: []types.Log{
		hospitalLog(t, "HospitalDeactivated", a, 10, 1),
		hospitalLog(t, "HospitalRegistered", a, 10, 0, "A", "R"),
	}}

	snap, err := newStore(c, hospitalSpec(nil)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 1)
	assert.False(t, snap.Rows[0].Active)
}

func TestTwoFailingFiltersYieldEmptyRowsAndWarning(t *testing.T) {
	c := &chain{head: 10, failAll: errors.New("rpc unavailable")}

	snap, err := newStore(c, hospitalSpec(nil)).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Rows)
	assert.NotEmpty(t, snap.Warnings)
}

func TestLiveReadFailureFallsBackToEvents(t *testing.T) {
	a := common.HexToAddress("0xaa")
	c := &chain{head: 5, logs: []types.Log{hospitalLog(t, "HospitalRegistered", a, 2, 0, "Alpha", "R-A")}}
	live := func(ctx context.Context, key model.Key) (hospital, bool, error) {
		return hospital{}, false, errors.New("call reverted")
	}

	snap, err := newStore(c, hospitalSpec(live)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 1)
	assert.True(t, snap.Rows[0].Stale)
	assert.True(t, snap.Rows[0].Active)
	assert.Equal(t, "Alpha", snap.Rows[0].Profile.Name)
	require.Len(t, snap.Warnings, 1)
}

func TestLoadIsIdempotent(t *testing.T) {
	a, b := common.HexToAddress("0xaa"), common.HexToAddress("0xbb")
	c := &chain{head: 20, logs: []types.Log{
		hospitalLog(t, "HospitalRegistered", a, 3, 0, "Alpha", "R-A"),
		hospitalLog(t, "HospitalRegistered", b, 3, 1, "Beta", "R-B"),
	}}
	live := func(ctx context.Context, key model.Key) (hospital, bool, error) {
		return hospital{Name: key.Subject.Hex(), Active: true}, true, nil
	}
	store := newStore(c, hospitalSpec(live))

	first, err := store.Load(context.Background())
	require.NoError(t, err)
	second, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestActiveOnlyDropsRemovedRows(t *testing.T) {
	a, b := common.HexToAddress("0xaa"), common.HexToAddress("0xbb")
	c := &chain{head: 20, logs: []types.Log{
		hospitalLog(t, "HospitalRegistered", a, 3, 0, "Alpha", "R-A"),
		hospitalLog(t, "HospitalRegistered", b, 4, 0, "Beta", "R-B"),
		hospitalLog(t, "HospitalDeactivated", b, 5, 0),
	}}
	spec := hospitalSpec(nil)
	spec.ActiveOnly = true

	snap, err := newStore(c, spec).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, a, snap.Rows[0].Key)
}

func TestHeadFailureIsAnError(t *testing.T) {
	c := &chain{headErr: errors.New("dial tcp: refused")}

	_, err := newStore(c, hospitalSpec(nil)).Load(context.Background())
	assert.Error(t, err)
}
