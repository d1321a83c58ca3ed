package reducer

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/model"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrB = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

func add(key model.Key, block uint64, idx uint) model.Transition {
	return model.Transition{Key: key, Kind: model.TransitionAdd, Block: block, LogIndex: idx}
}

func remove(key model.Key, block uint64, idx uint) model.Transition {
	return model.Transition{Key: key, Kind: model.TransitionRemove, Block: block, LogIndex: idx}
}

func TestReduce_SameBlockLaterLogIndexWins(t *testing.T) {
	key := model.NewKey(addrA, "")
	got := Reduce([]model.Transition{add(key, 10, 0), remove(key, 10, 1)})

	require.Contains(t, got, key)
	assert.False(t, got[key].Active)
	assert.Equal(t, uint64(10), got[key].LastSeenBlock)
}

func TestReduce_SamePositionPrefersRemove(t *testing.T) {
	key := model.NewKey(addrA, "")

	t.Run("remove listed last", func(t *testing.T) {
		got := Reduce([]model.Transition{add(key, 7, 3), remove(key, 7, 3)})
		assert.False(t, got[key].Active)
	})

	t.Run("remove listed first", func(t *testing.T) {
		got := Reduce([]model.Transition{remove(key, 7, 3), add(key, 7, 3)})
		assert.False(t, got[key].Active)
	})
}

func TestReduce_RoundTrips(t *testing.T) {
	key := model.NewKey(addrA, "")

	t.Run("add remove add ends active", func(t *testing.T) {
		got := Reduce([]model.Transition{add(key, 1, 0), remove(key, 2, 0), add(key, 3, 0)})
		assert.True(t, got[key].Active)
		assert.Equal(t, uint64(1), got[key].FirstSeenBlock)
		assert.Equal(t, uint64(3), got[key].LastSeenBlock)
	})

	t.Run("add remove ends inactive", func(t *testing.T) {
		got := Reduce([]model.Transition{add(key, 1, 0), remove(key, 2, 0)})
		assert.False(t, got[key].Active)
	})
}

func TestReduce_UnorderedInput(t *testing.T) {
	key := model.NewKey(addrA, "")
	got := Reduce([]model.Transition{add(key, 30, 0), remove(key, 20, 5), add(key, 5, 1)})
	assert.True(t, got[key].Active)
	assert.Equal(t, uint64(5), got[key].FirstSeenBlock)
	assert.Equal(t, uint64(30), got[key].LastSeenBlock)
}

func TestReduce_SubkeysAreIndependent(t *testing.T) {
	admin := model.NewKey(addrA, model.DefaultAdminRole.Hex())
	hospital := model.NewKey(addrA, model.HospitalAdminRole.Hex())
	other := model.NewKey(addrB, model.HospitalAdminRole.Hex())

	got := Reduce([]model.Transition{
		add(admin, 1, 0),
		add(hospital, 1, 1),
		add(other, 2, 0),
		remove(hospital, 3, 0),
	})

	require.Len(t, got, 3)
	assert.True(t, got[admin].Active)
	assert.False(t, got[hospital].Active)
	assert.True(t, got[other].Active)
	assert.Equal(t, model.HospitalAdminRole.Hex(), got[hospital].Role)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	key := model.NewKey(addrA, "")
	in := []model.Transition{add(key, 9, 0), remove(key, 1, 0)}
	Reduce(in)
	assert.Equal(t, uint64(9), in[0].Block)
	assert.Equal(t, uint64(1), in[1].Block)
}

func TestReduce_Empty(t *testing.T) {
	assert.Empty(t, Reduce(nil))
}

// The final flag always equals the kind of the event with the greatest
// (block, log index), removes winning exact ties.
func TestReduce_FinalStateMatchesLatestEvent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	key := model.NewKey(addrA, "")

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(20)
		events := make([]model.Transition, n)
		for j := range events {
			kind := model.TransitionAdd
			if rng.Intn(2) == 0 {
				kind = model.TransitionRemove
			}
			events[j] = model.Transition{
				Key:      key,
				Kind:     kind,
				Block:    uint64(rng.Intn(5)),
				LogIndex: uint(rng.Intn(3)),
			}
		}

		latest := events[0]
		for _, e := range events[1:] {
			if e.Block > latest.Block ||
				(e.Block == latest.Block && e.LogIndex > latest.LogIndex) ||
				(e.Block == latest.Block && e.LogIndex == latest.LogIndex && e.Kind == model.TransitionRemove) {
				latest = e
			}
		}

		got := Reduce(events)
		assert.Equal(t, latest.Kind == model.TransitionAdd, got[key].Active, "iteration %d: %+v", i, events)
	}
}

func TestSortedAndActive(t *testing.T) {
	a := model.NewKey(addrA, "")
	b := model.NewKey(addrB, "")
	m := Reduce([]model.Transition{add(b, 5, 0), add(a, 2, 0), remove(b, 6, 0)})

	sorted := Sorted(m)
	require.Len(t, sorted, 2)
	assert.Equal(t, addrA, sorted[0].Key)
	assert.Equal(t, addrB, sorted[1].Key)

	active := Active(sorted)
	require.Len(t, active, 1)
	assert.Equal(t, addrA, active[0].Key)
}
