package merger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/model"
)

type profile struct {
	Name string
}

func rec(addr string, active bool) model.MembershipRecord {
	return model.MembershipRecord{Key: common.HexToAddress(addr), Active: active, FirstSeenBlock: 1, LastSeenBlock: 2}
}

func TestLiveReadOverridesDerivedState(t *testing.T) {
	read := func(ctx context.Context, key model.Key) (profile, bool, error) {
		return profile{Name: "live"}, false, nil
	}
	m := New[profile](Config{Name: "t"}, read, nil, nil, nil)

	rows, warnings := m.Merge(context.Background(), 10, []model.MembershipRecord{rec("0xaa", true)})
	require.Len(t, rows, 1)
	assert.Empty(t, warnings)
	assert.False(t, rows[0].Active)
	assert.False(t, rows[0].Stale)
	require.NotNil(t, rows[0].Profile)
	assert.Equal(t, "live", rows[0].Profile.Name)
}

func TestFailedReadFallsBackAndMarksStale(t *testing.T) {
	read := func(ctx context.Context, key model.Key) (profile, bool, error) {
		return profile{}, false, errors.New("execution reverted")
	}
	fallback := func(r model.MembershipRecord) *profile {
		return &profile{Name: "from-event"}
	}
	m := New[profile](Config{Name: "t"}, read, fallback, nil, nil)

	rows, warnings := m.Merge(context.Background(), 10, []model.MembershipRecord{rec("0xaa", true)})
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Active)
	assert.True(t, rows[0].Stale)
	assert.Equal(t, "from-event", rows[0].Profile.Name)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "execution reverted")
}

func TestInactiveRowsSkipReadUnlessConfigured(t *testing.T) {
	var calls atomic.Int32
	read := func(ctx context.Context, key model.Key) (profile, bool, error) {
		calls.Add(1)
		return profile{Name: "live"}, true, nil
	}

	m := New[profile](Config{Name: "t"}, read, nil, nil, nil)
	rows, _ := m.Merge(context.Background(), 10, []model.MembershipRecord{rec("0xaa", false)})
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, rows[0].Active)
	assert.Nil(t, rows[0].Profile)

	m = New[profile](Config{Name: "t", ReadInactive: true}, read, nil, nil, nil)
	rows, _ = m.Merge(context.Background(), 10, []model.MembershipRecord{rec("0xaa", false)})
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, rows[0].Active)
}

func TestMergeIsIdempotentAtSameBlock(t *testing.T) {
	var calls atomic.Int32
	read := func(ctx context.Context, key model.Key) (profile, bool, error) {
		n := calls.Add(1)
		return profile{Name: key.Subject.Hex()}, n%2 == 1, nil
	}
	m := New[profile](Config{Name: "t"}, read, nil, nil, nil)
	records := []model.MembershipRecord{rec("0xaa", true), rec("0xbb", true)}

	first, _ := m.Merge(context.Background(), 7, records)
	second, _ := m.Merge(context.Background(), 7, records)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), calls.Load())

	_, _ = m.Merge(context.Background(), 8, records)
	assert.Equal(t, int32(4), calls.Load())
}

func TestMergePreservesOrder(t *testing.T) {
	read := func(ctx context.Context, key model.Key) (profile, bool, error) {
		return profile{Name: key.Subject.Hex()}, true, nil
	}
	m := New[profile](Config{Name: "t", Concurrency: 2}, read, nil, nil, nil)
	records := []model.MembershipRecord{rec("0x03", true), rec("0x01", true), rec("0x02", true)}

	rows, _ := m.Merge(context.Background(), 1, records)
	require.Len(t, rows, 3)
	for i := range records {
		assert.Equal(t, records[i].Key, rows[i].Key)
		assert.Equal(t, records[i].Key.Hex(), rows[i].Profile.Name)
	}
}
