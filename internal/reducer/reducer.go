// Package reducer folds add/remove transitions from event logs into the
// current membership set.
package reducer

import (
	"sort"

	"github.com/jwalitptl/ehr-chainview/internal/model"
)

// Reduce orders transitions by (block, log index) and keeps the last one per
// key. The input slice is not modified.
//
// An add and a remove at the very same position resolve to remove.
func Reduce(ts []model.Transition) map[model.Key]model.MembershipRecord {
	sorted := make([]model.Transition, len(ts))
	copy(sorted, ts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})

	out := make(map[model.Key]model.MembershipRecord, len(sorted))
	for _, t := range sorted {
		rec, seen := out[t.Key]
		if !seen {
			rec = model.MembershipRecord{
				Key:            t.Key.Subject,
				Role:           t.Key.Sub,
				FirstSeenBlock: t.Block,
			}
		}
		rec.Active = t.Kind == model.TransitionAdd
		rec.LastSeenBlock = t.Block
		rec.LastTxHash = t.TxHash
		out[t.Key] = rec
	}
	return out
}

func less(a, b model.Transition) bool {
	if a.Block != b.Block {
		return a.Block < b.Block
	}
	if a.LogIndex != b.LogIndex {
		return a.LogIndex < b.LogIndex
	}
	// removes sort after adds at the same position so they win the fold
	return a.Kind == model.TransitionAdd && b.Kind == model.TransitionRemove
}

// Sorted returns the records ordered by first appearance, then key.
func Sorted(m map[model.Key]model.MembershipRecord) []model.MembershipRecord {
	out := make([]model.MembershipRecord, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeenBlock != out[j].FirstSeenBlock {
			return out[i].FirstSeenBlock < out[j].FirstSeenBlock
		}
		return out[i].MapKey().String() < out[j].MapKey().String()
	})
	return out
}

// Active filters records down to the active ones, keeping order.
func Active(records []model.MembershipRecord) []model.MembershipRecord {
	out := make([]model.MembershipRecord, 0, len(records))
	for _, r := range records {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}
