package views

import (
	"github.com/jwalitptl/ehr-chainview/internal/merger"
	"github.com/jwalitptl/ehr-chainview/internal/model"
)

// UpdateRow returns a copy of rows with fn applied to the row under key.
// It is used to build optimistic changes, which must not modify the
// displayed slice.
func UpdateRow[P any](key model.Key, fn func(merger.Row[P]) merger.Row[P]) func(Rows[P]) Rows[P] {
	return func(rows Rows[P]) Rows[P] {
		out := make(Rows[P], len(rows))
		copy(out, rows)
		for i, r := range out {
			if r.MapKey() == key {
				out[i] = fn(r)
			}
		}
		return out
	}
}

// SetActive is an optimistic change flipping one row's active flag.
func SetActive[P any](key model.Key, active bool) func(Rows[P]) Rows[P] {
	return UpdateRow(key, func(r merger.Row[P]) merger.Row[P] {
		r.Active = active
		return r
	})
}

// AppendRow is an optimistic change adding a row when the key is not
// listed yet, or activating it otherwise.
func AppendRow[P any](key model.Key, profile *P) func(Rows[P]) Rows[P] {
	return func(rows Rows[P]) Rows[P] {
		for _, r := range rows {
			if r.MapKey() == key {
				return SetActive[P](key, true)(rows)
			}
		}
		out := make(Rows[P], len(rows), len(rows)+1)
		copy(out, rows)
		return append(out, merger.Row[P]{
			MembershipRecord: model.MembershipRecord{Key: key.Subject, Role: key.Sub, Active: true},
			Profile:          profile,
		})
	}
}

// Find returns the row under key.
func Find[P any](rows Rows[P], key model.Key) (merger.Row[P], bool) {
	for _, r := range rows {
		if r.MapKey() == key {
			return r, true
		}
	}
	return merger.Row[P]{}, false
}
