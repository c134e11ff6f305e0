// Package tracker derives pending changes from a set of rows.
//
// Every row lands in exactly one bucket, checked in this order:
//   - deleted lifecycle → Deleted
//   - IsNew → New
//   - IsDirty and an independent equivalence re-check agree → Modified
//   - otherwise omitted
package tracker

import (
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/rowstate"
)

// Modification is a pending update of an existing record.
type Modification struct {
	Original record.Record `json:"original"`
	Updated  record.Record `json:"updated"`
}

// Deletion is a pending soft-removed record.
type Deletion struct {
	ID   string        `json:"id"`
	Data record.Record `json:"data"`
}

// ChangeSet is the partition of rows into pending changes.
//
// NewKeys and ModifiedKeys are parallel to New and Modified and hold the
// row keys the entries came from.
type ChangeSet struct {
	New      []record.Record `json:"new"`
	Modified []Modification  `json:"modified"`
	Deleted  []Deletion      `json:"deleted"`

	NewKeys      []string `json:"-"`
	ModifiedKeys []string `json:"-"`
}

// Empty reports whether nothing is pending at all.
func (cs ChangeSet) Empty() bool {
	return len(cs.New) == 0 && len(cs.Modified) == 0 && len(cs.Deleted) == 0
}

// Committable reports whether a batch commit has anything to send.
// Pending deletions alone are not committable.
func (cs ChangeSet) Committable() bool {
	return len(cs.New) > 0 || len(cs.Modified) > 0
}

// Keys returns the keys of New followed by Modified.
func (cs ChangeSet) Keys() []string {
	out := make([]string, 0, len(cs.NewKeys)+len(cs.ModifiedKeys))
	out = append(out, cs.NewKeys...)
	return append(out, cs.ModifiedKeys...)
}

// Bucket names a ChangeSet partition.
type Bucket int

const (
	BucketNone Bucket = iota
	BucketNew
	BucketModified
	BucketDeleted
)

// String returns the bucket name.
func (b Bucket) String() string {
	switch b {
	case BucketNew:
		return "new"
	case BucketModified:
		return "modified"
	case BucketDeleted:
		return "deleted"
	default:
		return "none"
	}
}

// Classify returns the bucket row belongs to.
//
// The dirty flag is not trusted on its own: a row counts as modified only
// when the flag and a fresh comparison of Current against Original agree.
func Classify(row rowstate.Row) Bucket {
	switch {
	case row.Lifecycle == rowstate.Deleted:
		return BucketDeleted
	case row.IsNew:
		return BucketNew
	case row.IsDirty && !record.Equal(row.Current, row.Original):
		return BucketModified
	default:
		return BucketNone
	}
}

// Track partitions rows into a ChangeSet. Records are deep copies.
func Track(rows []rowstate.Row) ChangeSet {
	var cs ChangeSet
	for _, row := range rows {
		switch Classify(row) {
		case BucketDeleted:
			cs.Deleted = append(cs.Deleted, Deletion{ID: row.Key, Data: row.Original.Clone()})
		case BucketNew:
			cs.New = append(cs.New, row.Current.Clone())
			cs.NewKeys = append(cs.NewKeys, row.Key)
		case BucketModified:
			cs.Modified = append(cs.Modified, Modification{
				Original: row.Original.Clone(),
				Updated:  row.Current.Clone(),
			})
			cs.ModifiedKeys = append(cs.ModifiedKeys, row.Key)
		}
	}
	return cs
}

// HasPendingChanges reports whether any row is new, modified or deleted.
// It stops at the first match.
func HasPendingChanges(rows []rowstate.Row) bool {
	for _, row := range rows {
		if Classify(row) != BucketNone {
			return true
		}
	}
	return false
}

// Summary counts pending changes.
type Summary struct {
	New      int `json:"new" yaml:"new"`
	Modified int `json:"modified" yaml:"modified"`
	Deleted  int `json:"deleted" yaml:"deleted"`
}

// Total returns the number of pending changes.
func (s Summary) Total() int {
	return s.New + s.Modified + s.Deleted
}

// Summarize counts rows per bucket without copying records.
func Summarize(rows []rowstate.Row) Summary {
	var s Summary
	for _, row := range rows {
		switch Classify(row) {
		case BucketNew:
			s.New++
		case BucketModified:
			s.Modified++
		case BucketDeleted:
			s.Deleted++
		}
	}
	return s
}
