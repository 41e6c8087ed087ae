package docstore

// ChangeKind classifies one document change between two snapshots.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one document that entered, changed within, or left a query result.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// Snapshot is the full ordered result of a live query plus the changes that
// produced it. The first snapshot of a subscription reports every document as added.
type Snapshot struct {
	Docs    []Document
	Changes []Change
}

// Len returns the number of documents in the snapshot.
func (s Snapshot) Len() int { return len(s.Docs) }

// SnapshotFunc receives live query deliveries. Exactly one of snap or err is meaningful.
type SnapshotFunc func(snap Snapshot, err error)

// Unsubscribe disposes a live subscription. It is idempotent.
type Unsubscribe func()

// diffDocs computes changes from prev (id -> last delivered doc) to next.
// It returns the changes and the index to keep for the next round.
func diffDocs(prev map[string]Document, next []Document) ([]Change, map[string]Document) {
	idx := make(map[string]Document, len(next))
	var changes []Change

	for _, d := range next {
		idx[d.ID] = d
		old, ok := prev[d.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: ChangeAdded, Doc: d})
		case old.Rev != d.Rev:
			changes = append(changes, Change{Kind: ChangeModified, Doc: d})
		}
	}
	for id, d := range prev {
		if _, ok := idx[id]; !ok {
			changes = append(changes, Change{Kind: ChangeRemoved, Doc: d})
		}
	}
	return changes, idx
}
