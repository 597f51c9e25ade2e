package aggregator

// PendingIDs is the ordered list of log entry ids whose contribution
// has been folded into the Aggregator but not yet acknowledged. Every
// id in the list corresponds to at least one delta still resident in
// the Aggregator or currently being flushed.
type PendingIDs struct {
	ids []string
}

// NewPendingIDs returns an empty PendingIDs list.
func NewPendingIDs() *PendingIDs {
	return &PendingIDs{}
}

// Append records a newly folded entry's id.
func (p *PendingIDs) Append(id string) {
	p.ids = append(p.ids, id)
}

// Len reports how many ids are currently outstanding.
func (p *PendingIDs) Len() int { return len(p.ids) }

// Snapshot returns the current id list and clears it, mirroring the
// flush coordinator's drain-then-clear step. The returned slice is the
// caller's to keep: the list hands over its backing array and starts
// empty again.
func (p *PendingIDs) Snapshot() []string {
	ids := p.ids
	p.ids = nil
	return ids
}

// PrependBack restores a previously snapshotted id list to the front
// of the pending set, used on total flush failure so the ids remain
// outstanding ahead of anything folded since the snapshot was taken.
func (p *PendingIDs) PrependBack(ids []string) {
	if len(ids) == 0 {
		return
	}
	p.ids = append(append([]string{}, ids...), p.ids...)
}
