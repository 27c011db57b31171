// Package history maintains the server's linear revision log and rebases
// client-submitted edits against it.
package history

import (
	"errors"

	"github.com/avian-editor/avian/internal/protocol"
)

// Sentinel rebase failures, reported to clients verbatim as the "reason"
// field of a failed acknowledgement (spec §6, §7).
var (
	ErrOldRevision    = errors.New("old revision")
	ErrFutureRevision = errors.New("future revision")
	ErrNotImplemented = errors.New("not implemented")
)

// effect is the positional effect of one applied edit: the pre-image and
// post-image of the position it touched. An insert of length L at P
// records (P, P+L); a delete of length L at P records (P+L, P).
type effect struct {
	old int
	new int
}

// History is the revision log: a window of recent edit effects starting at
// firstRev. The current revision is always firstRev + len(entries).
type History struct {
	firstRev uint32
	entries  []effect
}

// New returns an empty History at revision 0.
func New() *History {
	return &History{}
}

// Rev returns the current revision number.
func (h *History) Rev() uint32 {
	return h.firstRev + uint32(len(h.entries))
}

// FirstRev returns the revision of the oldest retained entry.
func (h *History) FirstRev() uint32 {
	return h.firstRev
}

// Transform rebases edit against every entry strictly newer than edit.Rev,
// returning a copy of edit with Pos adjusted. It fails with ErrOldRevision
// if edit.Rev predates FirstRev (the client's base has been forgotten),
// ErrFutureRevision if edit.Rev is ahead of the current revision, and
// ErrNotImplemented if the rebase would require splitting or clipping the
// edit around a range-overlapping prior edit (see spec §9).
func (h *History) Transform(edit protocol.Edit) (protocol.Edit, error) {
	if edit.Rev < h.firstRev {
		return protocol.Edit{}, ErrOldRevision
	}
	if edit.Rev > h.Rev() {
		return protocol.Edit{}, ErrFutureRevision
	}

	delta := edit.Rev - h.firstRev
	pos := edit.Pos

	for _, e := range h.entries[delta:] {
		switch {
		case e.old < pos:
			// Rule 1 — "before": the prior edit's pre-image lies strictly
			// before us. Shift by its net effect on positions.
			pos += e.new - e.old
		case min(e.old, e.new) > pos:
			// Rule 2 — "after": the prior edit lies strictly after us.
			// No effect.
		default:
			// Rule 3 — overlap: deliberately unimplemented, see spec §9.
			return protocol.Edit{}, ErrNotImplemented
		}
	}

	rebased := edit
	rebased.Pos = pos
	return rebased, nil
}


// Record appends the positional effect of edit — which must already have
// been applied to the buffer — to the log, and sets edit.Rev to the
// resulting current revision.
func (h *History) Record(edit *protocol.Edit) {
	var e effect
	switch a := edit.Action.(type) {
	case protocol.Insert:
		e = effect{old: edit.Pos, new: edit.Pos + len(a.Text)}
	case protocol.Delete:
		e = effect{old: edit.Pos + a.Length, new: edit.Pos}
	}
	h.entries = append(h.entries, e)
	edit.Rev = h.Rev()
}

// Acknowledge drops entries from the front until FirstRev() == rev. It is a
// no-op if rev <= FirstRev(). The caller must ensure rev <= Rev().
func (h *History) Acknowledge(rev uint32) {
	if rev <= h.firstRev {
		return
	}
	drop := rev - h.firstRev
	h.entries = h.entries[drop:]
	h.firstRev = rev
}
