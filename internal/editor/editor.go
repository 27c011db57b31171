// Package editor coordinates the piece-table buffer and the revision
// history behind a single logical critical section, and tracks each
// connected client's acknowledgement watermark (spec §4.3).
package editor

import (
	"errors"

	"github.com/avian-editor/avian/internal/history"
	"github.com/avian-editor/avian/internal/piecetable"
	"github.com/avian-editor/avian/internal/protocol"
)

// ErrInvalidIndex is returned when an edit's position (or position+length)
// fails piece-table validation.
var ErrInvalidIndex = errors.New("invalid index")

// Editor owns a PieceTable, a History, and the per-client acknowledgement
// map, and serializes every mutation through its exported methods. It
// holds no lock of its own — spec §5 expects a single caller driving the
// core synchronously; callers that need concurrent access (pkg/server)
// wrap an Editor in their own mutex.
type Editor struct {
	table   *piecetable.Table
	history *history.History
	acks    map[uint64]uint32
}

// New returns an empty Editor: revision 0, empty buffer, no clients.
func New() *Editor {
	return &Editor{
		table:   piecetable.New(),
		history: history.New(),
		acks:    make(map[uint64]uint32),
	}
}

// Connect records clientID's acknowledgement as the current revision and
// returns that revision together with the full materialized buffer. A
// duplicate connect for the same id overwrites the prior entry.
func (e *Editor) Connect(clientID uint64) (rev uint32, text string) {
	rev = e.history.Rev()
	e.acks[clientID] = rev
	return rev, e.table.Render()
}

// Disconnect removes clientID's entry, then trims History down to the
// minimum acknowledgement across whatever clients remain — or, if none
// remain, down to the current revision, discarding the entire log.
func (e *Editor) Disconnect(clientID uint64) {
	delete(e.acks, clientID)
	if min, ok := e.minAck(); ok {
		e.history.Acknowledge(min)
	} else {
		e.history.Acknowledge(e.history.Rev())
	}
}

// Edit routes a client-submitted edit through acknowledgement, transform,
// validation, and application, returning the canonical edit (with its
// server-assigned revision) for broadcast. An edit based on a revision
// ahead of the current one is rejected before any state is touched. On any
// other error the buffer and the revision are left unchanged, but the
// client's acknowledgement has already been set to edit.Rev and History
// trimmed to the new minimum acknowledgement.
func (e *Editor) Edit(clientID uint64, edit protocol.Edit) (protocol.Edit, error) {
	if edit.Rev > e.history.Rev() {
		return protocol.Edit{}, history.ErrFutureRevision
	}
	e.acks[clientID] = edit.Rev
	min, _ := e.minAck()
	e.history.Acknowledge(min)

	rebased, err := e.history.Transform(edit)
	if err != nil {
		return protocol.Edit{}, err
	}

	switch a := rebased.Action.(type) {
	case protocol.Insert:
		if !e.table.ValidIndex(rebased.Pos) {
			return protocol.Edit{}, ErrInvalidIndex
		}
		e.table.Insert(rebased.Pos, a.Text)
	case protocol.Delete:
		if a.Length <= 0 || !e.table.ValidIndex(rebased.Pos) || !e.table.ValidIndex(rebased.Pos+a.Length) {
			return protocol.Edit{}, ErrInvalidIndex
		}
		e.table.Delete(rebased.Pos, a.Length)
	}

	e.history.Record(&rebased)
	return rebased, nil
}

// Status returns the current revision and full materialized buffer.
func (e *Editor) Status() (rev uint32, text string) {
	return e.history.Rev(), e.table.Render()
}

// Buffer returns the full materialized buffer.
func (e *Editor) Buffer() string {
	return e.table.Render()
}

// Len returns the length in bytes of the current buffer, without
// materializing it — used by callers that only need to size-check an
// incoming edit.
func (e *Editor) Len() int {
	return e.table.Len()
}

// minAck returns the minimum acknowledged revision across all connected
// clients, or ok=false if there are none.
func (e *Editor) minAck() (min uint32, ok bool) {
	first := true
	for _, rev := range e.acks {
		if first || rev < min {
			min = rev
			first = false
		}
	}
	return min, !first
}
