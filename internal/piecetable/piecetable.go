// Package piecetable implements an append-only piece table text buffer.
//
// Text is never copied in place: every insertion appends to a single
// growing byte buffer and only the piece list — the ordered sequence of
// (offset, length) slices into that buffer — is mutated. Deleted text
// keeps its space in the buffer until a future (unimplemented) compaction
// pass.
package piecetable

import "unicode/utf8"

// piece is a slice (offset, length) into Table.buffer.
type piece struct {
	offset int
	length int
}

// Table is a piece-table text buffer. The zero value is not usable; use New.
type Table struct {
	buffer []byte
	pieces []piece
}

// New returns an empty Table.
func New() *Table {
	return &Table{pieces: []piece{{0, 0}}}
}

// FromString returns a Table whose initial content is s, stored as a single
// piece over a buffer containing exactly s.
func FromString(s string) *Table {
	return &Table{
		buffer: []byte(s),
		pieces: []piece{{0, len(s)}},
	}
}

// Len returns the length in bytes of the logical text.
func (t *Table) Len() int {
	n := 0
	for _, p := range t.pieces {
		n += p.length
	}
	return n
}

// Render materializes the full logical text.
func (t *Table) Render() string {
	buf := make([]byte, 0, t.Len())
	for _, p := range t.pieces {
		buf = append(buf, t.buffer[p.offset:p.offset+p.length]...)
	}
	return string(buf)
}

// ValidIndex reports whether pos lies within [0, Len()] and on a UTF-8
// character boundary in the logical text. Zero and Len() are always
// boundaries.
func (t *Table) ValidIndex(pos int) bool {
	if pos < 0 {
		return false
	}
	idx, cumLen, ok := t.pieceIndexInsert(pos)
	if !ok {
		return false
	}
	p := t.pieces[idx]
	offsetInPiece := p.length - (cumLen - pos)
	bufOffset := p.offset + offsetInPiece
	if bufOffset >= len(t.buffer) {
		return true
	}
	return utf8.RuneStart(t.buffer[bufOffset])
}

// pieceIndexInsert returns the index of the piece containing logical offset
// pos, and the cumulative length through that piece (inclusive), for the
// purposes of insertion: a piece ending exactly at pos counts as containing
// it, so that the length of the buffer is always a valid insertion point.
func (t *Table) pieceIndexInsert(pos int) (idx, cumLen int, ok bool) {
	sum := 0
	for i, p := range t.pieces {
		sum += p.length
		if sum >= pos {
			return i, sum, true
		}
	}
	return 0, 0, false
}

// pieceIndexDelete is like pieceIndexInsert, but a piece ending exactly at
// pos does not count as containing it — this is what distinguishes deletion
// at a piece boundary from insertion there.
func (t *Table) pieceIndexDelete(pos int) (idx, cumLen int, ok bool) {
	sum := 0
	for i, p := range t.pieces {
		sum += p.length
		if sum > pos {
			return i, sum, true
		}
	}
	return 0, 0, false
}

// Insert inserts text immediately before the byte at pos. pos == Len()
// appends. The caller must ensure ValidIndex(pos) beforehand: Insert panics
// if pos is past the end of the text, and does not check character
// boundaries.
func (t *Table) Insert(pos int, text string) {
	base := len(t.buffer)
	t.buffer = append(t.buffer, text...)

	idx, cumLen, ok := t.pieceIndexInsert(pos)
	if !ok {
		panic("piecetable: insert at invalid index")
	}

	isEndOfPiece := pos == cumLen
	isEndOfBuffer := t.pieces[idx].offset+t.pieces[idx].length == base

	// Extend-last-piece: appending right after the region we last wrote.
	if isEndOfBuffer && isEndOfPiece {
		t.pieces[idx].length += len(text)
		return
	}

	extra := piece{offset: base, length: len(text)}

	// Append-piece: inserting at the boundary between two pieces.
	if isEndOfPiece {
		t.pieces = insertPiece(t.pieces, idx+1, extra)
		return
	}

	// Split-piece: pos falls strictly inside piece idx.
	overhead := cumLen - pos
	t.pieces[idx].length -= overhead
	after := piece{offset: t.pieces[idx].offset + t.pieces[idx].length, length: overhead}
	t.pieces = insertPiece(t.pieces, idx+1, extra)
	t.pieces = insertPiece(t.pieces, idx+2, after)
}

// Delete removes the length bytes starting at pos. The caller must ensure
// length > 0 and ValidIndex(pos) && ValidIndex(pos+length) beforehand:
// Delete panics if the range runs past the end of the text, and checks
// neither the length nor character boundaries.
func (t *Table) Delete(pos, length int) {
	idx, end, ok := t.pieceIndexDelete(pos)
	if !ok {
		panic("piecetable: delete at invalid index")
	}

	p := t.pieces[idx]
	overlap := pos+length > end
	endOfPiece := pos+length == end
	startOfPiece := pos == end-p.length

	if startOfPiece {
		switch {
		case endOfPiece:
			t.pieces = removePiece(t.pieces, idx)
		case overlap:
			removedLen := p.length
			t.pieces = removePiece(t.pieces, idx)
			t.Delete(pos, length-removedLen)
		default:
			t.pieces[idx].offset += length
			t.pieces[idx].length -= length
		}
		t.emptyCheck()
		return
	}

	if endOfPiece {
		t.pieces[idx].length -= length
		return
	}

	overhead := end - pos
	t.pieces[idx].length -= overhead
	if overlap {
		t.Delete(pos, length-overhead)
		t.emptyCheck()
		return
	}

	after := piece{offset: t.pieces[idx].offset + t.pieces[idx].length + length, length: overhead - length}
	t.pieces = insertPiece(t.pieces, idx+1, after)
}

// emptyCheck restores invariant I1 (pieces is never empty) after a deletion
// that could have removed the last piece.
func (t *Table) emptyCheck() {
	if len(t.pieces) == 0 {
		t.pieces = []piece{{0, 0}}
	}
}

func insertPiece(pieces []piece, at int, p piece) []piece {
	pieces = append(pieces, piece{})
	copy(pieces[at+1:], pieces[at:])
	pieces[at] = p
	return pieces
}

func removePiece(pieces []piece, at int) []piece {
	return append(pieces[:at], pieces[at+1:]...)
}
