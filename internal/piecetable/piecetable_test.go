package piecetable

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromStringRenders(t *testing.T) {
	tbl := FromString("hello")
	if got := tbl.Render(); got != "hello" {
		t.Fatalf("Render() = %q, want %q", got, "hello")
	}
}

func TestInsertAppend(t *testing.T) {
	tbl := New()
	tbl.Insert(0, "This is a test.")
	if got, want := tbl.Render(), "This is a test."; got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestInsertMiddleSplitsPiece(t *testing.T) {
	tbl := FromString("This is a test.")
	tbl.Insert(8, "not ")
	if got, want := tbl.Render(), "This is not a test."; got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestDeleteStartOfPiece(t *testing.T) {
	tbl := FromString("hello world")
	tbl.Delete(0, 6)
	if got, want := tbl.Render(), "world"; got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestDeleteMiddleOfPiece(t *testing.T) {
	tbl := FromString("This is a test.")
	tbl.Delete(12, 1)
	if got, want := tbl.Render(), "This is a tst."; got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestDeleteAcrossPieces(t *testing.T) {
	tbl := FromString("This is a tst.")
	tbl.Insert(12, "x")
	tbl.Delete(0, 8)
	if got, want := tbl.Render(), "a text."; got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

// TestSingleClientFourEdits reproduces the documented sequence of edits applied
// directly against a PieceTable, independent of Editor/History.
func TestSingleClientFourEdits(t *testing.T) {
	tbl := New()
	steps := []struct {
		op   func()
		want string
	}{
		{func() { tbl.Insert(0, "This is a test.") }, "This is a test."},
		{func() { tbl.Delete(12, 1) }, "This is a tst."},
		{func() { tbl.Insert(12, "x") }, "This is a text."},
		{func() { tbl.Delete(0, 8) }, "a text."},
	}
	for i, step := range steps {
		step.op()
		if got := tbl.Render(); got != step.want {
			t.Fatalf("step %d: Render() = %q, want %q", i, got, step.want)
		}
	}
}

// TestPieceTableStress walks the §8 scenario 3 sequence of deletes.
func TestPieceTableStress(t *testing.T) {
	tbl := FromString("the quick brown fox jumps over the lazy dog")

	deletes := []struct{ pos, length int }{
		{3, 1}, {8, 1}, {4, 10}, {0, 4},
	}
	for _, d := range deletes {
		tbl.Delete(d.pos, d.length)
	}
	if got, want := tbl.Render(), "fox jumps over the lazy dog"; got != want {
		t.Fatalf("after initial deletes: Render() = %q, want %q", got, want)
	}

	for {
		text := tbl.Render()
		idx := -1
		for i := len(text) - 1; i >= 0; i-- {
			if text[i] == ' ' {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}
		tbl.Delete(idx, 1)
	}
	if got, want := tbl.Render(), "foxjumpsoverthelazydog"; got != want {
		t.Fatalf("after removing spaces: Render() = %q, want %q", got, want)
	}

	tbl.Delete(2, 19)
	if got, want := tbl.Render(), "fog"; got != want {
		t.Fatalf("after final delete: Render() = %q, want %q", got, want)
	}
}

// TestUnicodeBoundary reproduces §8 scenario 4.
func TestUnicodeBoundary(t *testing.T) {
	tbl := FromString("ä")
	cases := map[int]bool{0: true, 1: false, 2: true}
	for pos, want := range cases {
		if got := tbl.ValidIndex(pos); got != want {
			t.Errorf("ValidIndex(%d) = %v, want %v", pos, got, want)
		}
	}
}

func TestValidIndexOutOfRange(t *testing.T) {
	tbl := FromString("abc")
	if tbl.ValidIndex(-1) {
		t.Error("ValidIndex(-1) = true, want false")
	}
	if tbl.ValidIndex(4) {
		t.Error("ValidIndex(4) = true, want false")
	}
	if !tbl.ValidIndex(3) {
		t.Error("ValidIndex(len) = false, want true")
	}
}

// TestInsertDeleteInverse is round-trip law R1: insert then delete the same
// span restores the original rendering.
func TestInsertDeleteInverse(t *testing.T) {
	original := "The quick brown fox."
	tbl := FromString(original)
	tbl.Insert(10, "very slow ")
	tbl.Delete(10, len("very slow "))
	if got := tbl.Render(); got != original {
		t.Fatalf("Render() after insert/delete round trip = %q, want %q", got, original)
	}
}

// TestRenderMatchesNaiveModel is a lightweight property test (P3): random
// insert/delete sequences applied to a Table must match the same sequence
// applied to a plain Go string.
func TestRenderMatchesNaiveModel(t *testing.T) {
	tbl := New()
	naive := ""

	apply := func(pos int, text string) {
		tbl.Insert(pos, text)
		naive = naive[:pos] + text + naive[pos:]
	}
	remove := func(pos, length int) {
		tbl.Delete(pos, length)
		naive = naive[:pos] + naive[pos+length:]
	}

	apply(0, "abcdef")
	apply(3, "XYZ")
	remove(0, 2)
	apply(len(naive), "!")
	remove(1, 3)

	if diff := cmp.Diff(naive, tbl.Render()); diff != "" {
		t.Fatalf("Render() mismatch (-naive +table):\n%s", diff)
	}
}

func TestLenTracksRender(t *testing.T) {
	tbl := FromString("hello")
	tbl.Insert(5, " world")
	if got, want := tbl.Len(), len("hello world"); got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}
