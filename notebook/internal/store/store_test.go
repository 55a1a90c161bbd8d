package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "notebook.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSchemaTables(t *testing.T) {
	// WHAT: Verify the schema creates all tables without error.
	// WHY: Everything else in the package sits on these tables.
	st := openTestStore(t)
	for _, table := range []string{"documents", "lines", "meta"} {
		var name string
		err := st.DB.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestInsertAndGetDocument(t *testing.T) {
	// WHAT: Insert a document and retrieve it by ID and by name.
	// WHY: Basic CRUD must work before anything is layered on top.
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.InsertDocument(ctx, &Document{Name: "Groceries"})
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}

	got, err := st.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got == nil {
		t.Fatal("document not found after insert")
	}
	if got.Name != "Groceries" {
		t.Errorf("name = %q, want %q", got.Name, "Groceries")
	}
	if got.LastModified == 0 {
		t.Error("last_modified not set on insert")
	}

	byName, err := st.GetDocumentByName(ctx, "Groceries")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName == nil || byName.ID != id {
		t.Errorf("get by name returned %+v, want id %d", byName, id)
	}
}

func TestGetDocumentMissing(t *testing.T) {
	// WHAT: Lookups for absent rows return nil without an error.
	// WHY: Callers distinguish "not found" from real failures by the nil.
	st := openTestStore(t)
	ctx := context.Background()

	doc, err := st.GetDocument(ctx, 42)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc != nil {
		t.Errorf("got %+v, want nil", doc)
	}
}

func TestListDocumentsOrder(t *testing.T) {
	// WHAT: List returns pinned documents first, then by recency.
	// WHY: The list order is the home screen order.
	st := openTestStore(t)
	ctx := context.Background()

	a, _ := st.InsertDocument(ctx, &Document{Name: "old", LastModified: 1000})
	b, _ := st.InsertDocument(ctx, &Document{Name: "new", LastModified: 3000})
	c, _ := st.InsertDocument(ctx, &Document{Name: "pinned old", LastModified: 2000})
	if err := st.SetPinned(ctx, c, true); err != nil {
		t.Fatalf("set pinned: %v", err)
	}

	docs, err := st.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	var ids []int64
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	want := []int64{c, b, a}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("list order mismatch (-want +got):\n%s", diff)
	}
}

func TestCountPinned(t *testing.T) {
	// WHAT: CountPinned tracks the pinned flag.
	// WHY: The pin cap check depends on an accurate count.
	st := openTestStore(t)
	ctx := context.Background()

	a, _ := st.InsertDocument(ctx, &Document{Name: "a"})
	st.InsertDocument(ctx, &Document{Name: "b"})

	n, err := st.CountPinned(ctx)
	if err != nil {
		t.Fatalf("count pinned: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}

	st.SetPinned(ctx, a, true)
	n, _ = st.CountPinned(ctx)
	if n != 1 {
		t.Errorf("count after pin = %d, want 1", n)
	}

	st.SetPinned(ctx, a, false)
	n, _ = st.CountPinned(ctx)
	if n != 0 {
		t.Errorf("count after unpin = %d, want 0", n)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	// WHAT: Deleting a document removes its lines in the same transaction.
	// WHY: Orphaned lines would leak into exports and line queries.
	st := openTestStore(t)
	ctx := context.Background()

	id, _ := st.InsertDocument(ctx, &Document{Name: "doomed"})
	st.InsertLineAt(ctx, id, 0, "1 + 1")
	st.InsertLineAt(ctx, id, 1, "2 + 2")

	if err := st.DeleteDocument(ctx, id); err != nil {
		t.Fatalf("delete document: %v", err)
	}

	doc, _ := st.GetDocument(ctx, id)
	if doc != nil {
		t.Error("document still present after delete")
	}
	lines, _ := st.Lines(ctx, id)
	if len(lines) != 0 {
		t.Errorf("got %d orphaned lines, want 0", len(lines))
	}
}

func TestInsertLineAtShifts(t *testing.T) {
	// WHAT: Inserting at a middle position shifts later lines down.
	// WHY: Positions must stay dense from 0 for positional restore.
	st := openTestStore(t)
	ctx := context.Background()

	id, _ := st.InsertDocument(ctx, &Document{Name: "doc"})
	st.InsertLineAt(ctx, id, 0, "first")
	st.InsertLineAt(ctx, id, 1, "third")
	st.InsertLineAt(ctx, id, 1, "second")

	lines, err := st.Lines(ctx, id)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	var got []string
	for i, ln := range lines {
		if ln.SortOrder != i {
			t.Errorf("line %d has sort_order %d", i, ln.SortOrder)
		}
		got = append(got, ln.Expression)
	}
	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("line order mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertLineAtClamps(t *testing.T) {
	// WHAT: Out-of-range positions clamp to the ends instead of failing.
	// WHY: Callers append with a large position and prepend with -1.
	st := openTestStore(t)
	ctx := context.Background()

	id, _ := st.InsertDocument(ctx, &Document{Name: "doc"})
	st.InsertLineAt(ctx, id, 99, "a")
	st.InsertLineAt(ctx, id, -5, "b")

	lines, _ := st.Lines(ctx, id)
	if len(lines) != 2 || lines[0].Expression != "b" || lines[1].Expression != "a" {
		t.Errorf("unexpected lines after clamped inserts: %+v", lines)
	}
}

func TestRemoveLineClosesGap(t *testing.T) {
	// WHAT: Removing a middle line renumbers the rest.
	// WHY: Dense positions are what positional restore reconciles against.
	st := openTestStore(t)
	ctx := context.Background()

	id, _ := st.InsertDocument(ctx, &Document{Name: "doc"})
	st.InsertLineAt(ctx, id, 0, "a")
	mid, _ := st.InsertLineAt(ctx, id, 1, "b")
	st.InsertLineAt(ctx, id, 2, "c")

	if err := st.RemoveLine(ctx, mid.ID); err != nil {
		t.Fatalf("remove line: %v", err)
	}

	lines, _ := st.Lines(ctx, id)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Expression != "a" || lines[0].SortOrder != 0 {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if lines[1].Expression != "c" || lines[1].SortOrder != 1 {
		t.Errorf("line 1 = %+v", lines[1])
	}
}

func TestRemoveLineMissing(t *testing.T) {
	// WHAT: Removing an absent line is a no-op, not an error.
	// WHY: A second delete of the same line can race in from a retry.
	st := openTestStore(t)
	if err := st.RemoveLine(context.Background(), 404); err != nil {
		t.Errorf("remove missing line: %v", err)
	}
}

func TestUpdateResults(t *testing.T) {
	// WHAT: Batch result updates land on the right rows.
	// WHY: Re-evaluation rewrites every result after each edit.
	st := openTestStore(t)
	ctx := context.Background()

	id, _ := st.InsertDocument(ctx, &Document{Name: "doc"})
	a, _ := st.InsertLineAt(ctx, id, 0, "1 + 1")
	b, _ := st.InsertLineAt(ctx, id, 1, "2 + 2")

	err := st.UpdateResults(ctx, []int64{a.ID, b.ID}, []string{"2", "4"})
	if err != nil {
		t.Fatalf("update results: %v", err)
	}

	lines, _ := st.Lines(ctx, id)
	if lines[0].Result != "2" || lines[1].Result != "4" {
		t.Errorf("results = %q, %q", lines[0].Result, lines[1].Result)
	}

	// Mismatched lengths are rejected before touching the database.
	if err := st.UpdateResults(ctx, []int64{a.ID}, []string{"2", "4"}); err == nil {
		t.Error("mismatched batch accepted")
	}
}

func TestReplaceLines(t *testing.T) {
	// WHAT: ReplaceLines swaps the whole line set atomically.
	// WHY: Import overwrites a document's content in one step.
	st := openTestStore(t)
	ctx := context.Background()

	id, _ := st.InsertDocument(ctx, &Document{Name: "doc"})
	st.InsertLineAt(ctx, id, 0, "stale")

	err := st.ReplaceLines(ctx, id, []string{"x = 1", "x + 1"}, []string{"1", "2"})
	if err != nil {
		t.Fatalf("replace lines: %v", err)
	}

	lines, _ := st.Lines(ctx, id)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Expression != "x = 1" || lines[0].Result != "1" {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if lines[1].SortOrder != 1 {
		t.Errorf("line 1 sort_order = %d", lines[1].SortOrder)
	}
}

func TestRestoreLinesReconciles(t *testing.T) {
	// WHAT: Restore keeps row IDs for positions that survive, appends new
	// rows past the end, and drops extras beyond the snapshot.
	// WHY: Keeping IDs stable lets anything holding a line reference
	// survive an undo.
	st := openTestStore(t)
	ctx := context.Background()

	id, _ := st.InsertDocument(ctx, &Document{Name: "doc"})
	a, _ := st.InsertLineAt(ctx, id, 0, "a")
	st.InsertLineAt(ctx, id, 1, "b")
	st.InsertLineAt(ctx, id, 2, "c")

	// Snapshot has fewer lines: extras drop, survivors keep IDs.
	if err := st.RestoreLines(ctx, id, []string{"a2"}); err != nil {
		t.Fatalf("restore lines: %v", err)
	}
	lines, _ := st.Lines(ctx, id)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0].ID != a.ID {
		t.Errorf("surviving line ID changed: %d != %d", lines[0].ID, a.ID)
	}
	if lines[0].Expression != "a2" || lines[0].Result != "" {
		t.Errorf("line 0 = %+v", lines[0])
	}

	// Snapshot has more lines: missing rows are appended.
	if err := st.RestoreLines(ctx, id, []string{"a3", "b3", "c3"}); err != nil {
		t.Fatalf("restore lines: %v", err)
	}
	lines, _ = st.Lines(ctx, id)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	var got []string
	for _, ln := range lines {
		got = append(got, ln.Expression)
	}
	if diff := cmp.Diff([]string{"a3", "b3", "c3"}, got); diff != "" {
		t.Errorf("expressions mismatch (-want +got):\n%s", diff)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	// WHAT: SetMeta upserts and GetMeta returns "" for unset keys.
	// WHY: The backup timestamp lives here and starts out absent.
	st := openTestStore(t)
	ctx := context.Background()

	v, err := st.GetMeta(ctx, "last_backup_at")
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if v != "" {
		t.Errorf("unset key = %q, want empty", v)
	}

	st.SetMeta(ctx, "last_backup_at", "1000")
	st.SetMeta(ctx, "last_backup_at", "2000")
	v, _ = st.GetMeta(ctx, "last_backup_at")
	if v != "2000" {
		t.Errorf("value = %q, want 2000", v)
	}
}
