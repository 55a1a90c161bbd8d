package watch

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_modified INTEGER NOT NULL
	)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMaxColumnDetector(t *testing.T) {
	// WHAT: The detector token moves when the watched column's max moves.
	// WHY: This is how the notifier sees same-connection writes.
	db := openTestDB(t)
	ctx := context.Background()
	det := MaxColumnDetector("documents", "last_modified")

	v0, err := det(ctx, db)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	if v0 != 0 {
		t.Errorf("empty table token = %d, want 0", v0)
	}

	db.Exec(`INSERT INTO documents (last_modified) VALUES (1000)`)
	v1, _ := det(ctx, db)
	if v1 != 1000 {
		t.Errorf("token = %d, want 1000", v1)
	}
}

func TestDocumentActivityCountsDeletes(t *testing.T) {
	// WHAT: The activity token moves on delete even when MAX(last_modified)
	// does not.
	// WHY: Deleting the newest document must still wake subscribers.
	db := openTestDB(t)
	ctx := context.Background()

	db.Exec(`INSERT INTO documents (last_modified) VALUES (1000)`)
	db.Exec(`INSERT INTO documents (last_modified) VALUES (500)`)
	v0, err := DocumentActivity(ctx, db)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}

	db.Exec(`DELETE FROM documents WHERE last_modified = 500`)
	v1, _ := DocumentActivity(ctx, db)
	if v1 == v0 {
		t.Error("token unchanged after delete")
	}
}

func TestNotifierBroadcast(t *testing.T) {
	// WHAT: A database write reaches every subscriber as an event.
	// WHY: Fan-out is the notifier's entire job.
	db := openTestDB(t)
	n := NewNotifier(db, Options{
		Interval: 10 * time.Millisecond,
		Detector: MaxColumnDetector("documents", "last_modified"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	ch1, cancel1 := n.Subscribe()
	defer cancel1()
	ch2, cancel2 := n.Subscribe()
	defer cancel2()

	// Let the loop seed its initial version before writing.
	time.Sleep(50 * time.Millisecond)
	db.Exec(`INSERT INTO documents (last_modified) VALUES (1234)`)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Version != 1234 {
				t.Errorf("subscriber %d: version = %d, want 1234", i, ev.Version)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d: no event", i)
		}
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	// WHAT: Cancelling a subscription closes its channel and drops it
	// from the stats, and a double cancel is harmless.
	// WHY: SSE handlers unsubscribe on every client disconnect.
	db := openTestDB(t)
	n := NewNotifier(db, Options{Interval: time.Hour})

	ch, cancel := n.Subscribe()
	if n.Stats().Subscribers != 1 {
		t.Fatalf("subscribers = %d, want 1", n.Stats().Subscribers)
	}
	cancel()
	cancel()
	if n.Stats().Subscribers != 0 {
		t.Errorf("subscribers = %d, want 0", n.Stats().Subscribers)
	}
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
}

func TestNotifierDebounce(t *testing.T) {
	// WHAT: A burst of writes inside the debounce window delivers one
	// event, not one per write.
	// WHY: Re-evaluation touches several rows; subscribers want the
	// settled state.
	db := openTestDB(t)
	n := NewNotifier(db, Options{
		Interval: 10 * time.Millisecond,
		Debounce: 150 * time.Millisecond,
		Detector: MaxColumnDetector("documents", "last_modified"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)
	ch, unsub := n.Subscribe()
	defer unsub()

	time.Sleep(50 * time.Millisecond)
	for i := int64(1); i <= 5; i++ {
		db.Exec(`INSERT INTO documents (last_modified) VALUES (?)`, i*1000)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case ev := <-ch:
		if ev.Version != 5000 {
			t.Errorf("version = %d, want settled 5000", ev.Version)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after debounce window")
	}

	select {
	case ev := <-ch:
		t.Errorf("extra event delivered: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}
