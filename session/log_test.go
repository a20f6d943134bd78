package session

import (
	"fmt"
	"sync"
	"testing"

	"keyword-notifier/pkg/notifier"
)

func TestLogAppend(t *testing.T) {
	l := NewLog()
	c1 := &notifier.Content{ID: "c-1", Title: "one", Keywords: []string{"a"}}
	c2 := &notifier.Content{ID: "c-2", Title: "two", Keywords: []string{"a"}}

	if !l.Append("a", c1) {
		t.Error("first append reported duplicate")
	}
	if l.Append("a", c1) {
		t.Error("repeated append reported new")
	}
	if !l.Append("a", c2) {
		t.Error("append of second item reported duplicate")
	}
	if !l.Append("b", c1) {
		t.Error("same content under another phrase reported duplicate")
	}
	if l.Append("a", nil) {
		t.Error("nil content appended")
	}

	if n := l.Len("a"); n != 2 {
		t.Errorf("Len(a) = %d, want 2", n)
	}
	if n := l.Len("b"); n != 1 {
		t.Errorf("Len(b) = %d, want 1", n)
	}

	snap := l.Snapshot()
	if got := ids(snap["a"]); len(got) != 2 || got[0] != "c-1" || got[1] != "c-2" {
		t.Errorf("snapshot[a] = %v, want insertion order", got)
	}
}

func TestLogSnapshotIsIndependent(t *testing.T) {
	l := NewLog()
	c := &notifier.Content{ID: "c-1", Title: "original", Keywords: []string{"x"}}
	l.Append("x", c)

	// Neither the appended value nor a snapshot aliases the stored entry.
	c.Title = "mutated by caller"
	snap := l.Snapshot()
	snap["x"][0].Keywords[0] = "changed"
	snap["x"] = append(snap["x"], &notifier.Content{ID: "c-2"})

	again := l.Snapshot()
	if len(again["x"]) != 1 {
		t.Fatalf("log grew through snapshot: %d entries", len(again["x"]))
	}
	if again["x"][0].Title != "original" || again["x"][0].Keywords[0] != "x" {
		t.Errorf("stored entry changed: %+v", again["x"][0])
	}
}

func TestLogClear(t *testing.T) {
	l := NewLog()
	c := &notifier.Content{ID: "c-1"}
	l.Append("x", c)
	l.Clear()

	if n := len(l.Snapshot()); n != 0 {
		t.Errorf("snapshot after Clear has %d phrases", n)
	}
	if !l.Append("x", c) {
		t.Error("append after Clear reported duplicate")
	}
}

func TestLogConcurrentAppendAndSnapshot(t *testing.T) {
	l := NewLog()
	const writers, perWriter = 4, 200

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				l.Append("p", &notifier.Content{ID: fmt.Sprintf("%d-%d", w, i)})
			}
		}()
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				for _, c := range l.Snapshot()["p"] {
					if c == nil || c.ID == "" {
						t.Error("snapshot returned a corrupt entry")
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	if n := l.Len("p"); n != writers*perWriter {
		t.Errorf("Len(p) = %d, want %d", n, writers*perWriter)
	}
}
