package session

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"keyword-notifier/pkg/notifier"
)

func TestManagerStartIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(nil)
	defer f.hub.Close()
	m := NewManager(f.cfg)
	defer m.CloseAll()

	s1, err := m.Start("alice")
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.Start("alice")
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Error("Start returned a different session for a running subscriber")
	}
	if _, err := m.Start("bob"); err != nil {
		t.Fatal(err)
	}
	if n := m.Len(); n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}

	got, ok := m.Get("alice")
	if !ok || got != s1 {
		t.Error("Get(alice) did not return the running session")
	}
	if _, ok := m.Get("carol"); ok {
		t.Error("Get(carol) found a session")
	}
}

func TestManagerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(nil)
	defer f.hub.Close()
	m := NewManager(f.cfg)
	defer m.CloseAll()

	s, err := m.Start("alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close("alice"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if st := s.State(); st != StateClosed {
		t.Errorf("state = %s, want closed", st)
	}
	if _, ok := m.Get("alice"); ok {
		t.Error("closed session still registered")
	}
	if err := m.Close("alice"); !errors.Is(err, notifier.ErrNotFound) {
		t.Errorf("Close(unknown) error = %v, want ErrNotFound", err)
	}

	restarted, err := m.Start("alice")
	if err != nil {
		t.Fatal(err)
	}
	if restarted == s {
		t.Error("Start after Close reused the closed session")
	}
}

func TestManagerCloseAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(nil)
	defer f.hub.Close()
	m := NewManager(f.cfg)

	var sessions []*Session
	for _, id := range []string{"a", "b", "c"} {
		s, err := m.Start(id)
		if err != nil {
			t.Fatal(err)
		}
		sessions = append(sessions, s)
	}

	m.CloseAll()

	for _, s := range sessions {
		if st := s.State(); st != StateClosed {
			t.Errorf("session %s state = %s", s.SubscriberID(), st)
		}
	}
	if n := m.Len(); n != 0 {
		t.Errorf("Len() = %d after CloseAll", n)
	}
	if _, err := m.Start("d"); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Start after CloseAll error = %v, want ErrManagerClosed", err)
	}
}

func TestManagerStartErrors(t *testing.T) {
	f := newFixture(nil)
	defer f.hub.Close()

	m := NewManager(f.cfg)
	if _, err := m.Start(""); !notifier.IsValidation(err) {
		t.Errorf("Start(\"\") error = %v, want validation error", err)
	}

	f.cfg.Bus = failingBus{}
	m = NewManager(f.cfg)
	if _, err := m.Start("alice"); err == nil {
		t.Error("Start succeeded without a subscription")
	}
	if _, ok := m.Get("alice"); ok {
		t.Error("failed session registered")
	}
}

func TestManagerReplacesSessionWhoseLoopExited(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(nil)
	defer f.hub.Close()
	m := NewManager(f.cfg)
	defer m.CloseAll()

	stale, err := m.Start("alice")
	if err != nil {
		t.Fatal(err)
	}

	// The transport drops the subscription under a running session.
	if err := stale.consumer.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-stale.t.Dead():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after its consumer closed")
	}
	if stale.Alive() {
		t.Error("Alive() = true after the loop exited")
	}

	fresh, err := m.Start("alice")
	if err != nil {
		t.Fatal(err)
	}
	if fresh == stale {
		t.Fatal("Start returned the session whose loop had exited")
	}
	if !fresh.Alive() {
		t.Errorf("new session state = %s, alive = false", fresh.State())
	}
	if st := stale.State(); st != StateClosed {
		t.Errorf("stale session state = %s, want closed", st)
	}
	if got, _ := m.Get("alice"); got != fresh {
		t.Error("Get(alice) did not return the replacement session")
	}
}
