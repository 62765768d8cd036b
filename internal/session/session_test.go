package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStore_GetCreatesOnce(t *testing.T) {
	st := NewStore()
	a := st.Get("s1")
	b := st.Get("s1")
	if a != b {
		t.Error("Get returned different sessions for the same ID")
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}
	if a.ID() != "s1" {
		t.Errorf("ID = %q", a.ID())
	}
}

func TestSession_AppendOrdinals(t *testing.T) {
	s := NewStore().Get("s")
	s.Append(RoleUser, "How many vacation days do I have?")
	s.Append(RoleToolResult, `{"remaining_vacation_days":12}`)
	last := s.Append(RoleAssistant, "You have 12 days left.")

	if last.Ordinal != 2 {
		t.Errorf("Ordinal = %d, want 2", last.Ordinal)
	}
	turns := s.Turns()
	for i, turn := range turns {
		if turn.Ordinal != i {
			t.Errorf("turn %d has ordinal %d", i, turn.Ordinal)
		}
	}
	if turns[1].Role != RoleToolResult {
		t.Errorf("turn 1 role = %q", turns[1].Role)
	}

	turns[0].Content = "mutated"
	if s.Turns()[0].Content == "mutated" {
		t.Error("Turns returned shared storage")
	}
}

func TestSession_Window(t *testing.T) {
	s := NewStore().Get("s")
	for i := 0; i < 15; i++ {
		s.Append(RoleUser, fmt.Sprintf("m%d", i))
	}

	w := s.Window(10)
	if len(w) != 10 || w[0].Content != "m5" || w[9].Content != "m14" {
		t.Errorf("Window(10) = %d turns starting %q", len(w), w[0].Content)
	}
	if got := len(s.Window(0)); got != 15 {
		t.Errorf("Window(0) = %d turns, want 15", got)
	}
	if got := len(s.Window(100)); got != 15 {
		t.Errorf("Window(100) = %d turns, want 15", got)
	}
}

func TestStore_Reset(t *testing.T) {
	st := NewStore()
	s := st.Get("s")
	s.Append(RoleUser, "hello")
	st.Reset("s")

	if s.Len() != 0 {
		t.Errorf("Len after reset = %d", s.Len())
	}
	if got := s.Append(RoleUser, "again"); got.Ordinal != 0 {
		t.Errorf("ordinal after reset = %d, want 0", got.Ordinal)
	}
	st.Reset("unknown")
}

func TestStore_ResetWaitsForInFlightQuestion(t *testing.T) {
	st := NewStore()
	s := st.Get("s")

	s.Lock()
	done := make(chan struct{})
	go func() {
		st.Reset("s")
		close(done)
	}()

	s.Append(RoleUser, "q")
	s.Append(RoleAssistant, "a")
	select {
	case <-done:
		t.Fatal("Reset did not wait for the in-flight question")
	case <-time.After(20 * time.Millisecond):
	}
	s.Unlock()
	<-done

	if s.Len() != 0 {
		t.Errorf("Len = %d after reset", s.Len())
	}
}

func TestStore_LookupAndDelete(t *testing.T) {
	st := NewStore()
	if _, err := st.Lookup("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(unknown) = %v", err)
	}
	st.Get("x")
	if err := st.Delete("x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v", err)
	}
}

func TestStore_Prune(t *testing.T) {
	st := NewStore()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	st.Get("old")
	now = now.Add(2 * time.Hour)
	st.Get("fresh")

	if n := st.Prune(time.Hour); n != 1 {
		t.Errorf("Prune = %d, want 1", n)
	}
	if _, err := st.Lookup("old"); !errors.Is(err, ErrNotFound) {
		t.Error("idle session survived Prune")
	}
	if _, err := st.Lookup("fresh"); err != nil {
		t.Error("fresh session was pruned")
	}
}

func TestStore_GetRefreshesLastUsed(t *testing.T) {
	st := NewStore()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	st.Get("s")
	now = now.Add(2 * time.Hour)
	s := st.Get("s")
	if !s.LastUsed().Equal(now) {
		t.Errorf("LastUsed = %v, want %v", s.LastUsed(), now)
	}
	if n := st.Prune(time.Hour); n != 0 {
		t.Errorf("Prune = %d, want 0 for a session just fetched", n)
	}
}

func TestStore_PruneSkipsInFlightQuestion(t *testing.T) {
	st := NewStore()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	s := st.Get("busy")
	s.Lock()
	now = now.Add(2 * time.Hour)

	if n := st.Prune(time.Hour); n != 0 {
		t.Errorf("Prune = %d, want 0 while a question is in flight", n)
	}
	s.Append(RoleUser, "q")
	s.Unlock()

	if got := st.Get("busy"); got != s {
		t.Error("Get returned a new session; history would split")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSessions_Independent(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := st.Get(fmt.Sprintf("s%d", i))
			for j := 0; j < 50; j++ {
				s.Lock()
				s.Append(RoleUser, "q")
				s.Append(RoleAssistant, "a")
				s.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		s, err := st.Lookup(fmt.Sprintf("s%d", i))
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		turns := s.Turns()
		if len(turns) != 100 {
			t.Fatalf("session %d has %d turns, want 100", i, len(turns))
		}
		for j, turn := range turns {
			want := RoleUser
			if j%2 == 1 {
				want = RoleAssistant
			}
			if turn.Role != want || turn.Ordinal != j {
				t.Fatalf("session %d turn %d = %+v", i, j, turn)
			}
		}
	}
}
