package conn

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestConnect_EmptyAddrIsDegraded(t *testing.T) {
	m := NewManager(Config{}, nil)
	if got := m.Mode(); got != Uninitialized {
		t.Fatalf("initial mode = %v, want uninitialized", got)
	}
	if got := m.Connect(t.Context()); got != Degraded {
		t.Fatalf("got %v, want degraded", got)
	}
	if m.Client() != nil {
		t.Fatal("Client must be nil when degraded")
	}
}

func TestConnect_Reachable(t *testing.T) {
	mr := miniredis.RunT(t)
	m := NewManager(Config{Addr: mr.Addr()}, nil)
	t.Cleanup(func() { _ = m.Close() })

	if got := m.Connect(t.Context()); got != Connected {
		t.Fatalf("got %v, want connected", got)
	}
	if m.Client() == nil {
		t.Fatal("Client must be set when connected")
	}
	if err := m.Client().Set(t.Context(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("client unusable: %v", err)
	}
}

func TestConnect_URL(t *testing.T) {
	mr := miniredis.RunT(t)
	m := NewManager(Config{Addr: "redis://" + mr.Addr() + "/0"}, nil)
	t.Cleanup(func() { _ = m.Close() })

	if got := m.Connect(t.Context()); got != Connected {
		t.Fatalf("got %v, want connected", got)
	}
}

func TestConnect_InvalidURLIsDegraded(t *testing.T) {
	m := NewManager(Config{Addr: "ftp://nowhere"}, nil)
	if got := m.Connect(t.Context()); got != Degraded {
		t.Fatalf("got %v, want degraded", got)
	}
}

func TestConnect_UnreachableIsDegradedAfterOneRetry(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	m := NewManager(Config{
		Addr:           addr,
		ConnectTimeout: 200 * time.Millisecond,
		Attempts:       5, // clamped to 2
		RetryDelay:     time.Millisecond,
	}, nil)

	start := time.Now()
	if got := m.Connect(t.Context()); got != Degraded {
		t.Fatalf("got %v, want degraded", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("connect took %v, expected a bounded failure", elapsed)
	}
	if m.cfg.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", m.cfg.Attempts)
	}
}

func TestConnect_OnlyFirstCallDials(t *testing.T) {
	m := NewManager(Config{}, nil)
	m.Connect(t.Context())

	mr := miniredis.RunT(t)
	m.cfg.Addr = mr.Addr()
	if got := m.Connect(t.Context()); got != Degraded {
		t.Fatalf("second Connect changed mode to %v", got)
	}
}

func TestModeTransitions(t *testing.T) {
	mr := miniredis.RunT(t)
	m := NewManager(Config{Addr: mr.Addr()}, nil)
	t.Cleanup(func() { _ = m.Close() })

	var mu sync.Mutex
	var seen []string
	m.OnModeChange(func(from, to Mode) {
		mu.Lock()
		seen = append(seen, from.String()+"->"+to.String())
		mu.Unlock()
	})

	m.Connect(t.Context())
	m.MarkLost(errors.New("boom"))
	m.MarkLost(errors.New("again"))

	mu.Lock()
	defer mu.Unlock()
	want := []string{"uninitialized->connecting", "connecting->connected", "connected->degraded"}
	if !slices.Equal(seen, want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	if m.Client() != nil {
		t.Fatal("Client must be nil after the connection is lost")
	}
}

func TestMarkLostIgnoredWhenNotConnected(t *testing.T) {
	m := NewManager(Config{}, nil)
	m.MarkLost(errors.New("boom"))
	if got := m.Mode(); got != Uninitialized {
		t.Fatalf("got %v, want uninitialized", got)
	}
}

func TestWatchDetectsLoss(t *testing.T) {
	mr := miniredis.RunT(t)
	m := NewManager(Config{
		Addr:           mr.Addr(),
		ConnectTimeout: 100 * time.Millisecond,
		WatchInterval:  5 * time.Millisecond,
		WatchFailures:  2,
	}, nil)
	t.Cleanup(func() { _ = m.Close() })

	if m.Connect(t.Context()) != Connected {
		t.Fatal("expected connected")
	}

	done := make(chan struct{})
	go func() {
		m.Watch(t.Context())
		close(done)
	}()

	mr.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not report the lost connection")
	}
	if got := m.Mode(); got != Degraded {
		t.Fatalf("got %v, want degraded", got)
	}
}

func TestWatchReturnsWhenDegraded(t *testing.T) {
	m := NewManager(Config{WatchInterval: time.Millisecond}, nil)
	m.Connect(t.Context())

	done := make(chan struct{})
	go func() {
		m.Watch(t.Context())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch kept running without a connection")
	}
}
