package store

import (
	"context"
	"time"
)

// Start launches the background sweeper. It is a no-op if the sweeper is
// already running. The sweeper stops when ctx is done or Stop is called.
func (s *Store) Start(ctx context.Context) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.sweepLoop(ctx, s.stopCh, s.doneCh)
}

// Stop halts the sweeper and waits for it to exit. Safe to call multiple
// times and when the sweeper was never started.
func (s *Store) Stop() {
	s.sweepMu.Lock()
	stop, done := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.sweepMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Store) sweepLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && s.cfg.OnEvict != nil {
				s.cfg.OnEvict(n)
			}
		}
	}
}

// Sweep removes every expired entry and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.items {
		if e.expired(now) {
			delete(s.items, k)
			n++
		}
	}
	return n
}
