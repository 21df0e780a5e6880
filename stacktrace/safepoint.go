package stacktrace

import "sync/atomic"

// Safepoints tracks whether a thread currently forbids the collector from
// moving or reclaiming memory. The collector reads it from other goroutines.
type Safepoints struct {
	noSafepointDepth atomic.Int32
}

// NoSafepointScope is held for the duration of a raw copy. Scopes nest.
type NoSafepointScope struct {
	s *Safepoints
}

func (s *Safepoints) EnterNoSafepoint() NoSafepointScope {
	s.noSafepointDepth.Add(1)
	return NoSafepointScope{s}
}

func (n NoSafepointScope) Exit() {
	if n.s.noSafepointDepth.Add(-1) < 0 {
		panic("No-safepoint scope exited more times than entered.")
	}
}

// AtSafepoint reports whether the collector may touch this thread's memory.
func (s *Safepoints) AtSafepoint() bool {
	return s.noSafepointDepth.Load() == 0
}
