package stacktrace

import "github.com/sirupsen/logrus"

type Strategy int

const (
	// EagerSync counts the frames, then collects into exactly sized storage.
	EagerSync Strategy = iota
	// LazySync collects in one pass into a growable buffer.
	LazySync
	// CausalAsyncDeferred captures the synchronous leaf and links it to the
	// chain recorded when the current asynchronous task was started.
	CausalAsyncDeferred
)

func (s Strategy) String() string {
	switch s {
	case EagerSync:
		return "eager-sync"
	case LazySync:
		return "lazy-sync"
	case CausalAsyncDeferred:
		return "causal-async"
	default:
		return "unknown"
	}
}

// SelectStrategy decides how the next capture on thread is performed. The
// decision is remade on every call.
func SelectStrategy(thread Thread, cfg Config) Strategy {
	if cfg.CausalAsyncStacks && thread.AsyncCause() != nil {
		return CausalAsyncDeferred
	}
	if cfg.LazyAsyncStacks {
		return LazySync
	}
	return EagerSync
}

func syncStackTrace(thread Thread, cfg Config, skip int) *Snapshot {
	if cfg.LazyAsyncStacks {
		return currentSyncStackTraceLazy(thread, cfg, skip)
	}
	return currentSyncStackTrace(thread, cfg, skip)
}

func currentStackTrace(thread Thread, cfg Config, skip int) *Snapshot {
	if skip < 0 {
		skip = 0
	}

	strategy := SelectStrategy(thread, cfg)
	var snapshot *Snapshot
	switch strategy {
	case CausalAsyncDeferred:
		snapshot = syncStackTrace(thread, cfg, skip).withAsyncCause(thread.AsyncCause())
	case LazySync:
		snapshot = currentSyncStackTraceLazy(thread, cfg, skip)
	default:
		snapshot = currentSyncStackTrace(thread, cfg, skip)
	}

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.WithFields(logrus.Fields{
			"strategy": strategy.String(),
			"skip":     skip,
			"frames":   snapshot.Len(),
		}).Debug("captured stack trace")
	}
	return snapshot
}

// CaptureForException captures the stack to attach to an exception being
// thrown. The innermost managed frame is the one that threw.
func CaptureForException(thread Thread, cfg Config) *Snapshot {
	return currentStackTrace(thread, cfg, 0)
}

// Current is the capture behind StackTrace.current; it leaves out the
// managed wrapper that user code called.
func Current(thread Thread, cfg Config) *Snapshot {
	return currentStackTrace(thread, cfg, 1)
}

// CaptureExplicit captures the stack skipping the innermost skip managed
// frames. It must only be called while a managed call is active. No async
// chain is attached.
func CaptureExplicit(thread Thread, cfg Config, skip int) *Snapshot {
	if skip < 0 {
		skip = 0
	}
	return captureRaw(thread, cfg, skip)
}

// HasLiveFrame reports whether thread has any frame at all, managed or not.
// It separates "nothing has run yet" from a capture that came back empty.
func HasLiveFrame(thread Thread) bool {
	_, ok := thread.Frames(true).NextFrame()
	return ok
}
