package stacktrace

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CountFrames returns how many managed frames remain after skipping the
// innermost skip of them. It does not allocate storage for the frames.
func CountFrames(thread Thread, cfg Config, skip int) int {
	frames := thread.Frames(cfg.ShowInvisibleFrames)
	count := 0
	for frame, ok := frames.NextFrame(); ok; frame, ok = frames.NextFrame() {
		if !frame.IsManaged() {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		count++
	}
	return count
}

// collectFramesLazy walks the stack once, appending every managed frame past
// the skip count to buf.
func collectFramesLazy(thread Thread, cfg Config, buf *frameBuffer, skip int) {
	frames := thread.Frames(cfg.ShowInvisibleFrames)
	for frame, ok := frames.NextFrame(); ok; frame, ok = frames.NextFrame() {
		if !frame.IsManaged() {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		buf.Add(frame.Code(), frame.PCOffset())
	}
}

// collectFrames fills codes and pcOffsets, which must have been sized by
// CountFrames with the same skip, and returns the number of frames written.
func collectFrames(thread Thread, cfg Config, codes []Code, pcOffsets []uintptr, skip int) int {
	frames := thread.Frames(cfg.ShowInvisibleFrames)
	collected := 0
	for frame, ok := frames.NextFrame(); ok; frame, ok = frames.NextFrame() {
		if !frame.IsManaged() {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if collected < len(codes) {
			codes[collected] = frame.Code()
			pcOffsets[collected] = frame.PCOffset()
		}
		collected++
	}
	return collected
}

func currentSyncStackTraceLazy(thread Thread, cfg Config, skip int) *Snapshot {
	buf := newFrameBuffer(defaultStackAllocation)
	collectFramesLazy(thread, cfg, buf, skip)
	return newSnapshot(thread.Safepoints(), buf.codes, buf.pcOffsets)
}

func currentSyncStackTrace(thread Thread, cfg Config, skip int) *Snapshot {
	length := CountFrames(thread, cfg, skip)

	codes := make([]Code, length)
	pcOffsets := make([]uintptr, length)
	collected := collectFrames(thread, cfg, codes, pcOffsets, skip)
	if collected != length {
		invariantViolated(
			errors.Wrapf(ErrStackMutated, "counted %d frames, collected %d", length, collected),
			logrus.Fields{"counted": length, "collected": collected, "skip": skip})
	}

	return newFixedSnapshot(codes, pcOffsets)
}

// captureRaw walks every frame, filtering managed ones inline. A managed
// call must be active, hidden or not, before the skip is applied.
func captureRaw(thread Thread, cfg Config, skip int) *Snapshot {
	buf := newFrameBuffer(0)
	sawManaged := false
	frames := thread.Frames(cfg.ShowInvisibleFrames)
	for frame, ok := frames.NextFrame(); ok; frame, ok = frames.NextFrame() {
		if !frame.IsManaged() {
			continue
		}
		sawManaged = true
		if skip > 0 {
			skip--
			continue
		}
		buf.Add(frame.Code(), frame.PCOffset())
	}
	if !sawManaged && !cfg.ShowInvisibleFrames {
		sawManaged = hasManagedFrame(thread)
	}
	if !sawManaged {
		invariantViolated(
			errors.WithStack(ErrNoManagedFrame),
			logrus.Fields{"skip": skip})
	}
	return newSnapshot(thread.Safepoints(), buf.codes, buf.pcOffsets)
}

// hasManagedFrame reports whether any frame is managed when hidden frames
// are counted too.
func hasManagedFrame(thread Thread) bool {
	frames := thread.Frames(true)
	for frame, ok := frames.NextFrame(); ok; frame, ok = frames.NextFrame() {
		if frame.IsManaged() {
			return true
		}
	}
	return false
}
