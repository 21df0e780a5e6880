package stacktrace

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

type fakeCode string

func (c fakeCode) Name() string { return string(c) }

type fakeFrame struct {
	managed bool
	hidden  bool
	code    fakeCode
	pc      uintptr
}

type walkedFrame struct {
	fakeFrame
	showInvisible bool
}

func (f walkedFrame) IsManaged() bool   { return f.managed && (!f.hidden || f.showInvisible) }
func (f walkedFrame) Code() Code        { return f.code }
func (f walkedFrame) PCOffset() uintptr { return f.pc }

type fakeIterator struct {
	frames        []fakeFrame
	showInvisible bool
	next          int
}

func (it *fakeIterator) NextFrame() (Frame, bool) {
	if it.next >= len(it.frames) {
		return nil, false
	}
	f := it.frames[it.next]
	it.next++
	return walkedFrame{f, it.showInvisible}, true
}

// fakeThread replays a fixed list of frames, innermost first.
type fakeThread struct {
	frames     []fakeFrame
	safepoints Safepoints
	cause      *Snapshot
	walks      int
	beforeWalk func(t *fakeThread)
}

func (t *fakeThread) Frames(showInvisible bool) FrameIterator {
	t.walks++
	if t.beforeWalk != nil {
		t.beforeWalk(t)
	}
	return &fakeIterator{frames: t.frames, showInvisible: showInvisible}
}

func (t *fakeThread) Safepoints() *Safepoints { return &t.safepoints }
func (t *fakeThread) AsyncCause() *Snapshot   { return t.cause }

func managed(name string, pc uintptr) fakeFrame {
	return fakeFrame{managed: true, code: fakeCode(name), pc: pc}
}

func native(name string) fakeFrame {
	return fakeFrame{code: fakeCode(name)}
}

// a typical stack: a runtime stub on top, managed calls, the entry frame last
func sampleThread() *fakeThread {
	return &fakeThread{frames: []fakeFrame{
		native("stub"),
		managed("c", 0x18),
		native("trampoline"),
		managed("b", 0x2c),
		managed("a", 0x04),
		native("entry"),
	}}
}

func names(s *Snapshot) []string {
	res := make([]string, s.Len())
	for i := range res {
		res[i] = s.CodeAt(i).Name()
	}
	return res
}

func recoverError(t *testing.T, f func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected capture to panic")
		}
		var ok bool
		if err, ok = r.(error); !ok {
			t.Fatalf("expected an error panic, got %v", r)
		}
	}()
	f()
	return nil
}

func TestStrategiesAgree(t *testing.T) {
	for skip := 0; skip <= 5; skip++ {
		t.Run(fmt.Sprintf("skip %d", skip), func(t *testing.T) {
			thread := sampleThread()
			eager := currentStackTrace(thread, Config{}, skip)
			lazy := currentStackTrace(thread, Config{LazyAsyncStacks: true}, skip)
			explicit := CaptureExplicit(thread, Config{}, skip)

			for _, other := range []*Snapshot{lazy, explicit} {
				if !cmp.Equal(names(eager), names(other)) {
					t.Errorf("code references differ: %v vs %v", names(eager), names(other))
				}
				if !cmp.Equal(eager.PCOffsets(), other.PCOffsets()) {
					t.Errorf("offsets differ: %v vs %v", eager.PCOffsets(), other.PCOffsets())
				}
			}
		})
	}
}

func TestLengthMatchesCount(t *testing.T) {
	thread := sampleThread()
	for skip := 0; skip <= 4; skip++ {
		for _, cfg := range []Config{{}, {LazyAsyncStacks: true}} {
			s := currentStackTrace(thread, cfg, skip)
			if len(s.Codes()) != len(s.PCOffsets()) {
				t.Errorf("codes and offsets differ in length: %d vs %d", len(s.Codes()), len(s.PCOffsets()))
			}
			if count := CountFrames(thread, cfg, skip); s.Len() != count {
				t.Errorf("skip %d: snapshot has %d frames, counter found %d", skip, s.Len(), count)
			}
		}
	}
}

func TestSkipRemovesInnermost(t *testing.T) {
	thread := sampleThread()
	testCases := []struct {
		skip    int
		names   []string
		offsets []uintptr
	}{
		{0, []string{"c", "b", "a"}, []uintptr{0x18, 0x2c, 0x04}},
		{1, []string{"b", "a"}, []uintptr{0x2c, 0x04}},
		{2, []string{"a"}, []uintptr{0x04}},
		{3, []string{}, []uintptr{}},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("skip %d", tc.skip), func(t *testing.T) {
			s := currentStackTrace(thread, Config{}, tc.skip)
			if !cmp.Equal(names(s), tc.names) {
				t.Errorf("expected %v, got %v", tc.names, names(s))
			}
			if !cmp.Equal(s.PCOffsets(), tc.offsets) {
				t.Errorf("expected offsets %v, got %v", tc.offsets, s.PCOffsets())
			}
		})
	}
}

func TestSkipBeyondDepthIsEmpty(t *testing.T) {
	thread := sampleThread()
	for _, cfg := range []Config{{}, {LazyAsyncStacks: true}} {
		s := currentStackTrace(thread, cfg, 5)
		if s.Len() != 0 {
			t.Errorf("expected an empty snapshot, got %v", names(s))
		}
		if len(s.PCOffsetBytes()) != 0 {
			t.Errorf("expected no offset bytes, got %d", len(s.PCOffsetBytes()))
		}
	}
}

func TestCaptureForExceptionExcludesStub(t *testing.T) {
	s := CaptureForException(sampleThread(), DefaultConfig())
	if exp := []string{"c", "b", "a"}; !cmp.Equal(names(s), exp) {
		t.Errorf("expected %v, got %v", exp, names(s))
	}
}

func TestCurrentSkipsWrapper(t *testing.T) {
	thread := &fakeThread{frames: []fakeFrame{
		native("StackTrace_current"),
		managed("StackTrace.current", 0x3),
		managed("caller", 0x10),
		native("entry"),
	}}
	s := Current(thread, DefaultConfig())
	if exp := []string{"caller"}; !cmp.Equal(names(s), exp) {
		t.Errorf("expected %v, got %v", exp, names(s))
	}
}

func TestNegativeSkipIsClamped(t *testing.T) {
	s := CaptureExplicit(sampleThread(), Config{}, -3)
	if s.Len() != 3 {
		t.Errorf("expected 3 frames, got %d", s.Len())
	}
}

func TestHasLiveFrame(t *testing.T) {
	testCases := []struct {
		name   string
		frames []fakeFrame
		exp    bool
	}{
		{"no frames", nil, false},
		{"only native frames", []fakeFrame{native("entry")}, true},
		{"managed frames", sampleThread().frames, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasLiveFrame(&fakeThread{frames: tc.frames}); got != tc.exp {
				t.Errorf("expected %v, got %v", tc.exp, got)
			}
		})
	}
}

func TestEmptyManagedStackIsNotAnError(t *testing.T) {
	thread := &fakeThread{frames: []fakeFrame{native("entry")}}
	if s := CaptureForException(thread, Config{}); s.Len() != 0 {
		t.Errorf("expected an empty snapshot, got %d frames", s.Len())
	}
}

func TestEagerDetectsMutatedStack(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(t *fakeThread)
	}{
		{"frame pushed", func(t *fakeThread) { t.frames = append([]fakeFrame{managed("d", 1)}, t.frames...) }},
		{"frame popped", func(t *fakeThread) { t.frames = t.frames[2:] }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			thread := sampleThread()
			thread.beforeWalk = func(ft *fakeThread) {
				if ft.walks == 2 {
					tc.mutate(ft)
				}
			}
			err := recoverError(t, func() { CaptureForException(thread, Config{}) })
			if !errors.Is(err, ErrStackMutated) {
				t.Errorf("expected ErrStackMutated, got %v", err)
			}
		})
	}
}

func TestExplicitRequiresManagedFrame(t *testing.T) {
	thread := &fakeThread{frames: []fakeFrame{native("entry"), native("stub")}}
	err := recoverError(t, func() { CaptureExplicit(thread, Config{}, 0) })
	if !errors.Is(err, ErrNoManagedFrame) {
		t.Errorf("expected ErrNoManagedFrame, got %v", err)
	}
}

func TestExplicitInsideHiddenFunction(t *testing.T) {
	helper := managed("helper", 0x10)
	helper.hidden = true
	thread := &fakeThread{frames: []fakeFrame{native("stub"), helper, native("entry")}}

	hidden := CaptureExplicit(thread, Config{}, 0)
	if hidden.Len() != 0 {
		t.Errorf("expected the hidden frame filtered out, got %v", names(hidden))
	}
	shown := CaptureExplicit(thread, Config{ShowInvisibleFrames: true}, 0)
	if exp := []string{"helper"}; !cmp.Equal(names(shown), exp) {
		t.Errorf("expected %v, got %v", exp, names(shown))
	}
}

func TestHiddenFrames(t *testing.T) {
	thread := sampleThread()
	thread.frames[3].hidden = true

	hidden := CaptureForException(thread, Config{})
	if exp := []string{"c", "a"}; !cmp.Equal(names(hidden), exp) {
		t.Errorf("expected %v, got %v", exp, names(hidden))
	}
	shown := CaptureForException(thread, Config{ShowInvisibleFrames: true})
	if exp := []string{"c", "b", "a"}; !cmp.Equal(names(shown), exp) {
		t.Errorf("expected %v, got %v", exp, names(shown))
	}
}

func TestSelectStrategy(t *testing.T) {
	cause := newFixedSnapshot([]Code{fakeCode("spawner")}, []uintptr{7})
	testCases := []struct {
		name  string
		cfg   Config
		cause *Snapshot
		exp   Strategy
	}{
		{"default", Config{}, nil, EagerSync},
		{"lazy", Config{LazyAsyncStacks: true}, nil, LazySync},
		{"causal without chain", Config{CausalAsyncStacks: true}, nil, EagerSync},
		{"causal with chain", Config{CausalAsyncStacks: true}, cause, CausalAsyncDeferred},
		{"chain but causal off", Config{LazyAsyncStacks: true}, cause, LazySync},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			thread := sampleThread()
			thread.cause = tc.cause
			if got := SelectStrategy(thread, tc.cfg); got != tc.exp {
				t.Errorf("expected %v, got %v", tc.exp, got)
			}
		})
	}
}

func TestCausalChainIsLinked(t *testing.T) {
	cause := newFixedSnapshot([]Code{fakeCode("spawner")}, []uintptr{7})
	thread := sampleThread()
	thread.cause = cause

	for _, cfg := range []Config{{CausalAsyncStacks: true}, {CausalAsyncStacks: true, LazyAsyncStacks: true}} {
		s := CaptureForException(thread, cfg)
		if exp := []string{"c", "b", "a"}; !cmp.Equal(names(s), exp) {
			t.Errorf("expected leaf %v, got %v", exp, names(s))
		}
		if s.AsyncCause() != cause {
			t.Error("expected the recorded chain to follow the leaf segment")
		}
	}

	if s := CaptureForException(thread, Config{}); s.AsyncCause() != nil {
		t.Error("expected no chain when causal stacks are disabled")
	}
	if s := CaptureExplicit(thread, Config{CausalAsyncStacks: true}, 0); s.AsyncCause() != nil {
		t.Error("expected explicit captures to ignore the chain")
	}
}

func TestSnapshotCopiesOffsetsVerbatim(t *testing.T) {
	var safepoints Safepoints
	codes := []Code{fakeCode("x"), fakeCode("y"), fakeCode("z")}
	offsets := []uintptr{1, 0xdeadbeef, 42}

	s := newSnapshot(&safepoints, codes, offsets)
	offsets[0] = 99
	codes[0] = fakeCode("changed")

	if !cmp.Equal(s.PCOffsets(), []uintptr{1, 0xdeadbeef, 42}) {
		t.Errorf("snapshot shares storage with its source: %v", s.PCOffsets())
	}
	if s.CodeAt(0).Name() != "x" {
		t.Errorf("snapshot shares code storage with its source")
	}
	if !cmp.Equal(s.PCOffsetBytes(), wordBytes([]uintptr{1, 0xdeadbeef, 42})) {
		t.Errorf("offset bytes are not a verbatim word copy")
	}
	if !safepoints.AtSafepoint() {
		t.Error("no-safepoint scope leaked past the copy")
	}
}

func TestNoSafepointScopeNests(t *testing.T) {
	var safepoints Safepoints
	outer := safepoints.EnterNoSafepoint()
	inner := safepoints.EnterNoSafepoint()
	inner.Exit()
	if safepoints.AtSafepoint() {
		t.Error("expected the outer scope to still forbid safepoints")
	}
	outer.Exit()
	if !safepoints.AtSafepoint() {
		t.Error("expected safepoints to be allowed again")
	}
}

func TestFrameBufferGrowsGeometrically(t *testing.T) {
	buf := newFrameBuffer(0)
	growths := 0
	lastCap := cap(buf.codes)
	for i := 0; i < 100; i++ {
		buf.Add(fakeCode(fmt.Sprint(i)), uintptr(i))
		if cap(buf.codes) != lastCap {
			growths++
			lastCap = cap(buf.codes)
		}
	}
	if growths > 5 {
		t.Errorf("expected at most 5 reallocations for 100 frames, got %d", growths)
	}
	for i := 0; i < buf.Len(); i++ {
		if buf.pcOffsets[i] != uintptr(i) || buf.codes[i].Name() != fmt.Sprint(i) {
			t.Fatalf("frame %d out of order", i)
		}
	}
}

func TestConcurrentCaptures(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			prefix := fmt.Sprintf("g%d-", g)
			thread := &fakeThread{frames: []fakeFrame{
				managed(prefix+"inner", uintptr(g)),
				managed(prefix+"outer", uintptr(g+10)),
			}}
			for i := 0; i < 200; i++ {
				cfg := Config{LazyAsyncStacks: i%2 == 0}
				s := CaptureForException(thread, cfg)
				exp := []string{prefix + "inner", prefix + "outer"}
				if !cmp.Equal(names(s), exp) || !cmp.Equal(s.PCOffsets(), []uintptr{uintptr(g), uintptr(g + 10)}) {
					t.Errorf("goroutine %d observed a foreign stack: %v %v", g, names(s), s.PCOffsets())
					return
				}
			}
		}(g)
	}
	wg.Wait()
}
