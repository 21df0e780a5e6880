package runtime

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

// ErrCollectionDeferred is returned by Collect while some fiber is inside a
// no-safepoint scope.
var ErrCollectionDeferred = errors.New("collection deferred: a fiber holds a no-safepoint scope")

func (m *Machine) Allocate(val Value) Ref {
	m.heapLock.Lock()
	defer m.heapLock.Unlock()

	key := m.NextHeapKey
	m.NextHeapKey++
	m.Heap[key] = val
	return Ref{key}
}

func (m *Machine) Load(ref Ref) Value {
	m.heapLock.Lock()
	defer m.heapLock.Unlock()

	val, ok := m.Heap[ref.Pointer]
	if !ok {
		panic("Dangling reference detected.")
	}
	return val
}

func (m *Machine) Store(ref Ref, val Value) {
	m.heapLock.Lock()
	defer m.heapLock.Unlock()

	if _, ok := m.Heap[ref.Pointer]; !ok {
		panic("Dangling reference detected.")
	}
	m.Heap[ref.Pointer] = val
}

// Collect reclaims heap cells unreachable from the value stacks of live
// fibers and returns how many were freed. It stops the world first, so every
// running fiber is parked between two instructions while it marks.
func (m *Machine) Collect() (int, error) {
	m.world.Lock()
	defer m.world.Unlock()

	m.fibersLock.Lock()
	defer m.fibersLock.Unlock()

	fibers := maps.Keys(m.fibers)
	for _, fiber := range fibers {
		if !fiber.safepoints.AtSafepoint() {
			logrus.WithField("fibers", len(fibers)).Debug("deferring collection")
			return 0, ErrCollectionDeferred
		}
	}

	m.heapLock.Lock()
	defer m.heapLock.Unlock()

	marked := make(map[HeapKey]bool)
	var mark func(v Value)
	mark = func(v Value) {
		ref, ok := v.(Ref)
		if !ok || marked[ref.Pointer] {
			return
		}
		marked[ref.Pointer] = true
		mark(m.Heap[ref.Pointer])
	}
	for _, fiber := range fibers {
		for _, v := range fiber.values {
			mark(v)
		}
	}

	freed := 0
	for _, key := range maps.Keys(m.Heap) {
		if !marked[key] {
			delete(m.Heap, key)
			freed++
		}
	}
	logrus.WithFields(logrus.Fields{"freed": freed, "live": len(m.Heap)}).Debug("collected heap")
	return freed, nil
}
