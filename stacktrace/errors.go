package stacktrace

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStackMutated means the stack changed between the counting pass and
	// the collecting pass of a single capture.
	ErrStackMutated = errors.New("stack changed between counting and collecting")
	// ErrNoManagedFrame means an explicit capture was requested outside of
	// any managed call.
	ErrNoManagedFrame = errors.New("no managed frame on the stack")
)

// invariantViolated aborts the capture. These failures mean some other part
// of the runtime broke a precondition, so there is nothing a caller could do
// to recover.
func invariantViolated(err error, fields logrus.Fields) {
	logrus.WithFields(fields).WithError(err).Error("stack capture invariant violated")
	panic(err)
}
