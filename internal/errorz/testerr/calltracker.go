// Package testerr helps simulate failing dependencies in tests.
package testerr

import "errors"

// Err is the error returned by failing dependencies.
var Err = errors.New("test error")

// Calltracker tracks calls to a dependency and decides which of them fail.
// The zero value is ready to use and never fails.
type Calltracker struct {
	CallIndex         int
	ShouldFail        bool
	Err               error
	FailAllAfterIndex bool
	FailAtIndex       int
}

// NewFailingDeps creates calltrackers that fail at every point of a call
// sequence of length expectCalls, in two flavours:
//   - a single failing call, all other calls succeed.
//   - every call from the failing one onwards fails.
func NewFailingDeps(err error, expectCalls int) []Calltracker {
	trackers := make([]Calltracker, 0, expectCalls*2)
	for i := 0; i < expectCalls; i++ {
		trackers = append(trackers,
			Calltracker{CallIndex: -1, ShouldFail: true, Err: err, FailAllAfterIndex: true, FailAtIndex: i},
			Calltracker{CallIndex: -1, ShouldFail: true, Err: err, FailAllAfterIndex: false, FailAtIndex: i},
		)
	}

	return trackers
}

func (ct *Calltracker) fails() bool {
	if !ct.ShouldFail {
		return false
	}

	ct.CallIndex++

	if ct.FailAtIndex == ct.CallIndex {
		return true
	}

	return ct.FailAllAfterIndex && ct.CallIndex > ct.FailAtIndex
}

// MaybeFailErrFunc returns the tracker error if this call should fail, otherwise it calls f.
func MaybeFailErrFunc(ct *Calltracker, f func() error) error {
	if ct.fails() {
		return ct.Err
	}

	return f()
}

// MaybeFail returns the tracker error if this call should fail, otherwise it calls f.
func MaybeFail[T any](ct *Calltracker, f func() (T, error)) (T, error) {
	if ct.fails() {
		var zero T
		return zero, ct.Err
	}

	return f()
}
