package loopkit

import (
	"errors"
	"fmt"

	"github.com/ygrebnov/errorc"
)

// TaskMetaError exposes correlation metadata for a task or job failure,
// generalizing ygrebnov/workers' error_tagging.go (TaskMetaError/
// taskTaggedError) from "index into a batch" to "policy key of the step
// function that produced the task", since tasks in this runtime are not
// batch items but long-running step-driven computations addressed by
// (step-function identity, key).
type TaskMetaError interface {
	error
	Unwrap() error
	TaskKey() (any, bool)
	TaskID() (string, bool)
}

type taskTaggedError struct {
	err error
	key any
	id  string
}

// taggedError wraps err with correlation metadata using errorc, also a
// ygrebnov/workers dependency. A nil err yields nil (no-op), so callers can
// always call it unconditionally.
func taggedError(err error, id string, key any) error {
	if err == nil {
		return nil
	}
	// errorc.Wrap annotates err with a namespace tag; we keep our own
	// TaskMetaError on top so ExtractTaskKey/ExtractTaskID stay cheap
	// type assertions instead of re-parsing errorc's formatted message.
	wrapped := errorc.Wrap(err, Namespace+".task")
	return &taskTaggedError{err: wrapped, key: key, id: id}
}

func (e *taskTaggedError) Error() string { return e.err.Error() }
func (e *taskTaggedError) Unwrap() error { return e.err }

func (e *taskTaggedError) TaskKey() (any, bool) {
	if e.key == nil {
		return nil, false
	}
	return e.key, true
}

func (e *taskTaggedError) TaskID() (string, bool) {
	if e.id == "" {
		return "", false
	}
	return e.id, true
}

func (e *taskTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "task(id=%s,key=%v): %+v", e.id, e.key, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractTaskKey returns the policy key from err if present.
func ExtractTaskKey(err error) (any, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.TaskKey()
	}
	return nil, false
}

// ExtractTaskID returns the task id from err if present.
func ExtractTaskID(err error) (string, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.TaskID()
	}
	return "", false
}
