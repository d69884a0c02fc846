// Package goid identifies the calling goroutine.
//
// Go deliberately has no public goroutine-identity API. The runtime needs
// one anyway: Promise.Wait must refuse to block the main-loop goroutine on a
// promise only the main loop itself can settle, Runtime.IsMainThread
// compares the caller against the installed main loop, and the root
// package's reentrantMutex records which goroutine owns it. The main-loop
// check mirrors is_mainthread() in the source runtime, which compares
// threading.currentThread() against the thread that called
// set_as_mainthread(). Parsing the goroutine header out of a stack trace is
// the closest Go equivalent.
package goid

import (
	"runtime"
	"strconv"
	"strings"
)

// Current returns the numeric id of the calling goroutine.
func Current() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:"
	s := string(buf[:n])
	s = strings.TrimPrefix(s, "goroutine ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}
	return id
}
