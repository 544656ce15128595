// Package async provides panic-safe goroutine helpers for background work.
package async

import (
	"log"
	"runtime/debug"
)

// Go runs fn in a goroutine with panic recovery. Use it instead of a bare
// `go` statement for workers whose panic must not take down the process.
func Go(taskName string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[async] panic in %s: %v\n%s", taskName, r, debug.Stack())
			}
		}()
		fn()
	}()
}
