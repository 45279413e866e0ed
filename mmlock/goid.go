package mmlock

import "runtime"

// goroutineID returns an identifier for the calling goroutine, used solely
// to detect reentrant acquisition of the write (exclusive) handle. Go has
// no public goroutine-local storage or thread-identity API, so this parses
// the first line of a runtime.Stack trace ("goroutine 123 [running]:"),
// the same technique used by the handful of reentrant-mutex packages in
// the wild that need this. It is slow relative to an atomic load (~1us); it
// is called once per write-handle acquire or release attempt, never on the
// shared/intent paths.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGoroutineID(buf[:n])
}

func parseGoroutineID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var id int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
