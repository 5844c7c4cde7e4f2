// Package goid reads the id of the calling goroutine.
package goid

import "runtime"

const prefix = "goroutine "

// Get returns the id of the calling goroutine, or 0 if the runtime's
// stack header could not be parsed.
func Get() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parse(buf[:n])
}

// parse extracts the number from "goroutine 123 [running]:".
func parse(buf []byte) int64 {
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var id int64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
