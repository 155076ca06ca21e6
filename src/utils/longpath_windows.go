package utils

import (
	"golang.org/x/sys/windows"
)

// LongPath expands 8.3 short names (C:\PROGRA~1) so workspace roots and
// document paths compare equal however the client spelled them. Paths that
// do not exist are returned unchanged.
func LongPath(p string) string {
	if p == "" {
		return p
	}
	src, err := windows.UTF16PtrFromString(p)
	if err != nil {
		return p
	}
	size, err := windows.GetLongPathName(src, nil, 0)
	if err != nil || size == 0 {
		return p
	}
	buf := make([]uint16, size)
	n, err := windows.GetLongPathName(src, &buf[0], size)
	if err != nil || n == 0 || n >= size {
		return p
	}
	return windows.UTF16ToString(buf[:n])
}
