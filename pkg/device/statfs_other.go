//go:build !(linux || darwin || freebsd)

package device

import "errors"

func freeBytes(string) (uint64, error) {
	return 0, errors.New("free space is not supported on this platform")
}
