//go:build !linux

package driver

import "fmt"

// Open is unavailable off Linux: the binder character device is a Linux
// kernel driver with no equivalent elsewhere. Tests on other platforms use
// FakeConn instead of this constructor.
func Open(cfg Config) (Conn, error) {
	return nil, fmt.Errorf("driver: /dev/binder is only available on linux")
}
