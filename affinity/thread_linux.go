//go:build linux

package affinity

import "golang.org/x/sys/unix"

func currentThread() (int, bool) {
	return unix.Gettid(), true
}
