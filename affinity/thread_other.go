//go:build !linux

package affinity

func currentThread() (int, bool) {
	return 0, false
}
