//go:build !linux && !darwin

package netmon

func newWatcher() (watcher, error) {
	return nil, ErrUnsupported
}
