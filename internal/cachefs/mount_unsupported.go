//go:build !linux

package cachefs

import "fmt"

// Server mirrors the methods callers use on *fuse.Server.
type Server interface {
	Wait()
	Unmount() error
}

// Mount is unavailable on non-Linux builds because cachefs depends on go-fuse.
func Mount(dir string, v View, allowOther bool) (Server, error) {
	return nil, fmt.Errorf("cache mount is only supported on linux builds")
}
