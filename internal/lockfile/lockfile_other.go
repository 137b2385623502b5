//go:build !unix

package lockfile

import (
	"errors"
	"os"
)

func tryLock(*os.File) error {
	return errors.New("lockfile: not supported on this platform")
}

func unlock(*os.File) error { return nil }
