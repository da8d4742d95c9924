package util

import (
	"os"
	"syscall"
)

// IsSameFilesystem checks if two paths are on the same filesystem by
// comparing device IDs. Used to decide whether a rename can be atomic.
func IsSameFilesystem(path1, path2 string) (bool, error) {
	stat1, err := os.Stat(path1)
	if err != nil {
		return false, err
	}

	stat2, err := os.Stat(path2)
	if err != nil {
		return false, err
	}

	sysStat1, ok1 := stat1.Sys().(*syscall.Stat_t)
	sysStat2, ok2 := stat2.Sys().(*syscall.Stat_t)

	if !ok1 || !ok2 {
		// Can't tell; assume different so callers take the safe path
		return false, nil
	}

	return sysStat1.Dev == sysStat2.Dev, nil
}

// EnsureDir creates a directory (and parents) if it does not exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
