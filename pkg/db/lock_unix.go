//go:build !windows

package db

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive advisory lock on a sidecar lock file, so that
// two bot processes never share one database. The lock file (and not the
// database itself) is locked because snapshots replace the database inode
// on every rename. The descriptor stays open for the lifetime of the Store.
func (s *Store) lockFile() error {
	file, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0664)
	if err != nil {
		return err
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		return fmt.Errorf("database %q is locked by another process: %w", s.path, err)
	}
	s.file = file
	return nil
}
