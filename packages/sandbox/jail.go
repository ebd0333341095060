package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrepareJail lays out the skeleton of a worker chroot in dir: etc/ with a
// resolv.conf copied from the host, an empty dev/ and a world-writable
// tmp/.
//
// the operator still has to bind mount /lib and /usr/lib read-only into
// the jail for anything dynamically linked, and copy the worker binary in:
//
//	mount --bind -o ro /lib  <dir>/lib
//	mount --bind -o ro /usr/lib <dir>/usr/lib
func PrepareJail(dir string) error {
	for _, sub := range []string{"etc", "dev", "lib", "usr/lib"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("prepare jail: %w", err)
		}
	}
	tmp := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmp, 0o777); err != nil {
		return fmt.Errorf("prepare jail: %w", err)
	}
	if err := os.Chmod(tmp, 0o777|os.ModeSticky); err != nil {
		return fmt.Errorf("prepare jail: %w", err)
	}

	resolv, err := os.ReadFile("/etc/resolv.conf")
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("prepare jail: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "etc", "resolv.conf"), resolv, 0o644); err != nil {
		return fmt.Errorf("prepare jail: %w", err)
	}
	return nil
}
