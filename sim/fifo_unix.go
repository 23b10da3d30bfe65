//go:build unix

package sim

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenEventPipe opens the named pipe at path for blocking reads, confirming
// it actually is a FIFO and clearing O_NONBLOCK if the caller's shell or
// a prior process left it set — a reader that blocks is what lets the
// dispatcher treat "no bytes yet" and "stream ended" as distinct signals.
func OpenEventPipe(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("rcdcsim: opening event pipe %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rcdcsim: statting event pipe %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFIFO {
		unix.Close(fd)
		return nil, fmt.Errorf("rcdcsim: %s is not a named pipe", path)
	}

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rcdcsim: reading flags for %s: %w", path, err)
	}
	if flags&unix.O_NONBLOCK != 0 {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags&^unix.O_NONBLOCK); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("rcdcsim: clearing O_NONBLOCK on %s: %w", path, err)
		}
	}

	return os.NewFile(uintptr(fd), path), nil
}
