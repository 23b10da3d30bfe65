//go:build !unix

package sim

import "os"

// OpenEventPipe opens path for blocking reads. The FIFO-mode confirmation
// and O_NONBLOCK clearing in fifo_unix.go have no portable equivalent here.
func OpenEventPipe(path string) (*os.File, error) {
	return os.Open(path)
}
