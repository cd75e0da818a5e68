//go:build !windows && !js && !wasip1

package wal

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// maxIOV bounds the number of iovecs passed to a single writev/pwritev
// syscall, matching the classic IOV_MAX limit.
const maxIOV = 1024

// fdatasync flushes f's data to stable storage, retrying on EINTR.
func fdatasync(f *os.File) error {
	for {
		err := unix.Fdatasync(int(f.Fd()))
		if err != unix.EINTR {
			return err
		}
	}
}

// pwritev writes iovecs at offset, looping over partial returns and
// chunking into at most maxIOV entries per syscall.
func pwritev(f *os.File, iovecs [][]byte, offset int64) (int, error) {
	total := 0
	for len(iovecs) > 0 {
		n := len(iovecs)
		if n > maxIOV {
			n = maxIOV
		}
		wrote, err := unix.Pwritev(int(f.Fd()), iovecs[:n], offset)
		if wrote > 0 {
			total += wrote
			offset += int64(wrote)
			iovecs = trimWritten(iovecs, wrote)
		}
		if err != nil {
			return total, err
		}
		if wrote == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// trimWritten drops the first n written bytes from iovecs, trimming a
// partially written buffer rather than dropping it whole.
func trimWritten(iovecs [][]byte, n int) [][]byte {
	for n > 0 && len(iovecs) > 0 {
		if n < len(iovecs[0]) {
			iovecs[0] = iovecs[0][n:]
			return iovecs
		}
		n -= len(iovecs[0])
		iovecs = iovecs[1:]
	}
	return iovecs
}
