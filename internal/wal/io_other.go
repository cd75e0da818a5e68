//go:build windows || js || wasip1

package wal

import "os"

// fdatasync falls back to a full fsync on platforms without a
// data-only sync primitive.
func fdatasync(f *os.File) error {
	return f.Sync()
}

// pwritev falls back to sequential WriteAt calls on platforms without
// a vectored-write syscall, preserving the same partial-write retry
// semantics as the unix implementation.
func pwritev(f *os.File, iovecs [][]byte, offset int64) (int, error) {
	total := 0
	for _, buf := range iovecs {
		for len(buf) > 0 {
			n, err := f.WriteAt(buf, offset)
			total += n
			offset += int64(n)
			buf = buf[n:]
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}
