//go:build linux

package vrand

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	defaultMmapProt  = unix.PROT_READ | unix.PROT_WRITE
	defaultMmapFlags = unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
)

// defaultMapper maps anonymous memory, which is wiped on fork where the
// kernel supports it.
type defaultMapper struct{}

func (defaultMapper) Map(size, prot, flags int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, prot, flags)
	if err != nil {
		return nil, &SyscallError{Op: `mmap`, Err: err}
	}
	// best effort, staleness is still detected via the epoch
	_ = unix.Madvise(mem, unix.MADV_WIPEONFORK)
	return mem, nil
}

func (defaultMapper) Unmap(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return &SyscallError{Op: `munmap`, Err: err}
	}
	return nil
}

type defaultSyscaller struct{}

func (defaultSyscaller) Getrandom(buf []byte, flags Flags) (int, error) {
	return unix.Getrandom(buf, int(flags))
}

func defaultProcessIdentity() int { return unix.Getpid() }

func pageSize() int { return unix.Getpagesize() }

// newForkSentinel maps a single wipe-on-fork page, returning a pointer to its
// first word, or nil if the kernel does not support MADV_WIPEONFORK. The
// mapping lives for the lifetime of the process.
func newForkSentinel() *atomic.Uint32 {
	mem, err := unix.Mmap(-1, 0, unix.Getpagesize(), defaultMmapProt, defaultMmapFlags)
	if err != nil {
		return nil
	}
	if err := unix.Madvise(mem, unix.MADV_WIPEONFORK); err != nil {
		_ = unix.Munmap(mem)
		return nil
	}
	return (*atomic.Uint32)(unsafe.Pointer(&mem[0]))
}
