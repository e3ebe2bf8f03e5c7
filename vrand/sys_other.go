//go:build !linux

package vrand

import (
	"crypto/rand"
	"os"
	"sync/atomic"
	"unsafe"
)

const (
	defaultMmapProt  = 0
	defaultMmapFlags = 0
)

// defaultMapper allocates page-aligned memory from the heap.
type defaultMapper struct{}

func (defaultMapper) Map(size, _, _ int) ([]byte, error) {
	page := pageSize()
	mem := make([]byte, size+page)
	off := int(-uintptr(unsafe.Pointer(&mem[0])) & uintptr(page-1))
	return mem[off : off+size : off+size], nil
}

func (defaultMapper) Unmap([]byte) error { return nil }

// defaultSyscaller uses the platform's CSPRNG, ignoring flags.
type defaultSyscaller struct{}

func (defaultSyscaller) Getrandom(buf []byte, _ Flags) (int, error) {
	return rand.Read(buf)
}

func defaultProcessIdentity() int { return os.Getpid() }

func pageSize() int { return os.Getpagesize() }

func newForkSentinel() *atomic.Uint32 { return nil }
