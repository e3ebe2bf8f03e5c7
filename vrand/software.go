package vrand

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/crypto/chacha20"
)

const (
	// softwareStateSize is the size of a SoftwareResolver state, laid out
	// as the ChaCha20 key, followed by the remaining output budget.
	softwareStateSize = 64
	softwareKeySize   = chacha20.KeySize
	softwareBudgetOff = softwareKeySize

	// DefaultSoftwareBudget is the number of bytes a SoftwareResolver state
	// generates, between replenishments.
	DefaultSoftwareBudget = 1 << 18
)

// SoftwareResolver is a Resolver providing a user-space fast path, using
// ChaCha20 with fast key erasure. Each state holds a key, which is replaced
// from the keystream on every call, and a byte budget, after which the key
// is reseeded via getrandom. A zeroed state has no budget.
type SoftwareResolver struct {
	// Syscaller is used to replenish states, defaulting to the getrandom
	// system call.
	Syscaller Syscaller
	// Budget defaults to DefaultSoftwareBudget.
	Budget uint64
}

type softwareEntry struct {
	syscaller Syscaller
	budget    uint64
}

var _ Resolver = (*SoftwareResolver)(nil)

// Resolve implements Resolver.
func (x *SoftwareResolver) Resolve() (EntryPoint, Params, bool) {
	entry := &softwareEntry{
		syscaller: x.Syscaller,
		budget:    x.Budget,
	}
	if entry.syscaller == nil {
		entry.syscaller = defaultSyscaller{}
	}
	if entry.budget == 0 {
		entry.budget = DefaultSoftwareBudget
	}
	return entry, Params{
		StateSize:  softwareStateSize,
		StateAlign: softwareStateSize,
		MmapProt:   defaultMmapProt,
		MmapFlags:  defaultMmapFlags,
	}, true
}

func (x *softwareEntry) Generate(dst []byte, flags Flags, state []byte) (int, error) {
	if flags&^validFlags != 0 {
		return 0, syscall.EINVAL
	}
	if len(state) < softwareStateSize {
		return 0, fmt.Errorf(`vrand: invalid state size: %d`, len(state))
	}
	if len(dst) == 0 {
		return 0, nil
	}

	budget := binary.LittleEndian.Uint64(state[softwareBudgetOff:])
	if budget == 0 {
		return 0, ErrExhausted
	}
	n := len(dst)
	if uint64(n) > budget {
		n = int(budget)
	}

	key := state[:softwareKeySize]
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce[:])
	if err != nil {
		return 0, err
	}

	// the first block of keystream replaces the key
	c.XORKeyStream(key, make([]byte, softwareKeySize))
	out := dst[:n]
	clear(out)
	c.XORKeyStream(out, out)

	binary.LittleEndian.PutUint64(state[softwareBudgetOff:], budget-uint64(n))
	return n, nil
}

func (x *softwareEntry) Replenish(state []byte, flags Flags) error {
	if len(state) < softwareStateSize {
		return fmt.Errorf(`vrand: invalid state size: %d`, len(state))
	}
	var seed [softwareKeySize]byte
	if err := getrandomFull(x.syscaller, seed[:], flags&^FlagRandom); err != nil {
		return err
	}
	copy(state[:softwareKeySize], seed[:])
	clear(seed[:])
	binary.LittleEndian.PutUint64(state[softwareBudgetOff:], x.budget)
	return nil
}

// getrandomFull calls getrandom until buf is filled, retrying interrupted
// calls. Other errors, including EAGAIN, are returned as a SyscallError.
func getrandomFull(s Syscaller, buf []byte, flags Flags) error {
	for len(buf) > 0 {
		n, err := s.Getrandom(buf, flags)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return &SyscallError{Op: `getrandom`, Err: err}
		}
		if n <= 0 || n > len(buf) {
			return &SyscallError{Op: `getrandom`, Err: io.ErrNoProgress}
		}
		buf = buf[n:]
	}
	return nil
}
