package vrand

import (
	"bytes"
	"encoding/binary"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftwareResolver_Resolve(t *testing.T) {
	entry, params, ok := (&SoftwareResolver{}).Resolve()
	require.True(t, ok)
	require.NotNil(t, entry)
	assert.Equal(t, softwareStateSize, params.StateSize)
	assert.Equal(t, softwareStateSize, params.StateAlign)
	assert.Equal(t, uint64(DefaultSoftwareBudget), entry.(*softwareEntry).budget)
	require.NoError(t, params.validate(pageSize()))
}

func TestSoftwareEntry_zeroStateExhausted(t *testing.T) {
	entry, _, _ := (&SoftwareResolver{Syscaller: new(counterSyscaller)}).Resolve()
	state := make([]byte, softwareStateSize)
	n, err := entry.Generate(make([]byte, 8), 0, state)
	require.ErrorIs(t, err, ErrExhausted)
	require.Zero(t, n)
}

func TestSoftwareEntry_invalid(t *testing.T) {
	entry, _, _ := (&SoftwareResolver{Syscaller: new(counterSyscaller)}).Resolve()

	_, err := entry.Generate(make([]byte, 8), 0x80, make([]byte, softwareStateSize))
	require.ErrorIs(t, err, syscall.EINVAL)

	_, err = entry.Generate(make([]byte, 8), 0, make([]byte, 8))
	require.ErrorContains(t, err, `invalid state size`)

	require.ErrorContains(t, entry.Replenish(make([]byte, 8), 0), `invalid state size`)
}

func TestSoftwareEntry_fastKeyErasure(t *testing.T) {
	newEntry := func() EntryPoint {
		entry, _, _ := (&SoftwareResolver{Syscaller: new(counterSyscaller), Budget: 100}).Resolve()
		return entry
	}

	a, b := make([]byte, softwareStateSize), make([]byte, softwareStateSize)
	ea, eb := newEntry(), newEntry()
	require.NoError(t, ea.Replenish(a, 0))
	require.NoError(t, eb.Replenish(b, 0))
	require.Equal(t, a, b)
	assert.Equal(t, uint64(100), binary.LittleEndian.Uint64(a[softwareBudgetOff:]))

	key := bytes.Clone(a[:softwareKeySize])
	outA := make([]byte, 40)
	n, err := ea.Generate(outA, 0, a)
	require.NoError(t, err)
	require.Equal(t, 40, n)
	assert.NotEqual(t, key, a[:softwareKeySize], `key must be replaced`)
	assert.Equal(t, uint64(60), binary.LittleEndian.Uint64(a[softwareBudgetOff:]))

	// deterministic, given the same seed
	outB := make([]byte, 40)
	_, err = eb.Generate(outB, 0, b)
	require.NoError(t, err)
	assert.Equal(t, outA, outB)

	// output never repeats the key stream
	next := make([]byte, 40)
	_, err = ea.Generate(next, 0, a)
	require.NoError(t, err)
	assert.NotEqual(t, outA, next)

	// capped by the budget
	n, err = ea.Generate(make([]byte, 40), 0, a)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	_, err = ea.Generate(make([]byte, 40), 0, a)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestGetrandomFull(t *testing.T) {
	sys := &counterSyscaller{errs: []error{syscall.EINTR}, partial: 5}
	buf := make([]byte, 12)
	require.NoError(t, getrandomFull(sys, buf, 0))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, buf)
	assert.Equal(t, 4, sys.callCount())

	sys = &counterSyscaller{errs: []error{syscall.EAGAIN}}
	err := getrandomFull(sys, buf, FlagNonBlock)
	var sysErr *SyscallError
	require.ErrorAs(t, err, &sysErr)
	assert.ErrorIs(t, err, syscall.EAGAIN)

	noProgress := SyscallerFunc(func([]byte, Flags) (int, error) { return 0, nil })
	require.Error(t, getrandomFull(noProgress, buf, 0))
}
