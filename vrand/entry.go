package vrand

// Flags are getrandom flags, passed through to the EntryPoint, and the
// system call.
type Flags uint32

const (
	// FlagNonBlock is GRND_NONBLOCK.
	FlagNonBlock Flags = 0x1
	// FlagRandom is GRND_RANDOM. Fills with this flag always use the system
	// call.
	FlagRandom Flags = 0x2
	// FlagInsecure is GRND_INSECURE.
	FlagInsecure Flags = 0x4

	validFlags = FlagNonBlock | FlagRandom | FlagInsecure
)

// Params describe the opaque states required by an EntryPoint.
type Params struct {
	// StateSize is the size of a single state, in bytes.
	StateSize int
	// StateAlign is the required alignment of each state, a power of two no
	// larger than the page size.
	StateAlign int
	// MmapProt and MmapFlags are passed to Mapper.Map.
	MmapProt  int
	MmapFlags int
}

// EntryPoint is the fast path, which generates random bytes from an opaque
// state buffer, without system calls. Implementations must tolerate a state
// that was zeroed (e.g. wiped on fork), treating it as exhausted.
type EntryPoint interface {
	// Generate fills dst, returning the number of bytes written, which may be
	// less than len(dst). Returns ErrExhausted if state must be replenished.
	Generate(dst []byte, flags Flags, state []byte) (int, error)

	// Replenish reseeds state, typically via a system call.
	Replenish(state []byte, flags Flags) error
}

// Resolver locates the fast path. It returns false if the fast path is
// unavailable, in which case the pool operates in fallback mode.
type Resolver interface {
	Resolve() (EntryPoint, Params, bool)
}

// ResolverFunc implements Resolver.
type ResolverFunc func() (EntryPoint, Params, bool)

// NoResolver forces fallback mode.
var NoResolver Resolver = ResolverFunc(func() (EntryPoint, Params, bool) {
	return nil, Params{}, false
})

// Mapper allocates the memory backing opaque states. Memory returned by Map
// must be zeroed, and aligned to the page size.
type Mapper interface {
	Map(size, prot, flags int) ([]byte, error)
	Unmap(mem []byte) error
}

// Syscaller performs the getrandom system call.
type Syscaller interface {
	Getrandom(buf []byte, flags Flags) (int, error)
}

// SyscallerFunc implements Syscaller.
type SyscallerFunc func(buf []byte, flags Flags) (int, error)

// ProcessIdentity returns an identifier for the current process, which
// changes across a fork.
type ProcessIdentity func() int

// Resolve implements Resolver.
func (f ResolverFunc) Resolve() (EntryPoint, Params, bool) { return f() }

// Getrandom implements Syscaller.
func (f SyscallerFunc) Getrandom(buf []byte, flags Flags) (int, error) { return f(buf, flags) }
