// Package vrand implements a fork-safe pool of per-goroutine random
// generator states, in the style of the Linux vDSO getrandom mechanism.
//
// A [Pool] owns memory-mapped regions, carved into opaque state buffers,
// and a free list of buffers, guarded by a [combinelock.Lock]. A [State]
// rents a single buffer, and generates random bytes from it without locking,
// or making system calls, until the state's material is exhausted, at which
// point the [EntryPoint] replenishes it.
//
// # Fork Safety
//
// Every buffer is stamped with the [Epoch] (process identity) that was
// current when its region was mapped. A buffer is never handed out, or used,
// under a different epoch: it is discarded instead, and its region unmapped
// once every buffer carved from it has been discarded. Staleness is detected
// lazily, on the next use of a buffer, rather than at the time of the fork.
//
// On Linux, regions are mapped with MADV_WIPEONFORK, and the current epoch is
// cached, guarded by a wipe-on-fork sentinel page, such that detecting a fork
// requires no system call. Other platforms have no such mechanism, so the
// process identity is queried on every fill, which is a system call on
// darwin and the BSDs.
//
// # Fallback
//
// If the [Resolver] reports that the fast path is unavailable, the pool
// operates in fallback mode: no memory is mapped, and every fill is served by
// the getrandom system call.
package vrand
