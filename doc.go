// Package combinelock implements a queue-based mutual exclusion lock, with
// flat-combining execution, and poisoning.
//
// # Architecture
//
// A [Lock] owns a value, which is only accessible from within tasks, passed
// to [Lock.Do] or [Run]. Each call enqueues a node onto an MCS-style wait
// queue (a single atomic tail pointer). The caller that finds the queue empty
// becomes the combiner: it runs its own task, then walks the queue, running
// every task that was enqueued behind it, until it can detach the tail, or it
// hands off the combiner role (see [WithCombineLimit]). All other callers
// wait, first spinning on their node, then parking, until their task has been
// run on their behalf.
//
// Tasks therefore run on whichever goroutine is currently the combiner. They
// must not block for long periods (e.g. on I/O), and must not attempt to
// re-enter the same lock, which would deadlock.
//
// # Poisoning
//
// A task that panics poisons the lock. The panic is recovered at the task
// boundary, and:
//   - if the task belonged to a waiter, the waiter receives a [*PanicError]
//   - if the task belonged to the combiner, the combiner finishes servicing
//     the queue, then re-panics with the original value
//
// While poisoned, tasks are not run, and calls return [ErrPoisoned]. Use
// [Lock.InspectPoison] to observe the state, and [Lock.Recover] or
// [Lock.Unpoison] to restore it, after re-establishing the consistency of the
// protected value.
//
// # Ordering
//
// Tasks run in the order their nodes were enqueued, and never concurrently,
// for a given lock.
//
// # Build Tags
//
// The combiner touches the successor node before running the current task,
// warming it for the next iteration. Build with the combinelock_noprefetch
// tag to disable this.
package combinelock
