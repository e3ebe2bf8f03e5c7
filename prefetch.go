//go:build !combinelock_noprefetch

package combinelock

// prefetchEnabled controls whether the combiner touches the successor node
// before running the current task.
const prefetchEnabled = true
