//go:build combinelock_noprefetch

package combinelock

const prefetchEnabled = false
