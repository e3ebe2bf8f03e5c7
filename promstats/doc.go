// Package promstats exports the counters of combinelock.Lock and vrand.Pool
// instances as Prometheus metrics.
//
// Collectors read a snapshot of the counters on every scrape, so impose no
// cost on the lock or pool between scrapes.
package promstats
